// Package storage persists processed replays: the metadata document as
// JSON, the frame stream as an opaque binary blob.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/rlviewer/telemetry/internal/model"
)

// ErrNotFound is returned when no replay exists under the requested id.
var ErrNotFound = errors.New("replay not found")

// ReplayRecord is the persisted form of one processed replay.
type ReplayRecord struct {
	ID           string         `gorm:"primaryKey" json:"id"`
	MapName      string         `json:"map_name"`
	MatchType    string         `json:"match_type"`
	GameType     string         `json:"game_type"`
	Date         string         `json:"date"`
	Duration     float64        `json:"duration"`
	PlayerCount  int            `json:"player_count"`
	FrameBytes   int            `json:"frame_bytes"`
	Metadata     datatypes.JSON `json:"-"`
	CarPlayerMap datatypes.JSON `json:"-"`
	Frames       []byte         `json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// ReplaySummary is the listing projection: everything but the payloads.
type ReplaySummary struct {
	ID          string    `json:"id"`
	MapName     string    `json:"map_name"`
	MatchType   string    `json:"match_type"`
	GameType    string    `json:"game_type"`
	Date        string    `json:"date"`
	Duration    float64   `json:"duration"`
	PlayerCount int       `json:"player_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Manager handles database connections and replay persistence.
type Manager struct {
	DB              *gorm.DB
	SqlDB           *sql.DB
	IsValid         bool
	ShouldSaveLocal bool
	Logger          zerolog.Logger
}

// NewManager creates a new storage manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{Logger: log}
}

// Connect establishes a database connection, falling back to SQLite if
// Postgres fails.
func (m *Manager) Connect() error {
	var err error

	m.DB, err = m.getPostgresDB()
	if err == nil {
		m.SqlDB, err = m.DB.DB()
		if err == nil {
			err = m.SqlDB.Ping()
		}
	}
	if err != nil {
		m.Logger.Error().Err(err).Msg("Failed to connect to Postgres DB, trying SQLite")
		m.ShouldSaveLocal = true
		m.DB, err = m.getSqliteDB(viper.GetString("db.sqlitePath"))
		if err != nil || m.DB == nil {
			m.IsValid = false
			return fmt.Errorf("failed to get local SQLite DB: %w", err)
		}
		m.SqlDB, err = m.DB.DB()
		if err != nil {
			m.IsValid = false
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
	}

	m.IsValid = true
	if !m.ShouldSaveLocal {
		m.SqlDB.SetMaxOpenConns(10)
	}
	m.Logger.Info().Bool("sqlite", m.ShouldSaveLocal).Msg("Connected to database")
	return nil
}

func (m *Manager) getPostgresDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		viper.GetString("db.host"),
		viper.GetString("db.port"),
		viper.GetString("db.username"),
		viper.GetString("db.password"),
		viper.GetString("db.database"),
	)

	m.Logger.Debug().Str("host", viper.GetString("db.host")).Msg("Connecting to Postgres DB")

	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        1000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

func (m *Manager) getSqliteDB(path string) (*gorm.DB, error) {
	dsn := "file::memory:?cache=shared"
	if path != "" {
		dsn = path
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        1000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA user_version = 1;",
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA cache_size = -32000;",
		"PRAGMA temp_store = MEMORY;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	if path != "" {
		m.Logger.Info().Str("path", path).Msg("Using local SQLite DB")
	} else {
		m.Logger.Info().Msg("Using in-memory SQLite DB")
	}
	return db, nil
}

// Setup migrates the replay schema.
func (m *Manager) Setup() error {
	if err := m.DB.AutoMigrate(&ReplayRecord{}); err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	m.Logger.Info().Msg("Database setup complete")
	return nil
}

// Close releases the underlying connection pool.
func (m *Manager) Close() error {
	if m.SqlDB == nil {
		return nil
	}
	return m.SqlDB.Close()
}

// SaveReplay upserts one processed replay with its encoded frame stream.
// It satisfies the job runner's sink interface.
func (m *Manager) SaveReplay(ctx context.Context, replay model.Replay, carPlayerMap map[string]string, frames []byte) error {
	if !m.IsValid {
		return fmt.Errorf("storage is not connected")
	}

	metadata, err := json.Marshal(replay)
	if err != nil {
		return fmt.Errorf("marshaling replay metadata: %w", err)
	}
	carMap, err := json.Marshal(carPlayerMap)
	if err != nil {
		return fmt.Errorf("marshaling car map: %w", err)
	}

	record := ReplayRecord{
		ID:           replay.ID,
		MapName:      replay.MapName,
		MatchType:    replay.MatchType,
		GameType:     replay.GameType,
		Date:         replay.Date,
		Duration:     replay.Duration,
		PlayerCount:  len(replay.Players),
		FrameBytes:   len(frames),
		Metadata:     datatypes.JSON(metadata),
		CarPlayerMap: datatypes.JSON(carMap),
		Frames:       frames,
	}

	err = m.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("saving replay %s: %w", replay.ID, err)
	}

	m.Logger.Debug().Str("replay", replay.ID).Int("frame_bytes", len(frames)).Msg("Replay saved")
	return nil
}

// GetReplay loads the metadata document for one replay.
func (m *Manager) GetReplay(ctx context.Context, id string) (*model.Replay, error) {
	var record ReplayRecord
	err := m.DB.WithContext(ctx).
		Select("id", "metadata").
		First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading replay %s: %w", id, err)
	}

	var replay model.Replay
	if err := json.Unmarshal(record.Metadata, &replay); err != nil {
		return nil, fmt.Errorf("decoding replay %s metadata: %w", id, err)
	}
	return &replay, nil
}

// GetFrames loads the encoded frame stream for one replay.
func (m *Manager) GetFrames(ctx context.Context, id string) ([]byte, error) {
	var record ReplayRecord
	err := m.DB.WithContext(ctx).
		Select("id", "frames").
		First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading frames for %s: %w", id, err)
	}
	return record.Frames, nil
}

// GetCarPlayerMap loads the car-to-player binding for one replay.
func (m *Manager) GetCarPlayerMap(ctx context.Context, id string) (map[string]string, error) {
	var record ReplayRecord
	err := m.DB.WithContext(ctx).
		Select("id", "car_player_map").
		First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading car map for %s: %w", id, err)
	}

	binding := map[string]string{}
	if len(record.CarPlayerMap) > 0 {
		if err := json.Unmarshal(record.CarPlayerMap, &binding); err != nil {
			return nil, fmt.Errorf("decoding car map for %s: %w", id, err)
		}
	}
	return binding, nil
}

// ListReplays returns summaries of the most recently stored replays.
func (m *Manager) ListReplays(ctx context.Context, limit int) ([]ReplaySummary, error) {
	if limit <= 0 {
		limit = 100
	}
	var summaries []ReplaySummary
	err := m.DB.WithContext(ctx).
		Model(&ReplayRecord{}).
		Order("created_at DESC").
		Limit(limit).
		Find(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("listing replays: %w", err)
	}
	return summaries, nil
}

// DeleteReplay removes one stored replay.
func (m *Manager) DeleteReplay(ctx context.Context, id string) error {
	result := m.DB.WithContext(ctx).Delete(&ReplayRecord{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("deleting replay %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
