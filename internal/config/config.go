package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ExtractConfig holds the extraction pipeline limits.
type ExtractConfig struct {
	TimestampCap int     `json:"timestampCap" mapstructure:"timestampCap"`
	FrameCeiling int     `json:"frameCeiling" mapstructure:"frameCeiling"`
	RecordFPS    float64 `json:"recordFps" mapstructure:"recordFps"`
}

// JobConfig holds the background job settings.
type JobConfig struct {
	TTL     time.Duration `json:"ttl" mapstructure:"ttl"`
	Workers int           `json:"workers" mapstructure:"workers"`
}

// OTelConfig holds the OpenTelemetry export settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("dataDir", "./data")

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.corsOrigins", []string{"*"})

	viper.SetDefault("extract.timestampCap", 600)
	viper.SetDefault("extract.frameCeiling", 3000)
	viper.SetDefault("extract.recordFps", 30.0)

	viper.SetDefault("jobs.ttl", "1h")
	viper.SetDefault("jobs.workers", 2)

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "replays")
	viper.SetDefault("db.sqlitePath", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "replay-metrics")
	viper.SetDefault("influx.bucket", "replay_jobs")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "replay-telemetry")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetConfigName("telemetry.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetExtractConfig returns the extraction limits.
func GetExtractConfig() ExtractConfig {
	return ExtractConfig{
		TimestampCap: viper.GetInt("extract.timestampCap"),
		FrameCeiling: viper.GetInt("extract.frameCeiling"),
		RecordFPS:    viper.GetFloat64("extract.recordFps"),
	}
}

// GetJobConfig returns the background job settings.
func GetJobConfig() JobConfig {
	return JobConfig{
		TTL:     viper.GetDuration("jobs.ttl"),
		Workers: viper.GetInt("jobs.workers"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}
