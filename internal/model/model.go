// Package model defines the canonical replay entities shared by the
// extraction pipeline, the frame codec, and the storage layer. All
// entities live for one extraction run; only the frame sequence has an
// on-disk byte contract (see the framecodec package).
package model

// TeamUnset marks a player whose team was never observed.
const TeamUnset = -1

// Canonical team ids. A replay always carries exactly these two teams,
// synthesized with score 0 when the header never mentions them.
const (
	TeamBlueID   = "0"
	TeamOrangeID = "1"
)

// Default team names, applied only when the header carries none.
const (
	TeamBlueName   = "Blue"
	TeamOrangeName = "Orange"
)

// Frame-state defaults expected by the viewer client.
var (
	DefaultBallPosition = [3]float64{0, 0, 93}
	DefaultCarPosition  = [3]float64{0, 0, 17}
	IdentityRotation    = [4]float64{0, 0, 0, 1}
)

// DefaultBoost is the boost amount written when a car sample carries none.
const DefaultBoost = 33

// PlayerStats holds the scoreboard counters for one player.
type PlayerStats struct {
	Score   int `json:"score"`
	Goals   int `json:"goals"`
	Assists int `json:"assists"`
	Saves   int `json:"saves"`
	Shots   int `json:"shots"`
}

// merge fills s's zero counters from other without clobbering anything
// already counted.
func (s *PlayerStats) merge(other PlayerStats) {
	if s.Score == 0 {
		s.Score = other.Score
	}
	if s.Goals == 0 {
		s.Goals = other.Goals
	}
	if s.Assists == 0 {
		s.Assists = other.Assists
	}
	if s.Saves == 0 {
		s.Saves = other.Saves
	}
	if s.Shots == 0 {
		s.Shots = other.Shots
	}
}

// Player is one normalized participant. Key is the stable join key across
// teams, stats, actor bindings, and frames.
type Player struct {
	Key        string      `json:"id"`
	Name       string      `json:"name"`
	Team       int         `json:"team"`
	Platform   string      `json:"platform,omitempty"`
	IsBot      bool        `json:"is_bot"`
	ActorID    *int        `json:"actor_id,omitempty"`
	EpicID     string      `json:"epic_id,omitempty"`
	SteamID    string      `json:"steam_id,omitempty"`
	PSNID      string      `json:"psn_id,omitempty"`
	XboxID     string      `json:"xbox_id,omitempty"`
	PlatformID string      `json:"platform_id,omitempty"`
	Stats      PlayerStats `json:"stats"`
}

// Merge fills p's missing fields from other. Fields already present are
// preserved; the same key recurring in a different part of the tree must
// never clobber what an earlier pass captured.
func (p *Player) Merge(other Player) {
	if p.Name == "" {
		p.Name = other.Name
	}
	if p.Team == TeamUnset {
		p.Team = other.Team
	}
	if p.Platform == "" {
		p.Platform = other.Platform
	}
	if !p.IsBot {
		p.IsBot = other.IsBot
	}
	if p.ActorID == nil {
		p.ActorID = other.ActorID
	}
	if p.EpicID == "" {
		p.EpicID = other.EpicID
	}
	if p.SteamID == "" {
		p.SteamID = other.SteamID
	}
	if p.PSNID == "" {
		p.PSNID = other.PSNID
	}
	if p.XboxID == "" {
		p.XboxID = other.XboxID
	}
	if p.PlatformID == "" {
		p.PlatformID = other.PlatformID
	}
	p.Stats.merge(other.Stats)
}

// Team is one of the two match teams.
type Team struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// BallState is the ball transform of one frame.
type BallState struct {
	Position [3]float64 `json:"position"`
	Rotation [4]float64 `json:"rotation"`
	Velocity [3]float64 `json:"velocity"`
}

// NewBallState returns a ball at its resting defaults.
func NewBallState() BallState {
	return BallState{
		Position: DefaultBallPosition,
		Rotation: IdentityRotation,
	}
}

// CarState is one car transform of one frame.
type CarState struct {
	Position [3]float64 `json:"position"`
	Rotation [4]float64 `json:"rotation"`
	Boost    int        `json:"boost"`
}

// NewCarState returns a grounded car at its defaults.
func NewCarState() CarState {
	return CarState{
		Position: DefaultCarPosition,
		Rotation: IdentityRotation,
		Boost:    DefaultBoost,
	}
}

// Frame is one timestamped world sample. Cars is keyed by PlayerKey;
// unbound car actors never reach a frame.
type Frame struct {
	Time  float64             `json:"time"`
	Delta float64             `json:"delta"`
	Ball  BallState           `json:"ball"`
	Cars  map[string]CarState `json:"cars"`
}

// Timeline event types.
const (
	EventGoal         = "goal"
	EventGoalInferred = "goal_inferred"
	EventMatchStart   = "match_start"
	EventMatchEnd     = "match_end"
)

// TimelineEvent is one coarse match event. Events are always sorted
// ascending by time and bracketed by a start and an end event.
type TimelineEvent struct {
	Type      string  `json:"type"`
	Time      float64 `json:"time"`
	PlayerKey string  `json:"player_key,omitempty"`
	Team      *int    `json:"team,omitempty"`
}

// Replay is the normalized metadata document for one replay. Frames are
// never embedded here; they travel separately as a binary stream.
type Replay struct {
	ID        string            `json:"id"`
	Teams     map[string]Team   `json:"teams"`
	Players   map[string]Player `json:"players"`
	Timeline  []TimelineEvent   `json:"timeline"`
	Duration  float64           `json:"duration"`
	MapName   string            `json:"map_name,omitempty"`
	MatchType string            `json:"match_type,omitempty"`
	GameType  string            `json:"game_type,omitempty"`
	Date      string            `json:"date,omitempty"`
}
