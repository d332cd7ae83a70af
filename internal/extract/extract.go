// Package extract turns the replay decoder's loosely-typed JSON output
// into the canonical replay model: normalized teams and players, a bound
// car-to-player map, an ordered frame sequence, and a coarse event
// timeline. Extraction is a pure function of the document; it degrades to
// defaults on missing fields and only fails outright when no frame data
// exists at all.
package extract

import (
	"fmt"
	"log/slog"

	"github.com/rlviewer/telemetry/internal/model"
	"github.com/rlviewer/telemetry/internal/props"
)

// Defaults for the tunable extraction limits.
const (
	DefaultTimestampCap = 600
	DefaultFrameCeiling = 3000
	DefaultRecordFPS    = 30.0
	DefaultDuration     = 300.0
)

// Options carries the extraction limits and the logger. The zero value is
// usable; missing fields fall back to the defaults above.
type Options struct {
	// TimestampCap bounds the distinct timestamps considered per shape.
	TimestampCap int
	// FrameCeiling bounds the final frame count after extraction.
	FrameCeiling int
	// RecordFPS converts header frame indices to seconds when the
	// document does not name its own rate.
	RecordFPS float64
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.TimestampCap <= 0 {
		o.TimestampCap = DefaultTimestampCap
	}
	if o.FrameCeiling <= 0 {
		o.FrameCeiling = DefaultFrameCeiling
	}
	if o.RecordFPS <= 0 {
		o.RecordFPS = DefaultRecordFPS
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Result is one extraction run's complete output.
type Result struct {
	Replay model.Replay
	Frames []model.Frame
	// CarPlayerMap is retained for the codec path and debug surfaces;
	// it is not part of the external metadata document.
	CarPlayerMap Binding
}

// Process runs the full pipeline over one decoded document: entities,
// bindings, frames, timeline. The only fatal condition is a document with
// no extractable frames.
func Process(id string, doc map[string]any, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	log := opts.Logger.With("replay_id", id)

	ents := ExtractEntities(doc, log)
	binding := BindCars(CollectCarObservations(doc), ents, log)

	frames, err := ExtractFrames(doc, binding, ents, opts, log)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", id, err)
	}

	duration := computeDuration(doc, frames, opts)

	replay := model.Replay{
		ID:       id,
		Teams:    ents.Teams,
		Players:  ents.Players,
		Duration: duration,
		Timeline: BuildTimeline(doc, ents, duration, opts),
	}
	applyMatchFields(doc, &replay)

	log.Info("replay processed",
		"players", len(replay.Players),
		"frames", len(frames),
		"duration", duration)

	return &Result{Replay: replay, Frames: frames, CarPlayerMap: binding}, nil
}

// CollectCarObservations scans every body shape for car actors and the
// identity signals embedded in their data objects. Encounter order is
// preserved for the binder's last-resort pairing.
func CollectCarObservations(doc map[string]any) []CarObservation {
	var obs []CarObservation
	seen := map[string]int{}

	record := func(carID string, data map[string]any) {
		idx, ok := seen[carID]
		if !ok {
			idx = len(obs)
			seen[carID] = idx
			obs = append(obs, CarObservation{CarID: carID})
		}
		o := &obs[idx]
		if o.ActorID == nil {
			if id, found := props.AsInt(data["actor_id"]); found {
				o.ActorID = &id
			}
		}
		if o.PlayerName == "" {
			for _, key := range []string{"PlayerName", "Player", "OwnerName", "Owner", "name"} {
				if name, found := props.AsString(data[key]); found && name != "" {
					o.PlayerName = name
					break
				}
			}
		}
		if o.Team == nil {
			for _, key := range []string{"team", "team_num"} {
				if team, found := props.AsInt(data[key]); found {
					o.Team = &team
					break
				}
			}
		}
	}

	for _, section := range []string{"network_frames", "frames"} {
		for _, e := range bodyEntries(doc[section]) {
			obj, ok := props.AsObject(e)
			if !ok {
				continue
			}
			cars, ok := props.AsObject(obj["cars"])
			if !ok {
				continue
			}
			for carID, carData := range cars {
				if data, ok := props.AsObject(carData); ok {
					record(carID, data)
				}
			}
		}
	}

	for _, e := range bodyEntries(doc["ticks"]) {
		obj, ok := props.AsObject(e)
		if !ok {
			continue
		}
		actors, ok := props.AsObject(obj["actors"])
		if !ok {
			continue
		}
		for actorID, actorData := range actors {
			data, ok := props.AsObject(actorData)
			if !ok || props.StringValue(data["type"]) != "car" {
				continue
			}
			record(actorID, data)
		}
	}

	return obs
}

// computeDuration resolves the replay length: the header's frame count at
// its record rate, an explicit total-seconds field, the last frame's
// timestamp, then a fixed default.
func computeDuration(doc map[string]any, frames []model.Frame, opts Options) float64 {
	header := map[string]any{}
	for _, entry := range headerBag(doc) {
		header[entry.Key] = entry.Value()
	}

	if numFrames, ok := props.AsFloat(header["NumFrames"]); ok {
		fps, fpsOK := props.AsFloat(header["RecordFPS"])
		if !fpsOK || fps <= 0 {
			fps = opts.RecordFPS
		}
		if numFrames > 0 && fps > 0 {
			return numFrames / fps
		}
	}

	if fp := flatProps(doc); fp != nil {
		if secs, ok := props.AsFloat(fp["TotalSecondsPlayed"]); ok && secs > 0 {
			return secs
		}
	}

	if len(frames) > 0 && frames[len(frames)-1].Time > 0 {
		return frames[len(frames)-1].Time
	}
	return DefaultDuration
}

// applyMatchFields copies the descriptive match fields out of whichever
// property variant is present.
func applyMatchFields(doc map[string]any, replay *model.Replay) {
	header := map[string]any{}
	for _, entry := range headerBag(doc) {
		header[entry.Key] = entry.Value()
	}

	pick := func(keys ...string) string {
		for _, key := range keys {
			if s, ok := props.AsString(header[key]); ok && s != "" {
				return s
			}
		}
		return ""
	}

	replay.MapName = pick("MapName")
	replay.MatchType = pick("MatchType")
	replay.Date = pick("Date")
	replay.GameType = pick("GameMode")

	if fp := flatProps(doc); fp != nil {
		if replay.MapName == "" {
			replay.MapName, _ = props.AsString(fp["MapName"])
		}
		if replay.MatchType == "" {
			replay.MatchType, _ = props.AsString(fp["MatchType"])
		}
		if replay.Date == "" {
			replay.Date, _ = props.AsString(fp["Date"])
		}
	}
	if replay.GameType == "" {
		replay.GameType, _ = props.AsString(doc["game_type"])
	}
}
