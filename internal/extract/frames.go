package extract

import (
	"errors"
	"log/slog"
	"math"
	"sort"

	"github.com/rlviewer/telemetry/internal/model"
	"github.com/rlviewer/telemetry/internal/props"
)

// ErrNoExtractableFrames is returned when none of the known body shapes
// yields a single frame. Fabricating frames from nothing is not a valid
// fallback; the job fails instead.
var ErrNoExtractableFrames = errors.New("extract: no frames found in any known replay structure")

// frameShape extracts frames from one known body layout. Shapes are tried
// in fixed order; the first one producing at least one frame wins.
type frameShape struct {
	name    string
	extract func(doc map[string]any, binding Binding, opts Options) []model.Frame
}

var frameShapes = []frameShape{
	{"network_frames", extractNetworkFrames},
	{"ticks", extractTicks},
	{"frames", extractDirectFrames},
}

// ExtractFrames walks the body shapes and produces the canonical ordered
// frame sequence, tagged with player keys via the binding map and padded
// with virtual car states for synthesized bindings.
func ExtractFrames(doc map[string]any, binding Binding, ents *Entities, opts Options, log *slog.Logger) ([]model.Frame, error) {
	var frames []model.Frame
	for _, shape := range frameShapes {
		frames = shape.extract(doc, binding, opts)
		if len(frames) > 0 {
			log.Info("frames extracted", "shape", shape.name, "frames", len(frames))
			break
		}
	}
	if len(frames) == 0 {
		return nil, ErrNoExtractableFrames
	}

	applyDeltas(frames)
	addVirtualCars(frames, binding, ents)
	frames = capFrameCount(frames, opts.FrameCeiling)
	return frames, nil
}

// bodyEntries returns the entry list of a body section, accepting both a
// bare array and a {"frames": [...]} wrapper.
func bodyEntries(v any) []any {
	if arr, ok := props.AsArray(v); ok {
		return arr
	}
	if obj, ok := props.AsObject(v); ok {
		arr, _ := props.AsArray(obj["frames"])
		return arr
	}
	return nil
}

// collectTimestamps gathers the distinct "time" values across entries,
// sorted ascending and downsampled to the limit.
func collectTimestamps(entries []any, limit int) []float64 {
	seen := map[float64]bool{}
	for _, e := range entries {
		obj, ok := props.AsObject(e)
		if !ok {
			continue
		}
		if t, ok := props.AsFloat(obj["time"]); ok {
			seen[t] = true
		}
	}
	ts := make([]float64, 0, len(seen))
	for t := range seen {
		ts = append(ts, t)
	}
	sort.Float64s(ts)
	return downsampleTimestamps(ts, limit)
}

// downsampleTimestamps keeps every stride-th timestamp when the count
// exceeds the limit. The stride rounds up so the retained count never
// exceeds the limit; the last retained timestamp stays within one stride
// interval of the true end.
func downsampleTimestamps(ts []float64, limit int) []float64 {
	if limit <= 0 || len(ts) <= limit {
		return ts
	}
	stride := (len(ts) + limit - 1) / limit
	out := make([]float64, 0, limit)
	for i := 0; i < len(ts); i += stride {
		out = append(out, ts[i])
	}
	return out
}

func extractNetworkFrames(doc map[string]any, binding Binding, opts Options) []model.Frame {
	entries := bodyEntries(doc["network_frames"])
	if len(entries) == 0 {
		return nil
	}

	var frames []model.Frame
	for _, t := range collectTimestamps(entries, opts.TimestampCap) {
		frame := newFrame(t)
		for _, e := range entries {
			obj, ok := props.AsObject(e)
			if !ok {
				continue
			}
			if ft, ok := props.AsFloat(obj["time"]); !ok || ft != t {
				continue
			}
			applyDirectSample(&frame, obj, binding)
		}
		frames = append(frames, frame)
	}
	return frames
}

func extractTicks(doc map[string]any, binding Binding, opts Options) []model.Frame {
	entries := bodyEntries(doc["ticks"])
	if len(entries) == 0 {
		return nil
	}

	var frames []model.Frame
	for _, t := range collectTimestamps(entries, opts.TimestampCap) {
		frame := newFrame(t)
		for _, e := range entries {
			obj, ok := props.AsObject(e)
			if !ok {
				continue
			}
			if ft, ok := props.AsFloat(obj["time"]); !ok || ft != t {
				continue
			}
			actors, ok := props.AsObject(obj["actors"])
			if !ok {
				continue
			}
			for actorID, actorData := range actors {
				actor, ok := props.AsObject(actorData)
				if !ok {
					continue
				}
				switch props.StringValue(actor["type"]) {
				case "ball":
					applyBallSample(&frame.Ball, actor)
				case "car":
					applyCarSample(&frame, actorID, actorData, binding)
				}
			}
		}
		frames = append(frames, frame)
	}
	return frames
}

func extractDirectFrames(doc map[string]any, binding Binding, opts Options) []model.Frame {
	entries := bodyEntries(doc["frames"])
	if len(entries) == 0 {
		return nil
	}

	timestamps := make([]float64, 0, len(entries))
	timed := true
	for _, e := range entries {
		obj, ok := props.AsObject(e)
		if !ok {
			continue
		}
		t, ok := props.AsFloat(obj["time"])
		if !ok {
			timed = false
			break
		}
		timestamps = append(timestamps, t)
	}

	if timed && len(timestamps) > 0 {
		sort.Float64s(timestamps)
		timestamps = dedupe(timestamps)
		timestamps = downsampleTimestamps(timestamps, opts.TimestampCap)

		var frames []model.Frame
		for _, t := range timestamps {
			frame := newFrame(t)
			for _, e := range entries {
				obj, ok := props.AsObject(e)
				if !ok {
					continue
				}
				if ft, ok := props.AsFloat(obj["time"]); !ok || ft != t {
					continue
				}
				applyDirectSample(&frame, obj, binding)
			}
			frames = append(frames, frame)
		}
		return frames
	}

	// Entries without timestamps get synthetic ones at the record rate.
	// Each retained timestamp keeps its source index so frame i carries
	// entry i's data, not entry 0's.
	var frames []model.Frame
	for _, i := range downsampleIndices(len(entries), opts.TimestampCap) {
		frame := newFrame(float64(i) / opts.RecordFPS)
		if obj, ok := props.AsObject(entries[i]); ok {
			applyDirectSample(&frame, obj, binding)
		}
		frames = append(frames, frame)
	}
	return frames
}

// applyDirectSample reads one entry's ball and car objects into the frame.
func applyDirectSample(frame *model.Frame, obj map[string]any, binding Binding) {
	if ball, ok := props.AsObject(obj["ball"]); ok {
		applyBallSample(&frame.Ball, ball)
	}
	if cars, ok := props.AsObject(obj["cars"]); ok {
		for carID, carData := range cars {
			applyCarSample(frame, carID, carData, binding)
		}
	}
}

// downsampleIndices is downsampleTimestamps over entry positions: every
// stride-th index when n exceeds the limit, all of them otherwise.
func downsampleIndices(n, limit int) []int {
	stride := 1
	if limit > 0 && n > limit {
		stride = (n + limit - 1) / limit
	}
	out := make([]int, 0, n/stride+1)
	for i := 0; i < n; i += stride {
		out = append(out, i)
	}
	return out
}

func dedupe(sorted []float64) []float64 {
	out := sorted[:0]
	for i, t := range sorted {
		if i == 0 || t != sorted[i-1] {
			out = append(out, t)
		}
	}
	return out
}

func newFrame(t float64) model.Frame {
	return model.Frame{
		Time: t,
		Ball: model.NewBallState(),
		Cars: map[string]model.CarState{},
	}
}

// applyBallSample reads a ball sample into the frame state, accepting the
// position/loc, rotation/rot, and velocity/vel alias pairs.
func applyBallSample(ball *model.BallState, data map[string]any) {
	if v, ok := vectorAlias(data, "position", "loc"); ok {
		ball.Position = v
	}
	if q, ok := quatAlias(data, "rotation", "rot"); ok {
		ball.Rotation = q
	}
	if v, ok := vectorAlias(data, "velocity", "vel"); ok {
		ball.Velocity = v
	}
}

// applyCarSample resolves the car's player key through the binding map and
// writes its state into the frame. Unbound cars are dropped.
func applyCarSample(frame *model.Frame, carID string, carData any, binding Binding) {
	key, bound := binding[carID]
	if !bound {
		key, bound = binding["car_"+carID]
	}
	if !bound {
		return
	}
	data, ok := props.AsObject(carData)
	if !ok {
		return
	}

	car := model.NewCarState()
	if v, ok := vectorAlias(data, "position", "loc"); ok {
		car.Position = v
	}
	if q, ok := quatAlias(data, "rotation", "rot"); ok {
		car.Rotation = q
	}
	if b, ok := props.AsInt(data["boost"]); ok {
		car.Boost = b
	} else if b, ok := props.AsInt(data["boost_amount"]); ok {
		car.Boost = b
	}
	frame.Cars[key] = car
}

func vectorAlias(data map[string]any, primary, alias string) ([3]float64, bool) {
	for _, key := range []string{primary, alias} {
		if v, ok := props.FloatSlice(data[key], 3); ok {
			return [3]float64{v[0], v[1], v[2]}, true
		}
	}
	return [3]float64{}, false
}

func quatAlias(data map[string]any, primary, alias string) ([4]float64, bool) {
	for _, key := range []string{primary, alias} {
		if v, ok := props.FloatSlice(data[key], 4); ok {
			return [4]float64{v[0], v[1], v[2], v[3]}, true
		}
	}
	return [4]float64{}, false
}

func applyDeltas(frames []model.Frame) {
	for i := range frames {
		if i == 0 {
			frames[i].Delta = 0
			continue
		}
		frames[i].Delta = frames[i].Time - frames[i-1].Time
	}
}

// addVirtualCars fills every frame with procedurally animated states for
// virtual car bindings, so no player is ever missing an on-field avatar.
func addVirtualCars(frames []model.Frame, binding Binding, ents *Entities) {
	for carID, key := range binding {
		if len(carID) < len(VirtualCarPrefix) || carID[:len(VirtualCarPrefix)] != VirtualCarPrefix {
			continue
		}
		team := ents.Players[key].Team
		for i := range frames {
			if _, present := frames[i].Cars[key]; present {
				continue
			}
			frames[i].Cars[key] = virtualCarState(frames[i].Time, team)
		}
	}
}

// virtualCarState parks the avatar on its team's side of the field with a
// slow sinusoidal sway so it reads as alive in the viewer.
func virtualCarState(t float64, team int) model.CarState {
	y := 3000.0
	if team != 0 {
		y = -3000.0
	}
	return model.CarState{
		Position: [3]float64{500 * math.Sin(t*0.3), y, 17},
		Rotation: [4]float64{0, 0, math.Sin(t * 0.1), math.Cos(t * 0.1)},
		Boost:    model.DefaultBoost,
	}
}

// capFrameCount resamples the sequence by proportional index when it
// exceeds the ceiling. The last frame is always retained so the total
// elapsed duration survives the resample.
func capFrameCount(frames []model.Frame, ceiling int) []model.Frame {
	if ceiling <= 0 || len(frames) <= ceiling {
		return frames
	}
	step := float64(len(frames)) / float64(ceiling)
	out := make([]model.Frame, 0, ceiling)
	for i := 0; i < ceiling; i++ {
		idx := int(float64(i) * step)
		if i == ceiling-1 {
			idx = len(frames) - 1
		} else if idx > len(frames)-1 {
			idx = len(frames) - 1
		}
		out = append(out, frames[idx])
	}
	applyDeltas(out)
	return out
}
