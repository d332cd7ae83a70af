package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlviewer/telemetry/internal/model"
)

func TestProcess_EndToEnd(t *testing.T) {
	doc := headerDoc(
		pair("Teams", arrayProp(teamEntry(3, "Blue Squad"), teamEntry(1, "Orange Squad"))),
		pair("PlayerStats", arrayProp(
			statsEntry("Alpha", 0, "76561198000000000", "Steam", 4),
			statsEntry("Bravo", 0, "0", "", 5),
			statsEntry("Charlie", 1, "0", "", 6),
		)),
	)
	doc["network_frames"] = []any{
		networkFrame(0,
			map[string]any{"position": []any{0.0, 0.0, 93.0}},
			map[string]any{
				"car_4": map[string]any{"position": []any{10.0, 0.0, 17.0}},
				"car_5": map[string]any{"position": []any{20.0, 0.0, 17.0}},
				"car_6": map[string]any{"position": []any{30.0, 0.0, 17.0}},
			},
		),
		networkFrame(1.0,
			map[string]any{"position": []any{0.0, 100.0, 93.0}},
			map[string]any{
				"car_4": map[string]any{"position": []any{11.0, 0.0, 17.0}},
			},
		),
	}

	res, err := Process("r1", doc, Options{})
	require.NoError(t, err)

	assert.Equal(t, "r1", res.Replay.ID)
	assert.Equal(t, 3, res.Replay.Teams["0"].Score)
	assert.Equal(t, 1, res.Replay.Teams["1"].Score)
	require.Len(t, res.Replay.Players, 3)
	assert.Contains(t, res.Replay.Players, "steam_76561198000000000")

	require.Len(t, res.Frames, 2)
	assert.Equal(t, "steam_76561198000000000", res.CarPlayerMap["car_4"])
	assert.Equal(t, [3]float64{10, 0, 17}, res.Frames[0].Cars["steam_76561198000000000"].Position)

	// the match end event lands on the computed duration
	last := res.Replay.Timeline[len(res.Replay.Timeline)-1]
	assert.Equal(t, res.Replay.Duration, last.Time)
}

func TestProcess_SingleResolvableCarSynthesizesVirtual(t *testing.T) {
	doc := headerDoc(
		pair("PlayerStats", arrayProp(
			statsEntry("Alpha", 0, "1", "Steam", 4),
			statsEntry("Bravo", 1, "0", "", 99),
		)),
	)
	// two distinct car actor ids in the body; only actor 4 matches a
	// known player, so the second player gets a virtual car
	doc["network_frames"] = []any{
		networkFrame(0, nil, map[string]any{
			"car_4": map[string]any{"position": []any{1.0, 1.0, 17.0}},
		}),
		networkFrame(1.0, nil, map[string]any{
			"car_4": map[string]any{"position": []any{2.0, 1.0, 17.0}},
		}),
	}

	res, err := Process("r2", doc, Options{})
	require.NoError(t, err)

	assert.Equal(t, "steam_1", res.CarPlayerMap["car_4"])
	assert.Equal(t, "name_Bravo", res.CarPlayerMap["virtual_car_1000"])

	for _, frame := range res.Frames {
		require.Len(t, frame.Cars, 2)
		assert.Contains(t, frame.Cars, "steam_1")
		assert.Contains(t, frame.Cars, "name_Bravo")
	}
}

func TestProcess_NoFrames(t *testing.T) {
	doc := headerDoc(
		pair("PlayerStats", arrayProp(statsEntry("Alpha", 0, "1", "Steam", 4))),
	)

	_, err := Process("r3", doc, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoExtractableFrames)
	assert.Contains(t, err.Error(), "r3")
}

func TestComputeDuration(t *testing.T) {
	opts := Options{}.withDefaults()

	t.Run("num frames at record rate", func(t *testing.T) {
		doc := headerDoc(
			pair("NumFrames", intProp(9000)),
			pair("RecordFPS", prop("FloatProperty", map[string]any{"float": 30.0})),
		)
		assert.Equal(t, 300.0, computeDuration(doc, nil, opts))
	})

	t.Run("total seconds played", func(t *testing.T) {
		doc := map[string]any{
			"header_size": 1,
			"properties":  map[string]any{"TotalSecondsPlayed": 412.5},
		}
		assert.Equal(t, 412.5, computeDuration(doc, nil, opts))
	})

	t.Run("last frame time", func(t *testing.T) {
		frames := []model.Frame{{Time: 0}, {Time: 21}, {Time: 42}}
		assert.Equal(t, 42.0, computeDuration(map[string]any{}, frames, opts))
	})

	t.Run("default", func(t *testing.T) {
		assert.Equal(t, DefaultDuration, computeDuration(map[string]any{}, nil, opts))
	})
}

func TestCollectCarObservations(t *testing.T) {
	doc := map[string]any{
		"network_frames": []any{
			networkFrame(0, nil, map[string]any{
				"car_4": map[string]any{"actor_id": 4, "PlayerName": "Alpha"},
			}),
			networkFrame(1.0, nil, map[string]any{
				"car_4": map[string]any{"team": 0},
				"car_5": map[string]any{},
			}),
		},
	}

	obs := CollectCarObservations(doc)

	require.Len(t, obs, 2)
	byID := map[string]CarObservation{}
	for _, o := range obs {
		byID[o.CarID] = o
	}

	first := byID["car_4"]
	require.NotNil(t, first.ActorID)
	assert.Equal(t, 4, *first.ActorID)
	assert.Equal(t, "Alpha", first.PlayerName)
	require.NotNil(t, first.Team, "signals accumulate across sightings")
	assert.Equal(t, 0, *first.Team)

	second := byID["car_5"]
	assert.Nil(t, second.ActorID)
	assert.Empty(t, second.PlayerName)
}
