package extract

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlviewer/telemetry/internal/model"
)

func TestBuildTimeline_ExplicitGoals(t *testing.T) {
	doc := map[string]any{
		"header_size": 1,
		"properties": map[string]any{
			"RecordFPS": 30.0,
			"Goals": []any{
				map[string]any{"frame": 300, "PlayerName": "Alpha", "PlayerTeam": 0},
				map[string]any{"frame": 1500, "PlayerName": "Bravo", "PlayerTeam": 1},
			},
		},
	}
	ents := entitiesWith(
		model.Player{Key: "steam_1", Name: "Alpha", Team: 0},
		model.Player{Key: "steam_2", Name: "Bravo", Team: 1},
	)

	events := BuildTimeline(doc, ents, 120, Options{}.withDefaults())

	require.Len(t, events, 4)
	assert.Equal(t, model.EventMatchStart, events[0].Type)
	assert.Equal(t, 0.0, events[0].Time)

	assert.Equal(t, model.EventGoal, events[1].Type)
	assert.Equal(t, 10.0, events[1].Time)
	assert.Equal(t, "steam_1", events[1].PlayerKey)
	require.NotNil(t, events[1].Team)
	assert.Equal(t, 0, *events[1].Team)

	assert.Equal(t, 50.0, events[2].Time)
	assert.Equal(t, "steam_2", events[2].PlayerKey)

	assert.Equal(t, model.EventMatchEnd, events[3].Type)
	assert.Equal(t, 120.0, events[3].Time)
}

func TestBuildTimeline_UnknownScorerKeepsName(t *testing.T) {
	doc := map[string]any{
		"header_size": 1,
		"properties": map[string]any{
			"Goals": []any{
				map[string]any{"frame": 60, "PlayerName": "Stranger", "PlayerTeam": 0},
			},
		},
	}

	events := BuildTimeline(doc, newEntities(), 100, Options{}.withDefaults())

	require.Len(t, events, 3)
	assert.Equal(t, "Stranger", events[1].PlayerKey)
	assert.Equal(t, 2.0, events[1].Time)
}

func TestBuildTimeline_InferredGoals(t *testing.T) {
	ents := entitiesWith(
		model.Player{Key: "a", Name: "A", Team: 0},
		model.Player{Key: "b", Name: "B", Team: 0},
	)
	ents.setTeam("0", "Blue", 2, true)
	ents.setTeam("1", "Orange", 0, true)

	events := BuildTimeline(map[string]any{}, ents, 300, Options{}.withDefaults())

	require.Len(t, events, 4)
	assert.Equal(t, model.EventGoalInferred, events[1].Type)
	assert.Equal(t, 100.0, events[1].Time)
	assert.Equal(t, "a", events[1].PlayerKey)
	assert.Equal(t, model.EventGoalInferred, events[2].Type)
	assert.Equal(t, 200.0, events[2].Time)
	assert.Equal(t, "b", events[2].PlayerKey, "scorers rotate round robin")
}

func TestBuildTimeline_ScoreWithoutPlayersInfersNothing(t *testing.T) {
	ents := newEntities()
	ents.setTeam("1", "Orange", 3, true)

	events := BuildTimeline(map[string]any{}, ents, 300, Options{}.withDefaults())

	require.Len(t, events, 2)
	assert.Equal(t, model.EventMatchStart, events[0].Type)
	assert.Equal(t, model.EventMatchEnd, events[1].Type)
}

func TestBuildTimeline_AlwaysSorted(t *testing.T) {
	doc := map[string]any{
		"header_size": 1,
		"properties": map[string]any{
			"Goals": []any{
				map[string]any{"frame": 9000, "PlayerName": "A", "PlayerTeam": 0},
				map[string]any{"frame": 30, "PlayerName": "B", "PlayerTeam": 1},
			},
		},
	}

	events := BuildTimeline(doc, newEntities(), 400, Options{}.withDefaults())

	assert.True(t, sort.SliceIsSorted(events, func(i, j int) bool {
		return events[i].Time < events[j].Time
	}))
}
