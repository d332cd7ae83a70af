package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlviewer/telemetry/internal/model"
)

func intPtr(v int) *int { return &v }

func entitiesWith(players ...model.Player) *Entities {
	ents := newEntities()
	for _, p := range players {
		ents.addPlayer(p)
	}
	return ents
}

func TestBindCars_DirectKey(t *testing.T) {
	ents := entitiesWith(model.Player{Key: "steam_1", Name: "Alpha", Team: 0})

	binding := BindCars([]CarObservation{{CarID: "steam_1"}}, ents, testLogger())

	assert.Equal(t, Binding{"steam_1": "steam_1"}, binding)
}

func TestBindCars_ParsedActorID(t *testing.T) {
	ents := entitiesWith(model.Player{Key: "steam_1", Name: "Alpha", Team: 0, ActorID: intPtr(4)})

	tests := []struct {
		name  string
		carID string
	}{
		{"prefixed", "car_4"},
		{"bare integer", "4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			binding := BindCars([]CarObservation{{CarID: tt.carID}}, ents, testLogger())
			assert.Equal(t, "steam_1", binding[tt.carID])
		})
	}
}

func TestBindCars_EmbeddedActorID(t *testing.T) {
	ents := entitiesWith(model.Player{Key: "steam_1", Name: "Alpha", Team: 0, ActorID: intPtr(9)})

	binding := BindCars([]CarObservation{{CarID: "opaque", ActorID: intPtr(9)}}, ents, testLogger())

	assert.Equal(t, "steam_1", binding["opaque"])
}

func TestBindCars_NameMatch(t *testing.T) {
	ents := entitiesWith(model.Player{Key: "steam_1", Name: "Alpha", Team: 0})

	binding := BindCars([]CarObservation{{CarID: "x", PlayerName: "Alpha"}}, ents, testLogger())
	assert.Equal(t, "steam_1", binding["x"])
}

func TestBindCars_NameMatchIsCaseExact(t *testing.T) {
	// Encounter order would pick the first player; an exact name match on
	// the second proves the name strategy ran and compared case exactly.
	ents := entitiesWith(
		model.Player{Key: "steam_1", Name: "Alpha", Team: 0},
		model.Player{Key: "steam_2", Name: "alpha", Team: 1},
	)

	binding := BindCars([]CarObservation{{CarID: "x", PlayerName: "alpha"}}, ents, testLogger())

	assert.Equal(t, "steam_2", binding["x"])
}

func TestBindCars_SoleTeamCandidate(t *testing.T) {
	ents := entitiesWith(
		model.Player{Key: "steam_1", Name: "Alpha", Team: 0},
		model.Player{Key: "steam_2", Name: "Bravo", Team: 1},
	)

	binding := BindCars([]CarObservation{{CarID: "a", Team: intPtr(1)}}, ents, testLogger())

	assert.Equal(t, "steam_2", binding["a"])
}

func TestBindCars_TeamWithTwoCandidatesNotBoundByTeam(t *testing.T) {
	ents := entitiesWith(
		model.Player{Key: "steam_1", Name: "Alpha", Team: 0},
		model.Player{Key: "steam_2", Name: "Bravo", Team: 0},
	)

	binding := BindCars([]CarObservation{{CarID: "a", Team: intPtr(0)}}, ents, testLogger())

	// the ambiguous team signal is ignored; encounter-order pairing takes
	// over and binds the single car to the first player
	assert.Equal(t, "steam_1", binding["a"])
}

func TestBindCars_EncounterOrderFallback(t *testing.T) {
	ents := entitiesWith(
		model.Player{Key: "steam_1", Name: "Alpha", Team: 0},
		model.Player{Key: "steam_2", Name: "Bravo", Team: 1},
	)

	binding := BindCars([]CarObservation{{CarID: "c1"}, {CarID: "c2"}}, ents, testLogger())

	assert.Equal(t, "steam_1", binding["c1"])
	assert.Equal(t, "steam_2", binding["c2"])
}

func TestBindCars_HigherStrategyWinsOverEncounterOrder(t *testing.T) {
	ents := entitiesWith(
		model.Player{Key: "steam_1", Name: "Alpha", Team: 0, ActorID: intPtr(7)},
		model.Player{Key: "steam_2", Name: "Bravo", Team: 1},
	)

	// car_7 resolves by actor id even though it is observed second
	binding := BindCars([]CarObservation{{CarID: "mystery"}, {CarID: "car_7"}}, ents, testLogger())

	assert.Equal(t, "steam_1", binding["car_7"])
	assert.Equal(t, "steam_2", binding["mystery"])
}

func TestBindCars_VirtualCarForUnmatchedPlayer(t *testing.T) {
	ents := entitiesWith(
		model.Player{Key: "steam_1", Name: "Alpha", Team: 0, ActorID: intPtr(4)},
		model.Player{Key: "name_Bravo", Name: "Bravo", Team: 1},
	)

	binding := BindCars([]CarObservation{{CarID: "car_4"}}, ents, testLogger())

	require.Len(t, binding, 2)
	assert.Equal(t, "steam_1", binding["car_4"])
	assert.Equal(t, "name_Bravo", binding["virtual_car_1000"])
}

func TestBindCars_AllPlayersAlwaysBound(t *testing.T) {
	ents := entitiesWith(
		model.Player{Key: "a", Name: "A", Team: 0},
		model.Player{Key: "b", Name: "B", Team: 0},
		model.Player{Key: "c", Name: "C", Team: 1},
	)

	binding := BindCars(nil, ents, testLogger())

	bound := binding.BoundPlayers()
	assert.True(t, bound["a"] && bound["b"] && bound["c"])
	assert.Len(t, binding, 3)
	for carID := range binding {
		assert.Contains(t, carID, VirtualCarPrefix)
	}
}

func TestBindCars_UnknownCarStaysUnbound(t *testing.T) {
	ents := entitiesWith(model.Player{Key: "steam_1", Name: "Alpha", Team: 0, ActorID: intPtr(4)})

	binding := BindCars([]CarObservation{{CarID: "car_4"}, {CarID: "car_99"}}, ents, testLogger())

	assert.Equal(t, "steam_1", binding["car_4"])
	_, bound := binding["car_99"]
	assert.False(t, bound, "a car with no matching player is dropped, not invented")
}
