package extract

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// virtualCarBase is the first synthesized car id. Synthesized ids never
// collide with decoder actor ids, which are small integers.
const virtualCarBase = 1000

// VirtualCarPrefix marks car ids invented for players without a resolvable
// car actor.
const VirtualCarPrefix = "virtual_car_"

// CarObservation is everything the binder may learn about one car actor
// from the frame body: its surface id plus any embedded identity signals.
type CarObservation struct {
	CarID      string
	ActorID    *int
	PlayerName string
	Team       *int
}

// Binding maps car ids to player keys. Once set, an entry is never
// rebound by a later strategy.
type Binding map[string]string

// BoundPlayers returns the set of player keys with at least one car.
func (b Binding) BoundPlayers() map[string]bool {
	bound := make(map[string]bool, len(b))
	for _, key := range b {
		bound[key] = true
	}
	return bound
}

// bindState carries the cascade's working state between strategies.
type bindState struct {
	obs     []CarObservation
	ents    *Entities
	binding Binding
}

func (s *bindState) carBound(carID string) bool {
	_, ok := s.binding[carID]
	return ok
}

func (s *bindState) playerBound(key string) bool {
	for _, bound := range s.binding {
		if bound == key {
			return true
		}
	}
	return false
}

func (s *bindState) bind(carID, key string) {
	if s.carBound(carID) {
		return
	}
	if _, known := s.ents.Players[key]; !known {
		return
	}
	s.binding[carID] = key
}

// unboundPlayers returns still-unbound player keys in encounter order.
func (s *bindState) unboundPlayers() []string {
	bound := s.binding.BoundPlayers()
	var keys []string
	for _, key := range s.ents.Order {
		if !bound[key] {
			keys = append(keys, key)
		}
	}
	return keys
}

func (s *bindState) done() bool {
	return len(s.unboundPlayers()) == 0
}

// bindStrategy is one independent binding heuristic. Strategies run in a
// fixed order and each one only fires while players remain unbound.
type bindStrategy struct {
	name  string
	apply func(*bindState)
}

var bindStrategies = []bindStrategy{
	{"direct_key", bindDirectKey},
	{"parsed_actor_id", bindParsedActorID},
	{"embedded_actor_id", bindEmbeddedActorID},
	{"name_match", bindNameMatch},
	{"sole_team_candidate", bindSoleTeamCandidate},
	{"encounter_order", bindEncounterOrder},
	{"virtual_cars", bindVirtualCars},
}

// BindCars resolves car actors to player keys by running the strategy
// cascade. Every known player ends up bound, by a synthesized virtual car
// if nothing better was found; car actors that resolve to no player stay
// unbound and are later dropped from frames.
func BindCars(obs []CarObservation, ents *Entities, log *slog.Logger) Binding {
	state := &bindState{obs: obs, ents: ents, binding: Binding{}}

	for _, strat := range bindStrategies {
		if state.done() {
			break
		}
		before := len(state.binding)
		strat.apply(state)
		if n := len(state.binding) - before; n > 0 {
			log.Debug("car binding strategy applied", "strategy", strat.name, "bound", n)
		}
	}

	log.Info("car actors bound", "cars", len(state.binding), "players", len(ents.Players))
	return state.binding
}

// bindDirectKey binds car ids that are literally a known player key.
func bindDirectKey(s *bindState) {
	for _, o := range s.obs {
		if _, known := s.ents.Players[o.CarID]; known {
			s.bind(o.CarID, o.CarID)
		}
	}
}

// bindParsedActorID parses an actor id out of the car id itself, accepting
// both bare-integer and car_<n> forms, and resolves it through the actor
// table assembled during entity extraction.
func bindParsedActorID(s *bindState) {
	for _, o := range s.obs {
		actorID, ok := parseCarActorID(o.CarID)
		if !ok {
			continue
		}
		if key, known := s.ents.ActorToKey[actorID]; known {
			s.bind(o.CarID, key)
		}
	}
}

func parseCarActorID(carID string) (int, bool) {
	raw := strings.TrimPrefix(carID, "car_")
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}

// bindEmbeddedActorID resolves an actor_id carried inside the car's own
// data object.
func bindEmbeddedActorID(s *bindState) {
	for _, o := range s.obs {
		if o.ActorID == nil {
			continue
		}
		if key, known := s.ents.ActorToKey[*o.ActorID]; known {
			s.bind(o.CarID, key)
		}
	}
}

// bindNameMatch matches an embedded player name case-exactly against the
// known player set.
func bindNameMatch(s *bindState) {
	for _, o := range s.obs {
		if o.PlayerName == "" {
			continue
		}
		if key, known := s.ents.NameToKey[o.PlayerName]; known {
			s.bind(o.CarID, key)
		}
	}
}

// bindSoleTeamCandidate binds a car carrying a team number when exactly one
// unbound player belongs to that team.
func bindSoleTeamCandidate(s *bindState) {
	for _, o := range s.obs {
		if o.Team == nil || s.carBound(o.CarID) {
			continue
		}
		var candidate string
		var count int
		for _, key := range s.unboundPlayers() {
			if s.ents.Players[key].Team == *o.Team {
				candidate = key
				count++
			}
		}
		if count == 1 {
			s.bind(o.CarID, candidate)
		}
	}
}

// bindEncounterOrder pairs remaining unbound cars with remaining unbound
// players in encounter order. A last-resort heuristic with no correctness
// guarantee beyond giving each player some avatar.
func bindEncounterOrder(s *bindState) {
	players := s.unboundPlayers()
	idx := 0
	for _, o := range s.obs {
		if idx >= len(players) {
			break
		}
		if s.carBound(o.CarID) {
			continue
		}
		s.bind(o.CarID, players[idx])
		idx++
	}
}

// bindVirtualCars synthesizes car ids for players that still have none.
// Their positions are procedurally animated at frame time.
func bindVirtualCars(s *bindState) {
	for i, key := range s.unboundPlayers() {
		carID := fmt.Sprintf("%s%d", VirtualCarPrefix, virtualCarBase+i)
		s.binding[carID] = key
	}
}
