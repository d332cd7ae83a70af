package extract

import (
	"math"
	"sort"
	"strconv"

	"github.com/rlviewer/telemetry/internal/model"
	"github.com/rlviewer/telemetry/internal/props"
)

// BuildTimeline derives the coarse event list for one replay: explicit
// goal records when the header carries them, evenly spaced inferred goals
// from final scores otherwise, always bracketed by start and end events.
func BuildTimeline(doc map[string]any, ents *Entities, duration float64, opts Options) []model.TimelineEvent {
	events := []model.TimelineEvent{
		{Type: model.EventMatchStart, Time: 0},
		{Type: model.EventMatchEnd, Time: duration},
	}

	goals := explicitGoals(doc, ents, opts)
	if goals == nil {
		goals = inferredGoals(ents, duration)
	}
	events = append(events, goals...)

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Time < events[j].Time
	})
	return events
}

// explicitGoals reads the header's Goals records. Each record carries the
// frame index, scorer name, and team; the frame index converts to seconds
// at the record rate. Returns nil when no records exist.
func explicitGoals(doc map[string]any, ents *Entities, opts Options) []model.TimelineEvent {
	fp := flatProps(doc)
	if fp == nil {
		return nil
	}
	records, ok := props.AsArray(fp["Goals"])
	if !ok || len(records) == 0 {
		return nil
	}

	fps := opts.RecordFPS
	if f, ok := props.AsFloat(fp["RecordFPS"]); ok && f > 0 {
		fps = f
	}

	var events []model.TimelineEvent
	for _, rec := range records {
		obj, ok := props.AsObject(rec)
		if !ok {
			continue
		}
		frame, _ := props.AsFloat(obj["frame"])
		name, _ := props.AsString(obj["PlayerName"])

		event := model.TimelineEvent{
			Type:      model.EventGoal,
			Time:      round2(frame / fps),
			PlayerKey: name,
		}
		if key, known := ents.NameToKey[name]; known {
			event.PlayerKey = key
		}
		if team, ok := props.AsInt(obj["PlayerTeam"]); ok {
			event.Team = &team
		}
		events = append(events, event)
	}
	if len(events) == 0 {
		return nil
	}
	return events
}

// inferredGoals distributes each team's final score evenly across the
// match, assigning scorers round-robin from that team's players. Teams
// with no known players produce no events.
func inferredGoals(ents *Entities, duration float64) []model.TimelineEvent {
	var events []model.TimelineEvent
	for _, teamID := range []string{model.TeamBlueID, model.TeamOrangeID} {
		team, ok := ents.Teams[teamID]
		if !ok || team.Score <= 0 {
			continue
		}
		teamNum, err := strconv.Atoi(teamID)
		if err != nil {
			continue
		}
		scorers := ents.PlayersOnTeam(teamNum)
		if len(scorers) == 0 {
			continue
		}

		interval := duration / float64(team.Score+1)
		for i := 0; i < team.Score; i++ {
			tn := teamNum
			events = append(events, model.TimelineEvent{
				Type:      model.EventGoalInferred,
				Time:      round2(float64(i+1) * interval),
				PlayerKey: scorers[i%len(scorers)],
				Team:      &tn,
			})
		}
	}
	return events
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
