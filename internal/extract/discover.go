package extract

import (
	"github.com/rlviewer/telemetry/internal/identity"
	"github.com/rlviewer/telemetry/internal/model"
	"github.com/rlviewer/telemetry/internal/props"
)

// maxDiscoveryDepth bounds the structural tree walk so that adversarial or
// self-referential-looking inputs always terminate.
const maxDiscoveryDepth = 10

// discoverEntities walks the whole raw document looking for objects that
// structurally resemble players (name + team) or teams (score + id or
// team_num). It is the last resort when the header carries no recognized
// player or team arrays.
func discoverEntities(doc map[string]any, ents *Entities) {
	walkDiscovery(doc, 0, ents)
}

func walkDiscovery(node any, depth int, ents *Entities) {
	if depth > maxDiscoveryDepth || node == nil {
		return
	}

	switch n := node.(type) {
	case map[string]any:
		if looksLikePlayer(n) {
			if p, ok := playerFromGeneric(n); ok {
				ents.addPlayer(p)
			}
		} else if looksLikeTeam(n) {
			addGenericTeam(n, ents)
		}
		for _, v := range n {
			walkDiscovery(v, depth+1, ents)
		}
	case []any:
		for _, v := range n {
			walkDiscovery(v, depth+1, ents)
		}
	}
}

func looksLikePlayer(obj map[string]any) bool {
	_, hasName := obj["name"]
	_, hasTeam := obj["team"]
	return hasName && hasTeam
}

func looksLikeTeam(obj map[string]any) bool {
	if _, ok := obj["score"]; !ok {
		return false
	}
	_, hasID := obj["id"]
	_, hasNum := obj["team_num"]
	return hasID || hasNum
}

func playerFromGeneric(obj map[string]any) (model.Player, bool) {
	cand := identity.Candidate{
		EpicID:     props.StringValue(obj["epic_id"]),
		SteamID:    props.StringValue(obj["steam_id"]),
		PSNID:      props.StringValue(obj["psn_id"]),
		XboxID:     props.StringValue(obj["xbox_id"]),
		PlatformID: props.StringValue(obj["platform_id"]),
		OnlineID:   props.StringValue(obj["online_id"]),
	}
	cand.Name, _ = props.AsString(obj["name"])
	if cand.Name == "" && !cand.HasPlatformID() {
		return model.Player{}, false
	}

	player := model.Player{
		Key:        cand.Key(),
		Name:       cand.Name,
		Team:       model.TeamUnset,
		EpicID:     cand.EpicID,
		SteamID:    cand.SteamID,
		PSNID:      cand.PSNID,
		XboxID:     cand.XboxID,
		PlatformID: cand.PlatformID,
	}
	if team, ok := props.AsInt(obj["team"]); ok {
		player.Team = team
	}
	player.Platform, _ = props.AsString(obj["platform"])
	if bot, ok := props.AsBool(obj["is_bot"]); ok {
		player.IsBot = bot
	}
	if id, ok := props.AsInt(obj["actor_id"]); ok {
		player.ActorID = &id
	}
	if stats, ok := props.AsObject(obj["stats"]); ok {
		player.Stats.Score, _ = props.AsInt(stats["score"])
		player.Stats.Goals, _ = props.AsInt(stats["goals"])
		player.Stats.Assists, _ = props.AsInt(stats["assists"])
		player.Stats.Saves, _ = props.AsInt(stats["saves"])
		player.Stats.Shots, _ = props.AsInt(stats["shots"])
	}
	return player, true
}

func addGenericTeam(obj map[string]any, ents *Entities) {
	id := props.StringValue(obj["id"])
	if id == "" {
		id = props.StringValue(obj["team_num"])
	}
	if id != model.TeamBlueID && id != model.TeamOrangeID {
		return
	}
	name, _ := props.AsString(obj["name"])
	score, scoreKnown := props.AsInt(obj["score"])
	ents.setTeam(id, name, score, scoreKnown)
}
