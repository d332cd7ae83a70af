package extract

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/rlviewer/telemetry/internal/identity"
	"github.com/rlviewer/telemetry/internal/model"
	"github.com/rlviewer/telemetry/internal/props"
)

// Entities is the consolidated output of header extraction: the player and
// team sets plus the lookup tables the binder and timeline need.
type Entities struct {
	Players map[string]model.Player
	Teams   map[string]model.Team

	// ActorToKey maps decoder actor ids to player keys.
	ActorToKey map[int]string
	// NameToKey maps exact player names to player keys.
	NameToKey map[string]string
	// Order records player keys in encounter order.
	Order []string
}

func newEntities() *Entities {
	return &Entities{
		Players:    map[string]model.Player{},
		Teams:      map[string]model.Team{},
		ActorToKey: map[int]string{},
		NameToKey:  map[string]string{},
	}
}

// PlayersOnTeam returns the keys of team's players in encounter order.
func (e *Entities) PlayersOnTeam(team int) []string {
	var keys []string
	for _, key := range e.Order {
		if p, ok := e.Players[key]; ok && p.Team == team {
			keys = append(keys, key)
		}
	}
	return keys
}

func (e *Entities) addPlayer(p model.Player) {
	existing, ok := e.Players[p.Key]
	if !ok {
		e.Players[p.Key] = p
		e.Order = append(e.Order, p.Key)
	} else {
		existing.Merge(p)
		e.Players[p.Key] = existing
	}
	merged := e.Players[p.Key]
	if merged.Name != "" {
		e.NameToKey[merged.Name] = p.Key
	}
	if merged.ActorID != nil {
		e.ActorToKey[*merged.ActorID] = p.Key
	}
}

func (e *Entities) setTeam(id string, name string, score int, scoreKnown bool) {
	t, ok := e.Teams[id]
	if !ok {
		t = model.Team{ID: id}
	}
	if name != "" {
		t.Name = name
	}
	if scoreKnown {
		t.Score = score
	}
	e.Teams[id] = t
}

// headerBag locates the match header PropertyBag inside the raw document:
// header.properties.elements, or a root-level properties.elements when the
// decoder emits the header inline.
func headerBag(doc map[string]any) props.Bag {
	if header, ok := props.AsObject(doc["header"]); ok {
		if bag := props.SubBag(header); bag != nil {
			return bag
		}
	}
	return props.SubBag(doc)
}

// flatProps returns the already-resolved root property map present in the
// decoder's flattened output variant, identified by a header_size marker.
func flatProps(doc map[string]any) map[string]any {
	if _, ok := doc["header_size"]; !ok {
		return nil
	}
	p, _ := props.AsObject(doc["properties"])
	return p
}

// ExtractEntities assembles the player and team sets from the raw document.
// It never fails; an empty result is valid when the header carries nothing
// usable.
func ExtractEntities(doc map[string]any, log *slog.Logger) *Entities {
	ents := newEntities()

	bag := headerBag(doc)

	// Pass 1: discover players, teams, and actor ids across the bag.
	for _, entry := range bag {
		switch {
		case entry.Key == "PlayerStats" && entry.Kind() == "ArrayProperty":
			parsePlayerStats(entry.Value(), ents)
		case entry.Key == "Teams" && entry.Kind() == "ArrayProperty":
			parseTeams(entry.Value(), ents)
		case strings.HasPrefix(entry.Key, "PRI_TA") && entry.Kind() == "ObjectProperty":
			parseReplicationInfo(entry.Value(), ents)
		}
	}

	// Pass 2: re-read the same bag and merge. Team scores and late actor
	// ids are only reliable once the full key space from pass 1 is known.
	for _, entry := range bag {
		switch {
		case entry.Key == "PlayerStats" && entry.Kind() == "ArrayProperty":
			parsePlayerStats(entry.Value(), ents)
		case entry.Key == "Teams" && entry.Kind() == "ArrayProperty":
			parseTeams(entry.Value(), ents)
		}
	}

	if fp := flatProps(doc); fp != nil {
		parseFlatPlayerStats(fp, ents)
	}

	// Structural fallback for documents whose header carries no usable
	// player or team arrays.
	if len(ents.Players) == 0 && len(ents.Teams) == 0 {
		log.Debug("header carried no entities, falling back to structural discovery")
		discoverEntities(doc, ents)
	}

	synthesizeTeams(doc, ents)

	log.Info("entities extracted",
		"players", len(ents.Players),
		"teams", len(ents.Teams),
		"actor_bindings", len(ents.ActorToKey))
	return ents
}

// parsePlayerStats decodes one PlayerStats array value. Malformed elements
// are skipped individually.
func parsePlayerStats(value any, ents *Entities) {
	arr, ok := props.AsArray(value)
	if !ok {
		return
	}
	for _, elem := range arr {
		sub := props.SubBag(elem)
		if sub == nil {
			continue
		}
		if p, ok := playerFromStatsBag(sub); ok {
			ents.addPlayer(p)
		}
	}
}

func playerFromStatsBag(sub props.Bag) (model.Player, bool) {
	var cand identity.Candidate
	var onlineID, platform string
	var actorID *int
	player := model.Player{Team: model.TeamUnset}

	for _, e := range sub {
		v := e.Value()
		switch e.Key {
		case "OnlineID":
			onlineID = props.StringValue(v)
		case "Name":
			cand.Name, _ = props.AsString(v)
		case "PlayerID":
			if id, ok := props.AsInt(v); ok {
				actorID = &id
			}
		case "bBot":
			player.IsBot, _ = props.AsBool(v)
		case "Platform":
			platform = platformString(v)
		case "Team":
			if team, ok := props.AsInt(v); ok {
				player.Team = team
			}
		case "Score":
			player.Stats.Score, _ = props.AsInt(v)
		case "Goals":
			player.Stats.Goals, _ = props.AsInt(v)
		case "Assists":
			player.Stats.Assists, _ = props.AsInt(v)
		case "Saves":
			player.Stats.Saves, _ = props.AsInt(v)
		case "Shots":
			player.Stats.Shots, _ = props.AsInt(v)
		case "UniqueId":
			uniquePlatform := applyUniqueID(v, &cand)
			if uniquePlatform != "" {
				platform = uniquePlatform
			}
		}
	}

	assignPlatformID(&cand, platform, onlineID)

	if cand.Name == "" && !cand.HasPlatformID() {
		return model.Player{}, false
	}

	player.Key = cand.Key()
	player.Name = cand.Name
	player.Platform = platform
	player.ActorID = actorID
	player.EpicID = cand.EpicID
	player.SteamID = cand.SteamID
	player.PSNID = cand.PSNID
	player.XboxID = cand.XboxID
	player.PlatformID = cand.PlatformID
	return player, true
}

// platformString renders a Platform property value. Byte properties arrive
// as an [enum, member] string pair; the member carries the platform.
func platformString(v any) string {
	if pair, ok := props.AsArray(v); ok && len(pair) == 2 {
		if s, ok := props.AsString(pair[1]); ok {
			return s
		}
	}
	s, _ := props.AsString(v)
	return s
}

// applyUniqueID reads a UniqueId struct's fields into the candidate and
// returns its Platform discriminator when present.
func applyUniqueID(v any, cand *identity.Candidate) string {
	obj, ok := props.AsObject(v)
	if !ok {
		return ""
	}
	fields, ok := props.AsObject(obj["fields"])
	if !ok {
		return ""
	}

	platform := platformString(fields["Platform"])
	if uid := props.StringValue(fields["Uid"]); uid != "" && uid != "0" {
		assignPlatformID(cand, platform, uid)
	}
	if epic := props.StringValue(fields["EpicAccountId"]); epic != "" {
		cand.EpicID = epic
	}
	return platform
}

// assignPlatformID routes a raw platform-scoped id into the candidate field
// named by the platform discriminator.
func assignPlatformID(cand *identity.Candidate, platform, id string) {
	if id == "" || id == "0" {
		return
	}
	switch {
	case strings.Contains(platform, "Steam"):
		if cand.SteamID == "" {
			cand.SteamID = id
		}
	case strings.Contains(platform, "PS4"), strings.Contains(platform, "PSN"):
		if cand.PSNID == "" {
			cand.PSNID = id
		}
	case strings.Contains(platform, "Xbox"):
		if cand.XboxID == "" {
			cand.XboxID = id
		}
	default:
		if cand.OnlineID == "" {
			cand.OnlineID = id
		}
	}
}

// parseTeams decodes a Teams array value. Teams are keyed by their 0-based
// array index, stringified.
func parseTeams(value any, ents *Entities) {
	arr, ok := props.AsArray(value)
	if !ok {
		return
	}
	for idx, elem := range arr {
		sub := props.SubBag(elem)
		if sub == nil {
			continue
		}
		var name string
		var score int
		var scoreKnown bool
		for _, e := range sub {
			v := e.Value()
			switch e.Key {
			case "Score":
				if s, ok := props.AsInt(v); ok {
					score = s
					scoreKnown = true
				}
			case "TeamName":
				name, _ = props.AsString(v)
			}
		}
		ents.setTeam(strconv.Itoa(idx), name, score, scoreKnown)
	}
}

// parseReplicationInfo inspects a PRI_TA object reference for a
// PlayerName/TeamNum pair and an actor id.
func parseReplicationInfo(value any, ents *Entities) {
	obj, ok := props.AsObject(value)
	if !ok {
		return
	}

	var actorID *int
	if id, ok := props.AsInt(obj["actor_id"]); ok {
		actorID = &id
	}

	sub := props.SubBag(obj)
	if sub == nil {
		return
	}

	var playerName string
	team := model.TeamUnset
	for _, e := range sub {
		v := e.Value()
		switch e.Key {
		case "PlayerName":
			playerName, _ = props.AsString(v)
		case "TeamNum":
			if n, ok := props.AsInt(v); ok {
				team = n
			}
		case "Team":
			// A team object reference; its actor id parity encodes the
			// team index.
			if teamObj, ok := props.AsObject(v); ok {
				if id, ok := props.AsInt(teamObj["actor_id"]); ok {
					team = id % 2
				}
			}
		}
	}

	if playerName == "" {
		return
	}
	key, known := ents.NameToKey[playerName]
	if !known {
		return
	}
	player := ents.Players[key]
	if player.Team == model.TeamUnset && team != model.TeamUnset {
		player.Team = team
	}
	if player.ActorID == nil && actorID != nil {
		player.ActorID = actorID
		ents.ActorToKey[*actorID] = key
	}
	ents.Players[key] = player
}

// parseFlatPlayerStats reads the flattened output variant's PlayerStats
// list, whose elements are plain resolved maps.
func parseFlatPlayerStats(fp map[string]any, ents *Entities) {
	arr, ok := props.AsArray(fp["PlayerStats"])
	if !ok {
		return
	}
	for _, elem := range arr {
		obj, ok := props.AsObject(elem)
		if !ok {
			continue
		}

		var cand identity.Candidate
		cand.Name, _ = props.AsString(obj["Name"])
		platform := platformString(obj["Platform"])
		assignPlatformID(&cand, platform, props.StringValue(obj["OnlineID"]))
		if cand.Name == "" && !cand.HasPlatformID() {
			continue
		}

		player := model.Player{
			Key:      cand.Key(),
			Name:     cand.Name,
			Team:     model.TeamUnset,
			Platform: platform,
			SteamID:  cand.SteamID,
			PSNID:    cand.PSNID,
			XboxID:   cand.XboxID,
		}
		if team, ok := props.AsInt(obj["Team"]); ok {
			player.Team = team
		}
		if bot, ok := props.AsBool(obj["bBot"]); ok {
			player.IsBot = bot
		}
		player.Stats.Score, _ = props.AsInt(obj["Score"])
		player.Stats.Goals, _ = props.AsInt(obj["Goals"])
		player.Stats.Assists, _ = props.AsInt(obj["Assists"])
		player.Stats.Saves, _ = props.AsInt(obj["Saves"])
		player.Stats.Shots, _ = props.AsInt(obj["Shots"])
		ents.addPlayer(player)
	}
}

// synthesizeTeams guarantees both canonical teams exist. Scores for
// synthesized teams come from flat score hints when available.
func synthesizeTeams(doc map[string]any, ents *Entities) {
	blueScore, orangeScore := flatScoreHints(doc)

	if _, ok := ents.Teams[model.TeamBlueID]; !ok {
		ents.setTeam(model.TeamBlueID, model.TeamBlueName, blueScore, blueScore > 0)
	}
	if _, ok := ents.Teams[model.TeamOrangeID]; !ok {
		ents.setTeam(model.TeamOrangeID, model.TeamOrangeName, orangeScore, orangeScore > 0)
	}

	for id, t := range ents.Teams {
		if t.Name != "" {
			continue
		}
		if id == model.TeamBlueID {
			t.Name = model.TeamBlueName
		} else {
			t.Name = model.TeamOrangeName
		}
		ents.Teams[id] = t
	}
}

// flatScoreHints reads team scores from the flattened property variant:
// Team0Score/Team1Score, then BlueScore/OrangeScore, then a WinningTeam
// marker worth a single goal.
func flatScoreHints(doc map[string]any) (blue, orange int) {
	fp := flatProps(doc)
	if fp == nil {
		return 0, 0
	}

	if s, ok := props.AsInt(fp["Team0Score"]); ok {
		blue = s
	} else if s, ok := props.AsInt(fp["BlueScore"]); ok {
		blue = s
	}
	if s, ok := props.AsInt(fp["Team1Score"]); ok {
		orange = s
	} else if s, ok := props.AsInt(fp["OrangeScore"]); ok {
		orange = s
	}

	if blue == 0 && orange == 0 {
		switch props.StringValue(fp["WinningTeam"]) {
		case "0":
			blue = 1
		case "1":
			orange = 1
		}
	}
	return blue, orange
}
