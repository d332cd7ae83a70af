// Package identity derives stable player keys from platform identifiers.
package identity

// Candidate holds the platform identifiers observed for one player across
// the header. Fields may be filled in from several tree locations before
// the key is derived.
type Candidate struct {
	EpicID     string
	SteamID    string
	PSNID      string
	XboxID     string
	PlatformID string
	OnlineID   string
	Name       string
}

// absent reports whether an identifier should be treated as missing.
// The decoder emits "0" for unset numeric ids.
func absent(id string) bool {
	return id == "" || id == "0"
}

// Key returns the normalized player key for the candidate. The priority
// chain is epic > steam > psn > xbox > platform > online, falling back to
// the player name. The result is used as a map key and must be identical
// across repeated calls with equivalent candidates.
func (c Candidate) Key() string {
	switch {
	case !absent(c.EpicID):
		return "epic_" + c.EpicID
	case !absent(c.SteamID):
		return "steam_" + c.SteamID
	case !absent(c.PSNID):
		return "psn_" + c.PSNID
	case !absent(c.XboxID):
		return "xbox_" + c.XboxID
	case !absent(c.PlatformID):
		return "platform_" + c.PlatformID
	case !absent(c.OnlineID):
		return "online_" + c.OnlineID
	}
	name := c.Name
	if name == "" {
		name = "Unknown"
	}
	return "name_" + name
}

// HasPlatformID reports whether any platform identifier (everything but
// the name) is present.
func (c Candidate) HasPlatformID() bool {
	return !absent(c.EpicID) || !absent(c.SteamID) || !absent(c.PSNID) ||
		!absent(c.XboxID) || !absent(c.PlatformID) || !absent(c.OnlineID)
}
