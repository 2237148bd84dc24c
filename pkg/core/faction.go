// pkg/core/faction.go
package core

import (
	"fmt"
	"strings"
)

// Faction is a side that can own zones. FactionNeutral owns nothing and its
// units never count towards presence.
type Faction uint8

const (
	FactionNeutral Faction = iota
	FactionBlue
	FactionRed
)

// Factions lists the factions that can hold territory, in a stable order.
var Factions = []Faction{FactionBlue, FactionRed}

func (f Faction) String() string {
	switch f {
	case FactionBlue:
		return "blue"
	case FactionRed:
		return "red"
	default:
		return "neutral"
	}
}

// ParseFaction accepts the faction names used by the host and the layout
// file. DCS coalition aliases are accepted as well.
func ParseFaction(s string) (Faction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "blue", "blufor", "west":
		return FactionBlue, nil
	case "red", "opfor", "east":
		return FactionRed, nil
	case "neutral", "neutrals", "", "none":
		return FactionNeutral, nil
	default:
		return FactionNeutral, fmt.Errorf("unknown faction %q", s)
	}
}

func (f Faction) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Faction) UnmarshalText(b []byte) error {
	v, err := ParseFaction(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Role tags what a unit is useful for.
type Role uint8

const (
	RoleInfantry Role = iota
	RoleArmor
	RoleLogistics
	RoleArtillery
	RoleJTAC
)

func (r Role) String() string {
	switch r {
	case RoleArmor:
		return "armor"
	case RoleLogistics:
		return "logistics"
	case RoleArtillery:
		return "artillery"
	case RoleJTAC:
		return "jtac"
	default:
		return "infantry"
	}
}

// ParseRole maps a host role tag to a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "infantry", "":
		return RoleInfantry, nil
	case "armor", "armour":
		return RoleArmor, nil
	case "logistics":
		return RoleLogistics, nil
	case "artillery":
		return RoleArtillery, nil
	case "jtac":
		return RoleJTAC, nil
	default:
		return RoleInfantry, fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
