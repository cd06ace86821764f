package models

import "strings"

// Character is the slice of a character sheet the narration gateway needs:
// who may act as it, its named stats and its temporary willpower pool.
type Character struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	OwnerID   string         `json:"owner_id"`
	Willpower int            `json:"willpower"`
	Stats     map[string]int `json:"stats,omitempty"` // Keyed by StatKey
}

// StatKey folds a stat name into its lookup form: "Melee Weapons" and
// "melee_weapons" address the same stat.
func StatKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.ReplaceAll(name, "_", " "))), "_")
}

// Stat looks up a stat case-insensitively.
func (c *Character) Stat(name string) (int, bool) {
	if c == nil || c.Stats == nil {
		return 0, false
	}
	value, ok := c.Stats[StatKey(name)]
	return value, ok
}
