package models

import (
	"slices"
	"time"
)

// Scene is a bounded narrative session: an ordered post log plus the
// characters allowed to post in it.
type Scene struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	Finished              bool      `json:"finished"`                // Terminal; no posts once set
	WaitingForStoryteller bool      `json:"waiting_for_storyteller"` // Set by @storyteller escalation
	StorytellerMessage    string    `json:"storyteller_message,omitempty"`
	CharacterIDs          []string  `json:"character_ids"` // Members in order of addition
	CreatedAt             time.Time `json:"created_at"`
}

// IsMember reports whether the character has been added to the scene.
func (s *Scene) IsMember(characterID string) bool {
	return slices.Contains(s.CharacterIDs, characterID)
}
