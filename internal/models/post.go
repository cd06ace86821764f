package models

import "time"

// Post is one immutable entry in a scene's log. An empty CharacterID marks a
// system or storyteller post.
type Post struct {
	ID            string    `json:"id"`
	SceneID       string    `json:"scene_id"`
	CharacterID   string    `json:"character_id,omitempty"`
	CharacterName string    `json:"character_name"`
	OwnerID       string    `json:"owner_id,omitempty"`
	DisplayName   string    `json:"display_name"`
	Message       string    `json:"message"`
	Sequence      int64     `json:"sequence"` // Monotonic per scene, defines delivery order
	CreatedAt     time.Time `json:"datetime_created"`
}

// NewPost is the input to a post append.
type NewPost struct {
	SceneID     string
	CharacterID string
	DisplayName string
	Message     string
}
