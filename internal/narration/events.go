package narration

import (
	"bytes"
	"encoding/json"

	"github.com/Vasu1712/scenyx-narrator/internal/models"
)

// Server to client event types.
const (
	TypeNewPost        = "new_post"
	TypeCharacterAdded = "character_added"
	TypeError          = "error"
	TypeSystemMessage  = "system_message"
)

// Event is the JSON envelope sent to clients.
type Event struct {
	Type      string            `json:"type"`
	Post      *models.Post      `json:"post,omitempty"`
	Character *CharacterPayload `json:"character,omitempty"`
	Message   string            `json:"message,omitempty"`
}

// CharacterPayload is the public view of a character.
type CharacterPayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
}

func NewPostEvent(post *models.Post) Event {
	return Event{Type: TypeNewPost, Post: post}
}

func CharacterAddedEvent(c *models.Character) Event {
	return Event{Type: TypeCharacterAdded, Character: &CharacterPayload{ID: c.ID, Name: c.Name, OwnerID: c.OwnerID}}
}

func ErrorEvent(message string) Event {
	return Event{Type: TypeError, Message: message}
}

func SystemMessageEvent(message string) Event {
	return Event{Type: TypeSystemMessage, Message: message}
}

// Encode marshals the event for the wire. Message text goes out unescaped.
func (e Event) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
