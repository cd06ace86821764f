package scenes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Vasu1712/scenyx-narrator/internal/auth"
	"github.com/Vasu1712/scenyx-narrator/internal/narration"
	"github.com/Vasu1712/scenyx-narrator/internal/ws"
)

// Client to server message types.
const (
	TypeChatMessage  = "chat_message"
	TypeAddCharacter = "add_character"
)

const (
	framesPerSecond = 40
	maxBadFrames    = 3
)

// inbound is the envelope of every client frame.
type inbound struct {
	Type        string      `json:"type"`
	CharacterID characterID `json:"character_id"`
	DisplayName string      `json:"display_name"`
	Message     string      `json:"message"`
}

// characterID accepts both JSON strings and JSON numbers.
type characterID string

func (c *characterID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = characterID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("character_id must be a string or a number")
	}
	*c = characterID(n.String())
	return nil
}

// session is the Active state of one connection.
type session struct {
	ctx      context.Context
	h        *SceneHandler
	client   *ws.Client
	id       auth.Identity
	limiter  *rate.Limiter
	badInRow int
}

func newSession(ctx context.Context, h *SceneHandler, client *ws.Client, id auth.Identity) *session {
	return &session{
		ctx:     ctx,
		h:       h,
		client:  client,
		id:      id,
		limiter: rate.NewLimiter(rate.Limit(framesPerSecond), framesPerSecond),
	}
}

// handle processes one frame and reports whether the connection stays open.
func (s *session) handle(data []byte) bool {
	if !s.limiter.Allow() {
		log.Printf("[WS] Rate limit exceeded by user %s in scene %s", s.id.UserID, s.client.SceneID)
		s.client.CloseWithReason(websocket.ClosePolicyViolation, "rate limit exceeded")
		return false
	}

	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		s.badInRow++
		log.Printf("[WS] Undecodable frame from user %s in scene %s: %v", s.id.UserID, s.client.SceneID, err)
		if s.badInRow >= maxBadFrames {
			s.client.CloseWithReason(websocket.ClosePolicyViolation, "too many invalid messages")
			return false
		}
		s.send(narration.ErrorEvent("Invalid message format"))
		return true
	}
	s.badInRow = 0

	switch msg.Type {
	case TypeChatMessage:
		s.chat(msg)
	case TypeAddCharacter:
		s.addCharacter(msg)
	default:
		s.send(narration.ErrorEvent(fmt.Sprintf("Unknown message type: %q", msg.Type)))
	}
	return true
}

func (s *session) chat(msg inbound) {
	res, err := s.h.Service.Post(s.ctx, s.id, narration.ChatMessage{
		SceneID:     s.client.SceneID,
		CharacterID: string(msg.CharacterID),
		DisplayName: msg.DisplayName,
		Message:     msg.Message,
	})
	if err != nil {
		s.fail(err)
		return
	}
	if res.Ack != "" {
		s.send(narration.SystemMessageEvent(res.Ack))
	}
}

func (s *session) addCharacter(msg inbound) {
	character, added, err := s.h.Service.AddCharacter(s.ctx, s.id, s.client.SceneID, string(msg.CharacterID))
	if err != nil {
		s.fail(err)
		return
	}
	if !added {
		s.send(narration.SystemMessageEvent(character.Name + " is already in this scene"))
	}
}

func (s *session) fail(err error) {
	message, ok := narration.Describe(err)
	if !ok {
		log.Printf("[Scene] Failed to process message from user %s in scene %s: %v", s.id.UserID, s.client.SceneID, err)
	}
	s.send(narration.ErrorEvent(message))
}

// send delivers an event to this connection only.
func (s *session) send(event narration.Event) {
	data, err := event.Encode()
	if err != nil {
		log.Printf("[WS] Failed to encode %s event: %v", event.Type, err)
		return
	}
	if err := s.h.Hub.SendTo(s.ctx, s.client, data); err != nil {
		log.Printf("[WS] Failed to reply to user %s in scene %s: %v", s.id.UserID, s.client.SceneID, err)
	}
}
