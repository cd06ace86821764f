// Package narration runs the scene narration rules: who may post, how a
// message is interpreted and rolled, and the order posts reach subscribers.
//
// Every mutation of a scene happens under that scene's lock, from
// authorization through publish, so subscribers observe posts in commit
// order. A willpower spend additionally holds the acting character's lock,
// always taken after the scene's.
package narration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/Vasu1712/scenyx-narrator/internal/auth"
	"github.com/Vasu1712/scenyx-narrator/internal/command"
	"github.com/Vasu1712/scenyx-narrator/internal/dice"
	"github.com/Vasu1712/scenyx-narrator/internal/models"
	"github.com/Vasu1712/scenyx-narrator/internal/storage"
)

const (
	// MaxMessageRunes caps the text of a chat message.
	MaxMessageRunes = 2000

	storytellerAck = "Message sent to storyteller"
	genericFailure = "Failed to process message"
)

var (
	ErrEmptyMessage   = errors.New("Message cannot be empty")
	ErrMessageTooLong = fmt.Errorf("Message cannot be longer than %d characters", MaxMessageRunes)
	ErrNotStoryteller = errors.New("Only the storyteller can close a scene")
)

// Publisher delivers an encoded event to every subscriber of a scene.
type Publisher interface {
	Publish(ctx context.Context, sceneID string, data []byte) error
}

// ChatMessage is a client's request to post.
type ChatMessage struct {
	SceneID     string
	CharacterID string
	DisplayName string
	Message     string
}

// PostResult is what a chat message produced. Post is nil for a storyteller
// escalation, which answers the sender with Ack instead.
type PostResult struct {
	Post *models.Post
	Ack  string
}

// Service applies narration rules on top of a store and a publisher.
type Service struct {
	store      storage.Store
	guard      *auth.Guard
	publisher  Publisher
	dice       dice.Source
	scenes     *keyedMutex
	characters *keyedMutex
}

// NewService builds a Service. src is shared by every scene and must be safe
// for concurrent use, such as a *dice.Roller.
func NewService(store storage.Store, publisher Publisher, src dice.Source) *Service {
	return &Service{
		store:      store,
		guard:      auth.NewGuard(store),
		publisher:  publisher,
		dice:       src,
		scenes:     newKeyedMutex(),
		characters: newKeyedMutex(),
	}
}

// Guard exposes the authorization rules the service enforces.
func (s *Service) Guard() *auth.Guard {
	return s.guard
}

// Post authorizes, interprets, persists and publishes one chat message.
func (s *Service) Post(ctx context.Context, id auth.Identity, msg ChatMessage) (PostResult, error) {
	unlock := s.scenes.Lock(msg.SceneID)
	defer unlock()

	scene, character, err := s.guard.AuthorizePost(ctx, id, msg.CharacterID, msg.SceneID)
	if err != nil {
		return PostResult{}, err
	}
	if strings.TrimSpace(msg.Message) == "" {
		return PostResult{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(msg.Message) > MaxMessageRunes {
		return PostResult{}, ErrMessageTooLong
	}

	text := command.NormalizeQuotes(msg.Message)
	parsed, err := command.Parse(text)
	if err != nil {
		return PostResult{}, err
	}

	if esc, ok := parsed.Command.(command.StorytellerEscalation); ok {
		if err := s.store.SetWaitingForStoryteller(ctx, scene.ID, true, esc.Text); err != nil {
			return PostResult{}, fmt.Errorf("flag scene %s for storyteller: %w", scene.ID, err)
		}
		log.Printf("[Scene] Scene %s is waiting for the storyteller (user %s)", scene.ID, id.UserID)
		return PostResult{Ack: storytellerAck}, nil
	}

	willpower := false
	if parsed.WillpowerPoints() > 0 {
		unlockCharacter := s.characters.Lock(character.ID)
		defer unlockCharacter()
		current, err := s.store.GetCharacter(ctx, character.ID)
		if err != nil {
			return PostResult{}, fmt.Errorf("reload character %s: %w", character.ID, err)
		}
		character = current
		willpower = parsed.WillpowerSpend && character.Willpower > 0
	}

	rendered, err := render(s.dice, parsed, character, willpower)
	if err != nil {
		return PostResult{}, err
	}

	displayName := strings.TrimSpace(msg.DisplayName)
	if displayName == "" {
		displayName = character.Name
	}
	post, spent, err := s.store.AppendPost(ctx, models.NewPost{
		SceneID:     scene.ID,
		CharacterID: character.ID,
		DisplayName: displayName,
		Message:     rendered,
	}, parsed.WillpowerPoints())
	switch {
	case errors.Is(err, storage.ErrSceneFinished):
		return PostResult{}, &auth.Rejection{Reason: auth.ReasonSceneFinished}
	case errors.Is(err, storage.ErrNotMember):
		return PostResult{}, &auth.Rejection{Reason: auth.ReasonNotMember}
	case err != nil:
		return PostResult{}, fmt.Errorf("append post to scene %s: %w", scene.ID, err)
	}
	if parsed.WillpowerPoints() > 0 {
		log.Printf("[Scene] Willpower spend by %s in scene %s: asked=%d spent=%d", character.ID, scene.ID, parsed.WillpowerPoints(), spent)
	}

	if id.Storyteller && scene.WaitingForStoryteller {
		if err := s.store.SetWaitingForStoryteller(ctx, scene.ID, false, ""); err != nil {
			log.Printf("[Scene] Failed to clear storyteller flag on scene %s: %v", scene.ID, err)
		}
	}

	if err := s.publish(ctx, scene.ID, NewPostEvent(post)); err != nil {
		return PostResult{}, err
	}
	return PostResult{Post: post}, nil
}

// AddCharacter makes a character a member of the scene and announces it. It
// reports false, without announcing, when the character was already there.
func (s *Service) AddCharacter(ctx context.Context, id auth.Identity, sceneID, characterID string) (*models.Character, bool, error) {
	unlock := s.scenes.Lock(sceneID)
	defer unlock()

	character, err := s.guard.AuthorizeAddCharacter(ctx, id, characterID, sceneID)
	if err != nil {
		return nil, false, err
	}
	added, err := s.store.AddCharacterToScene(ctx, sceneID, character.ID)
	if err != nil {
		return nil, false, fmt.Errorf("add character %s to scene %s: %w", character.ID, sceneID, err)
	}
	if !added {
		return character, false, nil
	}
	if err := s.publish(ctx, sceneID, CharacterAddedEvent(character)); err != nil {
		return nil, false, err
	}
	return character, true, nil
}

// CloseScene finishes a scene. Only storytellers may close; closing twice is
// not an error.
func (s *Service) CloseScene(ctx context.Context, id auth.Identity, sceneID string) (*models.Scene, error) {
	if id.UserID == "" {
		return nil, auth.ErrUnauthenticated
	}
	if !id.Storyteller {
		return nil, ErrNotStoryteller
	}
	unlock := s.scenes.Lock(sceneID)
	defer unlock()

	scene, err := s.store.GetScene(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	if scene.Finished {
		return scene, nil
	}
	if err := s.store.CloseScene(ctx, sceneID); err != nil {
		return nil, fmt.Errorf("close scene %s: %w", sceneID, err)
	}
	scene.Finished = true
	log.Printf("[Scene] Scene %s closed by %s", sceneID, id.UserID)
	if err := s.publish(ctx, sceneID, SystemMessageEvent("The scene has ended")); err != nil {
		log.Printf("[Scene] Failed to announce closing of scene %s: %v", sceneID, err)
	}
	return scene, nil
}

// Scene returns a scene by id.
func (s *Service) Scene(ctx context.Context, sceneID string) (*models.Scene, error) {
	return s.store.GetScene(ctx, sceneID)
}

// Posts returns the scene's post log in order.
func (s *Service) Posts(ctx context.Context, sceneID string) ([]*models.Post, error) {
	return s.store.ListPosts(ctx, sceneID)
}

func (s *Service) publish(ctx context.Context, sceneID string, event Event) error {
	data, err := event.Encode()
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	if err := s.publisher.Publish(ctx, sceneID, data); err != nil {
		return fmt.Errorf("publish %s to scene %s: %w", event.Type, sceneID, err)
	}
	return nil
}

// Describe returns the text to show a sender for err. Errors the sender can
// act on keep their own message; anything else is reported generically and
// ok is false.
func Describe(err error) (message string, ok bool) {
	var (
		rejection   *auth.Rejection
		syntax      *command.SyntaxError
		unknownStat *dice.UnknownStatError
	)
	switch {
	case errors.As(err, &rejection):
		return rejection.Reason, true
	case errors.As(err, &syntax):
		return syntax.Error(), true
	case errors.As(err, &unknownStat):
		return unknownStat.Error(), true
	case errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrMessageTooLong),
		errors.Is(err, ErrNotStoryteller),
		errors.Is(err, dice.ErrInvalidPool),
		errors.Is(err, dice.ErrInvalidDifficulty),
		errors.Is(err, dice.ErrInvalidTarget),
		errors.Is(err, dice.ErrInvalidMaxRolls),
		errors.Is(err, dice.ErrInvalidRollCount):
		return capitalize(err.Error()), true
	}
	return genericFailure, false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return strings.ToUpper(string(r)) + s[size:]
}
