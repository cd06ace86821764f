package memory

import (
	"context"
	"fmt"
	"log"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Vasu1712/scenyx-narrator/internal/models"
	"github.com/Vasu1712/scenyx-narrator/internal/storage"
	"github.com/google/uuid"
)

// SceneStore keeps scenes, characters and posts in process memory. Every
// value handed out is a copy.
type SceneStore struct {
	mu         sync.RWMutex
	scenes     map[string]*models.Scene
	characters map[string]*models.Character
	posts      map[string][]*models.Post // sceneID -> posts in sequence order
	now        func() time.Time
}

var _ storage.Store = (*SceneStore)(nil)

// NewSceneStore creates an empty SceneStore.
func NewSceneStore() *SceneStore {
	return &SceneStore{
		scenes:     make(map[string]*models.Scene),
		characters: make(map[string]*models.Character),
		posts:      make(map[string][]*models.Post),
		now:        time.Now,
	}
}

func (s *SceneStore) CreateScene(_ context.Context, scene models.Scene) (*models.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if scene.ID == "" {
		scene.ID = uuid.NewString()
	}
	if _, ok := s.scenes[scene.ID]; ok {
		return nil, fmt.Errorf("scene %s: %w", scene.ID, storage.ErrAlreadyExists)
	}
	if scene.CreatedAt.IsZero() {
		scene.CreatedAt = s.now().UTC()
	}
	scene.CharacterIDs = nil
	s.scenes[scene.ID] = &scene

	log.Printf("[Store] Scene created: ID=%s, Name=%s", scene.ID, scene.Name)
	return cloneScene(&scene), nil
}

func (s *SceneStore) CreateCharacter(_ context.Context, character models.Character) (*models.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if character.ID == "" {
		character.ID = uuid.NewString()
	}
	if _, ok := s.characters[character.ID]; ok {
		return nil, fmt.Errorf("character %s: %w", character.ID, storage.ErrAlreadyExists)
	}
	if character.Willpower < 0 {
		character.Willpower = 0
	}
	stats := make(map[string]int, len(character.Stats))
	for name, value := range character.Stats {
		stats[models.StatKey(name)] = value
	}
	character.Stats = stats
	s.characters[character.ID] = &character
	return cloneCharacter(&character), nil
}

func (s *SceneStore) GetScene(_ context.Context, sceneID string) (*models.Scene, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scene, ok := s.scenes[sceneID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneScene(scene), nil
}

func (s *SceneStore) GetCharacter(_ context.Context, characterID string) (*models.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	character, ok := s.characters[characterID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneCharacter(character), nil
}

func (s *SceneStore) AddCharacterToScene(_ context.Context, sceneID, characterID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scene, ok := s.scenes[sceneID]
	if !ok {
		return false, storage.ErrNotFound
	}
	if _, ok := s.characters[characterID]; !ok {
		return false, storage.ErrNotFound
	}
	if scene.IsMember(characterID) {
		return false, nil
	}
	scene.CharacterIDs = append(scene.CharacterIDs, characterID)
	log.Printf("[Store] Character %s joined scene %s. Members: %d", characterID, sceneID, len(scene.CharacterIDs))
	return true, nil
}

func (s *SceneStore) AppendPost(_ context.Context, post models.NewPost, willpower int) (*models.Post, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scene, ok := s.scenes[post.SceneID]
	if !ok {
		return nil, 0, storage.ErrNotFound
	}
	if scene.Finished {
		return nil, 0, storage.ErrSceneFinished
	}

	var character *models.Character
	if post.CharacterID != "" {
		character, ok = s.characters[post.CharacterID]
		if !ok {
			return nil, 0, storage.ErrNotFound
		}
		if !scene.IsMember(post.CharacterID) {
			return nil, 0, storage.ErrNotMember
		}
	}

	spent := 0
	if willpower > 0 && character != nil {
		spent = min(willpower, character.Willpower)
		character.Willpower -= spent
	}

	existing := s.posts[post.SceneID]
	created := &models.Post{
		ID:          uuid.NewString(),
		SceneID:     post.SceneID,
		CharacterID: post.CharacterID,
		DisplayName: post.DisplayName,
		Message:     post.Message,
		Sequence:    int64(len(existing) + 1),
		CreatedAt:   s.now().UTC(),
	}
	if character != nil {
		created.CharacterName = character.Name
		created.OwnerID = character.OwnerID
	}
	s.posts[post.SceneID] = append(existing, created)

	copied := *created
	return &copied, spent, nil
}

func (s *SceneStore) CloseScene(_ context.Context, sceneID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scene, ok := s.scenes[sceneID]
	if !ok {
		return storage.ErrNotFound
	}
	scene.Finished = true
	return nil
}

func (s *SceneStore) SetWaitingForStoryteller(_ context.Context, sceneID string, waiting bool, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scene, ok := s.scenes[sceneID]
	if !ok {
		return storage.ErrNotFound
	}
	scene.WaitingForStoryteller = waiting
	if waiting {
		scene.StorytellerMessage = note
	} else {
		scene.StorytellerMessage = ""
	}
	return nil
}

func (s *SceneStore) ListPosts(_ context.Context, sceneID string) ([]*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.scenes[sceneID]; !ok {
		return nil, storage.ErrNotFound
	}
	posts := make([]*models.Post, 0, len(s.posts[sceneID]))
	for _, post := range s.posts[sceneID] {
		copied := *post
		posts = append(posts, &copied)
	}
	return posts, nil
}

func (s *SceneStore) Close() error {
	return nil
}

func cloneScene(scene *models.Scene) *models.Scene {
	copied := *scene
	copied.CharacterIDs = slices.Clone(scene.CharacterIDs)
	if copied.CharacterIDs == nil {
		copied.CharacterIDs = []string{}
	}
	return &copied
}

func cloneCharacter(character *models.Character) *models.Character {
	copied := *character
	copied.Stats = maps.Clone(character.Stats)
	return &copied
}
