// Package storage defines the persistence contract for scenes, characters and
// posts. Implementations live in the memory, sqlite and postgres subpackages.
package storage

import (
	"context"
	"errors"

	"github.com/Vasu1712/scenyx-narrator/internal/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrSceneFinished = errors.New("scene is finished")
	ErrNotMember     = errors.New("character is not a member of the scene")
)

// Store persists scenes, characters and the append-only post log.
type Store interface {
	// CreateScene stores scene, assigning an ID and CreatedAt when empty.
	// Members listed in CharacterIDs are ignored; use AddCharacterToScene.
	CreateScene(ctx context.Context, scene models.Scene) (*models.Scene, error)
	// CreateCharacter stores character, assigning an ID when empty.
	CreateCharacter(ctx context.Context, character models.Character) (*models.Character, error)

	GetScene(ctx context.Context, sceneID string) (*models.Scene, error)
	GetCharacter(ctx context.Context, characterID string) (*models.Character, error)

	// AddCharacterToScene appends the character to the scene's members. It
	// reports false when the character was already a member.
	AddCharacterToScene(ctx context.Context, sceneID, characterID string) (bool, error)

	// AppendPost writes a post and takes up to willpower points from the acting
	// character's willpower in the same transaction. The balance never drops
	// below zero; spent is the number of points actually taken. The write fails
	// with ErrSceneFinished or ErrNotMember when the scene state forbids it.
	AppendPost(ctx context.Context, post models.NewPost, willpower int) (created *models.Post, spent int, err error)

	// CloseScene marks the scene finished. Closing twice is not an error.
	CloseScene(ctx context.Context, sceneID string) error

	// SetWaitingForStoryteller records an escalation. A false waiting clears
	// the note.
	SetWaitingForStoryteller(ctx context.Context, sceneID string, waiting bool, note string) error

	// ListPosts returns the scene's posts in sequence order.
	ListPosts(ctx context.Context, sceneID string) ([]*models.Post, error)

	Close() error
}
