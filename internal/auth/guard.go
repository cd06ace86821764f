package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/Vasu1712/scenyx-narrator/internal/models"
	"github.com/Vasu1712/scenyx-narrator/internal/storage"
)

// ErrSceneNotFound refuses a connection to a scene that does not exist.
var ErrSceneNotFound = errors.New("scene not found")

// Reasons a post or membership change is refused. Clients match on them.
const (
	ReasonSceneFinished     = "Cannot post to a finished scene"
	ReasonCharacterNotFound = "Character not found"
	ReasonNotOwner          = "You can only post as your own characters"
	ReasonNotMember         = "Character is not in this scene"
	ReasonAddNotOwner       = "You can only add your own characters"
)

// Rejection is a refusal the sender is told about. The connection stays open.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string {
	return r.Reason
}

func reject(reason string) error {
	return &Rejection{Reason: reason}
}

// Directory is the read side of the store the guard consults.
type Directory interface {
	GetScene(ctx context.Context, sceneID string) (*models.Scene, error)
	GetCharacter(ctx context.Context, characterID string) (*models.Character, error)
}

// Guard answers the authorization questions of the scene gateway.
type Guard struct {
	dir Directory
}

func NewGuard(dir Directory) *Guard {
	return &Guard{dir: dir}
}

// AuthorizeConnect admits an identity to a scene's connection. It fails with
// ErrUnauthenticated or ErrSceneNotFound.
func (g *Guard) AuthorizeConnect(ctx context.Context, id Identity, sceneID string) (*models.Scene, error) {
	if id.UserID == "" {
		return nil, ErrUnauthenticated
	}
	scene, err := g.dir.GetScene(ctx, sceneID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrSceneNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load scene %s: %w", sceneID, err)
	}
	return scene, nil
}

// AuthorizePost decides whether id may post as characterID in sceneID.
// Refusals are *Rejection; the checks run finished, existence, ownership,
// then membership.
func (g *Guard) AuthorizePost(ctx context.Context, id Identity, characterID, sceneID string) (*models.Scene, *models.Character, error) {
	scene, err := g.AuthorizeConnect(ctx, id, sceneID)
	if err != nil {
		return nil, nil, err
	}
	if scene.Finished {
		return nil, nil, reject(ReasonSceneFinished)
	}
	character, err := g.character(ctx, characterID)
	if err != nil {
		return nil, nil, err
	}
	if character.OwnerID != id.UserID {
		return nil, nil, reject(ReasonNotOwner)
	}
	if !scene.IsMember(character.ID) {
		return nil, nil, reject(ReasonNotMember)
	}
	return scene, character, nil
}

// AuthorizeAddCharacter decides whether id may add characterID to sceneID.
// Only ownership matters; finished scenes still accept members.
func (g *Guard) AuthorizeAddCharacter(ctx context.Context, id Identity, characterID, sceneID string) (*models.Character, error) {
	if _, err := g.AuthorizeConnect(ctx, id, sceneID); err != nil {
		return nil, err
	}
	character, err := g.character(ctx, characterID)
	if err != nil {
		return nil, err
	}
	if character.OwnerID != id.UserID {
		return nil, reject(ReasonAddNotOwner)
	}
	return character, nil
}

func (g *Guard) character(ctx context.Context, characterID string) (*models.Character, error) {
	if characterID == "" {
		return nil, reject(ReasonCharacterNotFound)
	}
	character, err := g.dir.GetCharacter(ctx, characterID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, reject(ReasonCharacterNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load character %s: %w", characterID, err)
	}
	return character, nil
}
