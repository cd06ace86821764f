// Package storetest holds the behavior every storage.Store must share, run
// by each implementation's tests.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-narrator/internal/models"
	"github.com/Vasu1712/scenyx-narrator/internal/storage"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) storage.Store

// Run exercises store semantics against newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("scene round trip", func(t *testing.T) { testSceneRoundTrip(t, newStore(t)) })
	t.Run("character stats fold case", func(t *testing.T) { testCharacterStats(t, newStore(t)) })
	t.Run("duplicate ids", func(t *testing.T) { testDuplicateIDs(t, newStore(t)) })
	t.Run("missing records", func(t *testing.T) { testMissing(t, newStore(t)) })
	t.Run("membership is idempotent and ordered", func(t *testing.T) { testMembership(t, newStore(t)) })
	t.Run("append post", func(t *testing.T) { testAppendPost(t, newStore(t)) })
	t.Run("system post", func(t *testing.T) { testSystemPost(t, newStore(t)) })
	t.Run("append rejects non members", func(t *testing.T) { testAppendRejectsNonMember(t, newStore(t)) })
	t.Run("finished scene refuses posts", func(t *testing.T) { testFinishedScene(t, newStore(t)) })
	t.Run("willpower clamps at zero", func(t *testing.T) { testWillpowerClamp(t, newStore(t)) })
	t.Run("multi point willpower clamps at zero", func(t *testing.T) { testWillpowerMultiPointClamp(t, newStore(t)) })
	t.Run("storyteller flag", func(t *testing.T) { testStorytellerFlag(t, newStore(t)) })
	t.Run("concurrent appends get distinct sequences", func(t *testing.T) { testConcurrentAppends(t, newStore(t)) })
}

func seed(t *testing.T, s storage.Store, willpower int) (*models.Scene, *models.Character) {
	t.Helper()
	ctx := context.Background()
	scene, err := s.CreateScene(ctx, models.Scene{Name: "Elysium"})
	require.NoError(t, err)
	character, err := s.CreateCharacter(ctx, models.Character{
		Name:      "Marcus",
		OwnerID:   "user-a",
		Willpower: willpower,
		Stats:     map[string]int{"Dexterity": 3, "Firearms": 2},
	})
	require.NoError(t, err)
	_, err = s.AddCharacterToScene(ctx, scene.ID, character.ID)
	require.NoError(t, err)
	return scene, character
}

func testSceneRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	created, err := s.CreateScene(ctx, models.Scene{ID: "scene-1", Name: "Elysium"})
	require.NoError(t, err)
	assert.Equal(t, "scene-1", created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := s.GetScene(ctx, "scene-1")
	require.NoError(t, err)
	assert.Equal(t, "Elysium", got.Name)
	assert.False(t, got.Finished)
	assert.False(t, got.WaitingForStoryteller)
	assert.Empty(t, got.CharacterIDs)
	assert.NotNil(t, got.CharacterIDs)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
}

func testCharacterStats(t *testing.T, s storage.Store) {
	ctx := context.Background()
	created, err := s.CreateCharacter(ctx, models.Character{
		ID:      "char-1",
		Name:    "Marcus",
		OwnerID: "user-a",
		Stats:   map[string]int{"Melee Weapons": 4, "STRENGTH": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "char-1", created.ID)

	got, err := s.GetCharacter(ctx, "char-1")
	require.NoError(t, err)
	assert.Equal(t, "user-a", got.OwnerID)

	v, ok := got.Stat("melee_weapons")
	assert.True(t, ok)
	assert.Equal(t, 4, v)
	v, ok = got.Stat("Strength")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	_, ok = got.Stat("Charisma")
	assert.False(t, ok)
}

func testDuplicateIDs(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.CreateScene(ctx, models.Scene{ID: "dup", Name: "One"})
	require.NoError(t, err)
	_, err = s.CreateScene(ctx, models.Scene{ID: "dup", Name: "Two"})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	_, err = s.CreateCharacter(ctx, models.Character{ID: "dup", Name: "A", OwnerID: "u"})
	require.NoError(t, err)
	_, err = s.CreateCharacter(ctx, models.Character{ID: "dup", Name: "B", OwnerID: "u"})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func testMissing(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.GetScene(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetCharacter(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.CloseScene(ctx, "nope"), storage.ErrNotFound)
	_, err = s.ListPosts(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, _, err = s.AppendPost(ctx, models.NewPost{SceneID: "nope", Message: "hi"}, 0)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testMembership(t *testing.T, s storage.Store) {
	ctx := context.Background()
	scene, first := seed(t, s, 0)
	second, err := s.CreateCharacter(ctx, models.Character{Name: "Lucita", OwnerID: "user-b"})
	require.NoError(t, err)

	added, err := s.AddCharacterToScene(ctx, scene.ID, second.ID)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.AddCharacterToScene(ctx, scene.ID, first.ID)
	require.NoError(t, err)
	assert.False(t, added)

	got, err := s.GetScene(ctx, scene.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, second.ID}, got.CharacterIDs)
	assert.True(t, got.IsMember(second.ID))

	_, err = s.AddCharacterToScene(ctx, scene.ID, "ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testAppendPost(t *testing.T, s storage.Store) {
	ctx := context.Background()
	scene, character := seed(t, s, 0)

	msg := `<img src=x onerror="alert('XSS')">`
	first, spent, err := s.AppendPost(ctx, models.NewPost{
		SceneID:     scene.ID,
		CharacterID: character.ID,
		DisplayName: "Marcus",
		Message:     msg,
	}, 0)
	require.NoError(t, err)
	assert.Zero(t, spent)
	assert.Equal(t, int64(1), first.Sequence)
	assert.Equal(t, "Marcus", first.CharacterName)
	assert.Equal(t, "user-a", first.OwnerID)
	assert.NotEmpty(t, first.ID)

	second, _, err := s.AppendPost(ctx, models.NewPost{
		SceneID:     scene.ID,
		CharacterID: character.ID,
		DisplayName: "The Stranger",
		Message:     "Hello, world!",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Sequence)

	posts, err := s.ListPosts(ctx, scene.ID)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, msg, posts[0].Message)
	assert.Equal(t, "Hello, world!", posts[1].Message)
	assert.Equal(t, "The Stranger", posts[1].DisplayName)
	assert.Equal(t, "Marcus", posts[1].CharacterName)
	assert.Equal(t, first.ID, posts[0].ID)
}

func testSystemPost(t *testing.T, s storage.Store) {
	ctx := context.Background()
	scene, _ := seed(t, s, 0)

	post, spent, err := s.AppendPost(ctx, models.NewPost{SceneID: scene.ID, DisplayName: "Storyteller", Message: "Night falls."}, 1)
	require.NoError(t, err)
	assert.Zero(t, spent)
	assert.Empty(t, post.CharacterID)

	posts, err := s.ListPosts(ctx, scene.ID)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Empty(t, posts[0].CharacterID)
	assert.Empty(t, posts[0].CharacterName)
}

func testAppendRejectsNonMember(t *testing.T, s storage.Store) {
	ctx := context.Background()
	scene, _ := seed(t, s, 3)
	outsider, err := s.CreateCharacter(ctx, models.Character{Name: "Outsider", OwnerID: "user-a", Willpower: 3})
	require.NoError(t, err)

	_, _, err = s.AppendPost(ctx, models.NewPost{SceneID: scene.ID, CharacterID: outsider.ID, Message: "hi"}, 1)
	assert.ErrorIs(t, err, storage.ErrNotMember)

	got, err := s.GetCharacter(ctx, outsider.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Willpower)
}

func testFinishedScene(t *testing.T, s storage.Store) {
	ctx := context.Background()
	scene, character := seed(t, s, 2)

	require.NoError(t, s.CloseScene(ctx, scene.ID))
	require.NoError(t, s.CloseScene(ctx, scene.ID))

	got, err := s.GetScene(ctx, scene.ID)
	require.NoError(t, err)
	assert.True(t, got.Finished)

	_, _, err = s.AppendPost(ctx, models.NewPost{SceneID: scene.ID, CharacterID: character.ID, Message: "late"}, 1)
	assert.ErrorIs(t, err, storage.ErrSceneFinished)

	posts, err := s.ListPosts(ctx, scene.ID)
	require.NoError(t, err)
	assert.Empty(t, posts)

	c, err := s.GetCharacter(ctx, character.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Willpower)
}

func testWillpowerClamp(t *testing.T, s storage.Store) {
	ctx := context.Background()
	scene, character := seed(t, s, 1)
	post := models.NewPost{SceneID: scene.ID, CharacterID: character.ID, Message: "#WP"}

	_, spent, err := s.AppendPost(ctx, post, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, spent)

	_, spent, err = s.AppendPost(ctx, post, 1)
	require.NoError(t, err)
	assert.Zero(t, spent)

	got, err := s.GetCharacter(ctx, character.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Willpower)

	posts, err := s.ListPosts(ctx, scene.ID)
	require.NoError(t, err)
	assert.Len(t, posts, 2)
}

func testWillpowerMultiPointClamp(t *testing.T, s storage.Store) {
	ctx := context.Background()
	scene, character := seed(t, s, 5)
	post := models.NewPost{SceneID: scene.ID, CharacterID: character.ID, Message: "#WP3"}

	_, spent, err := s.AppendPost(ctx, post, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, spent)

	_, spent, err = s.AppendPost(ctx, post, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, spent)

	_, spent, err = s.AppendPost(ctx, post, 3)
	require.NoError(t, err)
	assert.Zero(t, spent)

	got, err := s.GetCharacter(ctx, character.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Willpower)
}

func testStorytellerFlag(t *testing.T, s storage.Store) {
	ctx := context.Background()
	scene, _ := seed(t, s, 0)

	require.NoError(t, s.SetWaitingForStoryteller(ctx, scene.ID, true, "can I climb the wall?"))
	got, err := s.GetScene(ctx, scene.ID)
	require.NoError(t, err)
	assert.True(t, got.WaitingForStoryteller)
	assert.Equal(t, "can I climb the wall?", got.StorytellerMessage)

	require.NoError(t, s.SetWaitingForStoryteller(ctx, scene.ID, false, "ignored"))
	got, err = s.GetScene(ctx, scene.ID)
	require.NoError(t, err)
	assert.False(t, got.WaitingForStoryteller)
	assert.Empty(t, got.StorytellerMessage)

	assert.ErrorIs(t, s.SetWaitingForStoryteller(ctx, "nope", true, ""), storage.ErrNotFound)
}

func testConcurrentAppends(t *testing.T, s storage.Store) {
	ctx := context.Background()
	scene, character := seed(t, s, 0)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.AppendPost(ctx, models.NewPost{SceneID: scene.ID, CharacterID: character.ID, Message: "x"}, 0)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	posts, err := s.ListPosts(ctx, scene.ID)
	require.NoError(t, err)
	require.Len(t, posts, n)
	for i, post := range posts {
		assert.Equal(t, int64(i+1), post.Sequence)
	}
}
