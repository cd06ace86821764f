// Package sqlstore implements storage.Store over database/sql. The SQL is
// written once with ? placeholders; a Dialect adapts it to each driver.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/Vasu1712/scenyx-narrator/internal/models"
	"github.com/Vasu1712/scenyx-narrator/internal/storage"
	"github.com/Vasu1712/scenyx-narrator/internal/storage/sqlstore/migrations"
	"github.com/google/uuid"
)

// Dialect captures what differs between the supported SQL backends.
type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2, ...) instead of ?.
	NumberedPlaceholders bool
	// LockForUpdate is appended to the scene read that opens a post append.
	LockForUpdate string
	// IsUniqueViolation recognizes the driver's unique/primary key error.
	IsUniqueViolation func(error) bool
}

// Rebind rewrites ? placeholders for the dialect.
func (d Dialect) Rebind(query string) string {
	if !d.NumberedPlaceholders {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Store persists narration state in a SQL database.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ storage.Store = (*Store)(nil)

// New wraps an open database and applies the embedded migrations.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	if err := ApplyMigrations(ctx, db, dialect, migrations.FS); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, dialect: dialect}, nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) queryRow(ctx context.Context, q querier, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) query(ctx context.Context, q querier, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) uniqueViolation(err error) bool {
	return s.dialect.IsUniqueViolation != nil && s.dialect.IsUniqueViolation(err)
}

func (s *Store) CreateScene(ctx context.Context, scene models.Scene) (*models.Scene, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if scene.ID == "" {
		scene.ID = uuid.NewString()
	}
	if scene.CreatedAt.IsZero() {
		scene.CreatedAt = time.Now()
	}
	scene.CreatedAt = fromMillis(toMillis(scene.CreatedAt))
	scene.CharacterIDs = []string{}

	_, err := s.exec(ctx, s.db,
		`INSERT INTO scenes (id, name, finished, waiting_for_storyteller, storyteller_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		scene.ID, scene.Name, scene.Finished, scene.WaitingForStoryteller, scene.StorytellerMessage, toMillis(scene.CreatedAt),
	)
	if err != nil {
		if s.uniqueViolation(err) {
			return nil, fmt.Errorf("scene %s: %w", scene.ID, storage.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("create scene: %w", err)
	}
	log.Printf("[Store] Scene created in %s: ID=%s, Name=%s", s.dialect.Name, scene.ID, scene.Name)
	return &scene, nil
}

func (s *Store) CreateCharacter(ctx context.Context, character models.Character) (*models.Character, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if character.ID == "" {
		character.ID = uuid.NewString()
	}
	if character.Willpower < 0 {
		character.Willpower = 0
	}
	stats := make(map[string]int, len(character.Stats))
	for name, value := range character.Stats {
		stats[models.StatKey(name)] = value
	}
	character.Stats = stats

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := s.exec(ctx, tx,
			`INSERT INTO characters (id, name, owner_id, willpower) VALUES (?, ?, ?, ?)`,
			character.ID, character.Name, character.OwnerID, character.Willpower,
		)
		if err != nil {
			if s.uniqueViolation(err) {
				return fmt.Errorf("character %s: %w", character.ID, storage.ErrAlreadyExists)
			}
			return fmt.Errorf("create character: %w", err)
		}
		for key, value := range stats {
			if _, err := s.exec(ctx, tx,
				`INSERT INTO character_stats (character_id, stat_key, value) VALUES (?, ?, ?)`,
				character.ID, key, value,
			); err != nil {
				return fmt.Errorf("create character stat %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &character, nil
}

func (s *Store) GetScene(ctx context.Context, sceneID string) (*models.Scene, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scene := &models.Scene{ID: sceneID, CharacterIDs: []string{}}
	var createdAt int64
	err := s.queryRow(ctx, s.db,
		`SELECT name, finished, waiting_for_storyteller, storyteller_message, created_at
		 FROM scenes WHERE id = ?`, sceneID,
	).Scan(&scene.Name, &scene.Finished, &scene.WaitingForStoryteller, &scene.StorytellerMessage, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scene: %w", err)
	}
	scene.CreatedAt = fromMillis(createdAt)

	rows, err := s.query(ctx, s.db,
		`SELECT character_id FROM scene_characters WHERE scene_id = ? ORDER BY position`, sceneID)
	if err != nil {
		return nil, fmt.Errorf("list scene members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan scene member: %w", err)
		}
		scene.CharacterIDs = append(scene.CharacterIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scene members: %w", err)
	}
	return scene, nil
}

func (s *Store) GetCharacter(ctx context.Context, characterID string) (*models.Character, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	character := &models.Character{ID: characterID, Stats: map[string]int{}}
	err := s.queryRow(ctx, s.db,
		`SELECT name, owner_id, willpower FROM characters WHERE id = ?`, characterID,
	).Scan(&character.Name, &character.OwnerID, &character.Willpower)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get character: %w", err)
	}

	rows, err := s.query(ctx, s.db,
		`SELECT stat_key, value FROM character_stats WHERE character_id = ?`, characterID)
	if err != nil {
		return nil, fmt.Errorf("list character stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var value int
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan character stat: %w", err)
		}
		character.Stats[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate character stats: %w", err)
	}
	return character, nil
}

func (s *Store) AddCharacterToScene(ctx context.Context, sceneID, characterID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	added := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.lockScene(ctx, tx, sceneID, nil); err != nil {
			return err
		}
		if err := s.requireCharacter(ctx, tx, characterID, nil); err != nil {
			return err
		}

		var position int
		if err := s.queryRow(ctx, tx,
			`SELECT COALESCE(MAX(position), 0) + 1 FROM scene_characters WHERE scene_id = ?`, sceneID,
		).Scan(&position); err != nil {
			return fmt.Errorf("next member position: %w", err)
		}
		result, err := s.exec(ctx, tx,
			`INSERT INTO scene_characters (scene_id, character_id, position) VALUES (?, ?, ?)
			 ON CONFLICT (scene_id, character_id) DO NOTHING`,
			sceneID, characterID, position,
		)
		if err != nil {
			return fmt.Errorf("add scene member: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("add scene member: %w", err)
		}
		added = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if added {
		log.Printf("[Store] Character %s joined scene %s", characterID, sceneID)
	}
	return added, nil
}

func (s *Store) AppendPost(ctx context.Context, post models.NewPost, willpower int) (*models.Post, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	created := &models.Post{
		ID:          uuid.NewString(),
		SceneID:     post.SceneID,
		CharacterID: post.CharacterID,
		DisplayName: post.DisplayName,
		Message:     post.Message,
		CreatedAt:   fromMillis(toMillis(time.Now())),
	}
	spent := 0

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var finished bool
		if err := s.lockScene(ctx, tx, post.SceneID, &finished); err != nil {
			return err
		}
		if finished {
			return storage.ErrSceneFinished
		}

		characterID := sql.NullString{}
		if post.CharacterID != "" {
			characterID = sql.NullString{String: post.CharacterID, Valid: true}
			if err := s.requireCharacter(ctx, tx, post.CharacterID, created); err != nil {
				return err
			}
			var member int
			err := s.queryRow(ctx, tx,
				`SELECT 1 FROM scene_characters WHERE scene_id = ? AND character_id = ?`,
				post.SceneID, post.CharacterID,
			).Scan(&member)
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrNotMember
			}
			if err != nil {
				return fmt.Errorf("check scene membership: %w", err)
			}

			if willpower > 0 {
				var balance int
				if err := s.queryRow(ctx, tx,
					`SELECT willpower FROM characters WHERE id = ?`, post.CharacterID,
				).Scan(&balance); err != nil {
					return fmt.Errorf("read willpower: %w", err)
				}
				if take := min(willpower, balance); take > 0 {
					if _, err := s.exec(ctx, tx,
						`UPDATE characters SET willpower = willpower - ? WHERE id = ? AND willpower >= ?`,
						take, post.CharacterID, take,
					); err != nil {
						return fmt.Errorf("spend willpower: %w", err)
					}
					spent = take
				}
			}
		}

		if err := s.queryRow(ctx, tx,
			`SELECT COALESCE(MAX(sequence), 0) + 1 FROM posts WHERE scene_id = ?`, post.SceneID,
		).Scan(&created.Sequence); err != nil {
			return fmt.Errorf("next post sequence: %w", err)
		}
		if _, err := s.exec(ctx, tx,
			`INSERT INTO posts (id, scene_id, character_id, display_name, message, sequence, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			created.ID, created.SceneID, characterID, created.DisplayName, created.Message,
			created.Sequence, toMillis(created.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert post: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return created, spent, nil
}

func (s *Store) CloseScene(ctx context.Context, sceneID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.updateScene(ctx, `UPDATE scenes SET finished = ? WHERE id = ?`, true, sceneID)
}

func (s *Store) SetWaitingForStoryteller(ctx context.Context, sceneID string, waiting bool, note string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !waiting {
		note = ""
	}
	return s.updateScene(ctx,
		`UPDATE scenes SET waiting_for_storyteller = ?, storyteller_message = ? WHERE id = ?`,
		waiting, note, sceneID)
}

func (s *Store) ListPosts(ctx context.Context, sceneID string) ([]*models.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.lockScene(ctx, s.db, sceneID, nil); err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, s.db,
		`SELECT p.id, COALESCE(p.character_id, ''), COALESCE(c.name, ''), COALESCE(c.owner_id, ''),
		        p.display_name, p.message, p.sequence, p.created_at
		 FROM posts p
		 LEFT JOIN characters c ON c.id = p.character_id
		 WHERE p.scene_id = ?
		 ORDER BY p.sequence`, sceneID)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := []*models.Post{}
	for rows.Next() {
		post := &models.Post{SceneID: sceneID}
		var createdAt int64
		if err := rows.Scan(&post.ID, &post.CharacterID, &post.CharacterName, &post.OwnerID,
			&post.DisplayName, &post.Message, &post.Sequence, &createdAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		post.CreatedAt = fromMillis(createdAt)
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// lockScene confirms the scene exists, taking a row lock where the dialect
// has one. finished may be nil.
func (s *Store) lockScene(ctx context.Context, q querier, sceneID string, finished *bool) error {
	var isFinished bool
	query := `SELECT finished FROM scenes WHERE id = ?`
	if _, inTx := q.(*sql.Tx); inTx {
		query += s.dialect.LockForUpdate
	}
	err := s.queryRow(ctx, q, query, sceneID).Scan(&isFinished)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read scene: %w", err)
	}
	if finished != nil {
		*finished = isFinished
	}
	return nil
}

// requireCharacter confirms the character exists and, when post is non-nil,
// copies its name and owner onto it.
func (s *Store) requireCharacter(ctx context.Context, q querier, characterID string, post *models.Post) error {
	var name, owner string
	err := s.queryRow(ctx, q, `SELECT name, owner_id FROM characters WHERE id = ?`, characterID).Scan(&name, &owner)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read character: %w", err)
	}
	if post != nil {
		post.CharacterName = name
		post.OwnerID = owner
	}
	return nil
}

func (s *Store) updateScene(ctx context.Context, query string, args ...any) error {
	result, err := s.exec(ctx, s.db, query, args...)
	if err != nil {
		return fmt.Errorf("update scene: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update scene: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
