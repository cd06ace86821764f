// Package fixtures seeds a store with characters and scenes from a YAML file,
// for development setups where no character service is running.
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Vasu1712/scenyx-narrator/internal/models"
	"github.com/Vasu1712/scenyx-narrator/internal/storage"
)

// Seed is the document layout:
//
//	characters:
//	  - id: c1
//	    name: Mara Voss
//	    owner: user-a
//	    willpower: 3
//	    stats: {dexterity: 3, firearms: 2}
//	scenes:
//	  - id: s1
//	    name: Elysium
//	    members: [c1]
type Seed struct {
	Characters []CharacterSeed `yaml:"characters"`
	Scenes     []SceneSeed     `yaml:"scenes"`
}

type CharacterSeed struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name"`
	Owner     string         `yaml:"owner"`
	Willpower int            `yaml:"willpower"`
	Stats     map[string]int `yaml:"stats"`
}

type SceneSeed struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Finished bool     `yaml:"finished"`
	Members  []string `yaml:"members"`
}

// Seeder is the write side of a store that Apply needs.
type Seeder interface {
	CreateScene(ctx context.Context, scene models.Scene) (*models.Scene, error)
	CreateCharacter(ctx context.Context, character models.Character) (*models.Character, error)
	AddCharacterToScene(ctx context.Context, sceneID, characterID string) (bool, error)
	CloseScene(ctx context.Context, sceneID string) error
}

// LoadFile reads a seed document from path.
func LoadFile(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a seed document. Unknown keys are an error.
func Decode(r io.Reader) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if err := seed.validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

func (s *Seed) validate() error {
	characters := make(map[string]bool, len(s.Characters))
	for i, c := range s.Characters {
		if c.ID == "" || c.Name == "" || c.Owner == "" {
			return fmt.Errorf("character %d: id, name and owner are required", i+1)
		}
		if c.Willpower < 0 {
			return fmt.Errorf("character %s: willpower must not be negative", c.ID)
		}
		characters[c.ID] = true
	}
	for i, scene := range s.Scenes {
		if scene.ID == "" || scene.Name == "" {
			return fmt.Errorf("scene %d: id and name are required", i+1)
		}
		for _, member := range scene.Members {
			if !characters[member] {
				return fmt.Errorf("scene %s: unknown member %s", scene.ID, member)
			}
		}
	}
	return nil
}

// Apply writes the seed into store. Records that already exist are left
// untouched, so a persistent store can be seeded on every start.
func Apply(ctx context.Context, store Seeder, seed *Seed) error {
	for _, c := range seed.Characters {
		_, err := store.CreateCharacter(ctx, models.Character{
			ID:        c.ID,
			Name:      c.Name,
			OwnerID:   c.Owner,
			Willpower: c.Willpower,
			Stats:     c.Stats,
		})
		if err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
			return fmt.Errorf("seed character %s: %w", c.ID, err)
		}
	}

	for _, scene := range seed.Scenes {
		_, err := store.CreateScene(ctx, models.Scene{ID: scene.ID, Name: scene.Name})
		if errors.Is(err, storage.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed scene %s: %w", scene.ID, err)
		}
		for _, member := range scene.Members {
			if _, err := store.AddCharacterToScene(ctx, scene.ID, member); err != nil {
				return fmt.Errorf("seed scene %s member %s: %w", scene.ID, member, err)
			}
		}
		if scene.Finished {
			if err := store.CloseScene(ctx, scene.ID); err != nil {
				return fmt.Errorf("seed scene %s: %w", scene.ID, err)
			}
		}
	}

	log.Printf("[Store] Seeded %d characters and %d scenes", len(seed.Characters), len(seed.Scenes))
	return nil
}
