// Package manifest persists the per-actor image manifests and the actor
// catalog as JSON documents on disk.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"actorset/internal/domain"
	"actorset/internal/infra"
)

// Store reads and writes one manifest file per actor under a base directory.
// Saves are atomic (write-temp-then-rename) so a crash mid-write never
// corrupts the previous valid manifest.
type Store struct {
	dir string
}

// NewStore initializes a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("manifest: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("manifest: ensure directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the on-disk location of an actor's manifest.
func (s *Store) Path(actorID string) string {
	return filepath.Join(s.dir, actorID+".json")
}

// Load reads an actor's manifest. A missing manifest is reported as
// domain.ErrNotFound; callers treat it as "actor has zero training images".
func (s *Store) Load(actorID string) (domain.Manifest, error) {
	data, err := os.ReadFile(s.Path(actorID))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Manifest{}, fmt.Errorf("manifest for actor %s: %w", actorID, domain.ErrNotFound)
		}
		return domain.Manifest{}, fmt.Errorf("manifest: read %s: %w", actorID, err)
	}
	var m domain.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.Manifest{}, fmt.Errorf("manifest: decode %s: %w", actorID, err)
	}
	if m.ActorID == "" {
		m.ActorID = actorID
	}
	return m, nil
}

// Save writes an actor's manifest atomically.
func (s *Store) Save(actorID string, m domain.Manifest) error {
	if m.ActorID == "" {
		m.ActorID = actorID
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: encode %s: %w", actorID, err)
	}
	if err := infra.WriteFileAtomic(s.Path(actorID), data, 0o644); err != nil {
		return fmt.Errorf("manifest: save %s: %w", actorID, err)
	}
	return nil
}
