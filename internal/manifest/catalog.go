package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"actorset/internal/domain"
)

// Catalog is the read surface over the actors.json registry created by the
// actor-onboarding flow. Balancing never mutates it.
type Catalog struct {
	path string
}

// NewCatalog points at an actors.json file.
func NewCatalog(path string) *Catalog {
	return &Catalog{path: path}
}

// Load returns all registered actors in file order.
func (c *Catalog) Load() ([]domain.Actor, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("actor catalog %s: %w", c.path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("actor catalog: read: %w", err)
	}
	var actors []domain.Actor
	if err := json.Unmarshal(data, &actors); err != nil {
		return nil, fmt.Errorf("actor catalog: decode: %w", err)
	}
	for i, a := range actors {
		if strings.TrimSpace(a.ID) == "" {
			return nil, fmt.Errorf("actor catalog: entry %d has no id: %w", i, domain.ErrInvalidActor)
		}
	}
	return actors, nil
}

// Find returns the actor with the given id.
func (c *Catalog) Find(actorID string) (domain.Actor, error) {
	if strings.TrimSpace(actorID) == "" {
		return domain.Actor{}, fmt.Errorf("actor id is required: %w", domain.ErrInvalidActor)
	}
	actors, err := c.Load()
	if err != nil {
		return domain.Actor{}, err
	}
	for _, a := range actors {
		if a.ID == actorID {
			return a, nil
		}
	}
	return domain.Actor{}, fmt.Errorf("actor %s: %w", actorID, domain.ErrNotFound)
}
