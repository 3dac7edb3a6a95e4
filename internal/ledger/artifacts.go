package ledger

import (
	"errors"
	"sync"

	"frontdesk/internal/domain"
)

type Artifacts struct {
	mu   sync.RWMutex
	byID map[string]domain.Artifact
}

func NewArtifacts() *Artifacts {
	return &Artifacts{byID: map[string]domain.Artifact{}}
}

// Store inserts the artifact. The review surface resolves artifacts by id,
// so storing must happen before any notification that references one.
func (a *Artifacts) Store(art domain.Artifact) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.byID[art.ID]; ok {
		return errors.New("artifact id already exists")
	}
	a.byID[art.ID] = art
	return nil
}

func (a *Artifacts) Get(id string) (domain.Artifact, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	art, ok := a.byID[id]
	if !ok {
		return domain.Artifact{}, ErrNotFound
	}
	return art, nil
}

func (a *Artifacts) List() []domain.Artifact {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.Artifact, 0, len(a.byID))
	for _, art := range a.byID {
		out = append(out, art)
	}
	return out
}

// Update applies fn to the artifact under the lock.
func (a *Artifacts) Update(id string, fn func(*domain.Artifact) error) (domain.Artifact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	art, ok := a.byID[id]
	if !ok {
		return domain.Artifact{}, ErrNotFound
	}
	work := art
	if err := fn(&work); err != nil {
		return domain.Artifact{}, err
	}
	a.byID[id] = work
	return work, nil
}
