// Package ledger holds the in-memory stores the orchestration engine owns:
// conversations, artifacts, workers, tasks. Every method is an atomic
// read-modify-write under the store's lock; callers never see interior
// pointers.
package ledger

import (
	"errors"
	"sync"

	"frontdesk/internal/domain"
)

var ErrNotFound = errors.New("not found")

// ErrOwnerBusy is returned when an owner key already has a non-complete
// conversation; at most one may be active per owner at a time.
var ErrOwnerBusy = errors.New("owner already has an active conversation")

type Conversations struct {
	mu      sync.RWMutex
	byID    map[string]domain.Conversation
	byOwner map[string]string // owner key -> active (non-complete) conversation id
	byResult map[string]string // artifact id -> conversation id
}

func NewConversations() *Conversations {
	return &Conversations{
		byID:     map[string]domain.Conversation{},
		byOwner:  map[string]string{},
		byResult: map[string]string{},
	}
}

// Start inserts a new conversation and claims the owner index slot.
func (c *Conversations) Start(conv domain.Conversation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[conv.ID]; ok {
		return errors.New("conversation id already exists")
	}
	if _, ok := c.byOwner[conv.OwnerKey]; ok {
		return ErrOwnerBusy
	}
	c.byID[conv.ID] = conv
	if conv.Phase != domain.PhaseComplete {
		c.byOwner[conv.OwnerKey] = conv.ID
	}
	return nil
}

func (c *Conversations) Get(id string) (domain.Conversation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conv, ok := c.byID[id]
	if !ok {
		return domain.Conversation{}, ErrNotFound
	}
	return cloneConversation(conv), nil
}

// Active returns the owner's non-complete conversation, if any.
func (c *Conversations) Active(ownerKey string) (domain.Conversation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byOwner[ownerKey]
	if !ok {
		return domain.Conversation{}, false
	}
	return cloneConversation(c.byID[id]), true
}

// ByResult resolves the conversation whose latest artifact is the given id.
func (c *Conversations) ByResult(artifactID string) (domain.Conversation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byResult[artifactID]
	if !ok {
		return domain.Conversation{}, ErrNotFound
	}
	return cloneConversation(c.byID[id]), nil
}

func (c *Conversations) List() []domain.Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Conversation, 0, len(c.byID))
	for _, conv := range c.byID {
		out = append(out, cloneConversation(conv))
	}
	return out
}

// Update applies fn to the conversation under the lock and reindexes the
// owner and result slots afterwards. fn returning an error leaves the stored
// conversation untouched.
func (c *Conversations) Update(id string, fn func(*domain.Conversation) error) (domain.Conversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.byID[id]
	if !ok {
		return domain.Conversation{}, ErrNotFound
	}
	work := cloneConversation(conv)
	if err := fn(&work); err != nil {
		return domain.Conversation{}, err
	}
	c.byID[id] = work
	if work.Phase == domain.PhaseComplete {
		if c.byOwner[work.OwnerKey] == id {
			delete(c.byOwner, work.OwnerKey)
		}
	} else {
		c.byOwner[work.OwnerKey] = id
	}
	if work.ResultID != nil {
		c.byResult[*work.ResultID] = id
	}
	return cloneConversation(work), nil
}

func cloneConversation(conv domain.Conversation) domain.Conversation {
	out := conv
	if conv.RequiredFields != nil {
		out.RequiredFields = append([]string(nil), conv.RequiredFields...)
	}
	if conv.CollectedFields != nil {
		fields := make(map[string]string, len(conv.CollectedFields))
		for k, v := range conv.CollectedFields {
			fields[k] = v
		}
		out.CollectedFields = fields
	}
	if conv.Messages != nil {
		out.Messages = append([]domain.Message(nil), conv.Messages...)
	}
	if conv.AssignedTo != nil {
		v := *conv.AssignedTo
		out.AssignedTo = &v
	}
	if conv.ResultID != nil {
		v := *conv.ResultID
		out.ResultID = &v
	}
	if conv.Result != nil {
		v := *conv.Result
		out.Result = &v
	}
	return out
}
