package ledger

import (
	"sync"

	"frontdesk/internal/domain"
)

// Tasks is the audit trail of routed work, one record per assignment.
type Tasks struct {
	mu   sync.RWMutex
	byID map[string]domain.Task
	ids  []string // insertion order
}

func NewTasks() *Tasks {
	return &Tasks{byID: map[string]domain.Task{}}
}

func (t *Tasks) Add(task domain.Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[task.ID]; ok {
		return
	}
	t.byID[task.ID] = task
	t.ids = append(t.ids, task.ID)
}

func (t *Tasks) Get(id string) (domain.Task, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	task, ok := t.byID[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	return task, nil
}

func (t *Tasks) List() []domain.Task {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Task, 0, len(t.ids))
	for _, id := range t.ids {
		out = append(out, t.byID[id])
	}
	return out
}

// ByConversation returns the newest task for a conversation, if any.
func (t *Tasks) ByConversation(conversationID string) (domain.Task, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.ids) - 1; i >= 0; i-- {
		task := t.byID[t.ids[i]]
		if task.ConversationID == conversationID {
			return task, true
		}
	}
	return domain.Task{}, false
}

// Update applies fn to the task under the lock.
func (t *Tasks) Update(id string, fn func(*domain.Task) error) (domain.Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.byID[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	work := task
	if err := fn(&work); err != nil {
		return domain.Task{}, err
	}
	t.byID[id] = work
	return work, nil
}
