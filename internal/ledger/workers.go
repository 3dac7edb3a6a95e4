package ledger

import (
	"errors"
	"sort"
	"sync"

	"frontdesk/internal/domain"
)

// ErrNoIdleWorker is returned when no worker of the requested role is idle.
var ErrNoIdleWorker = errors.New("no idle worker for role")

// Workers is the worker directory. Assignment is a check-and-set under one
// lock so a worker is never working for two conversations at once.
type Workers struct {
	mu   sync.RWMutex
	byID map[string]domain.Worker
	ids  []string // roster order
}

func NewWorkers(roster []domain.Worker) *Workers {
	w := &Workers{byID: make(map[string]domain.Worker, len(roster))}
	for _, worker := range roster {
		if worker.Status == "" {
			worker.Status = domain.WorkerIdle
		}
		if _, ok := w.byID[worker.ID]; ok {
			continue
		}
		w.byID[worker.ID] = worker
		w.ids = append(w.ids, worker.ID)
	}
	return w
}

func (w *Workers) Get(id string) (domain.Worker, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	worker, ok := w.byID[id]
	if !ok {
		return domain.Worker{}, ErrNotFound
	}
	return cloneWorker(worker), nil
}

func (w *Workers) List() []domain.Worker {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]domain.Worker, 0, len(w.ids))
	for _, id := range w.ids {
		out = append(out, cloneWorker(w.byID[id]))
	}
	return out
}

// AssignIdle picks the least-recently-assigned idle worker with the given
// role, marks it working with the task label and returns it. Checking and
// setting happen in one critical section.
func (w *Workers) AssignIdle(role, taskLabel, now string) (domain.Worker, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var candidates []domain.Worker
	for _, id := range w.ids {
		worker := w.byID[id]
		if worker.Role == role && worker.Status == domain.WorkerIdle {
			candidates = append(candidates, worker)
		}
	}
	if len(candidates) == 0 {
		return domain.Worker{}, ErrNoIdleWorker
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].LastAssignedAt < candidates[j].LastAssignedAt
	})
	picked := candidates[0]
	picked.Status = domain.WorkerWorking
	picked.CurrentTask = &taskLabel
	picked.LastAssignedAt = now
	w.byID[picked.ID] = picked
	return cloneWorker(picked), nil
}

// Assign marks a specific worker working with the task label. It fails when
// the worker is missing or not idle, so a regeneration can wait for the same
// worker to free up instead of stealing a busy one.
func (w *Workers) Assign(id, taskLabel, now string) (domain.Worker, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	worker, ok := w.byID[id]
	if !ok {
		return domain.Worker{}, ErrNotFound
	}
	if worker.Status != domain.WorkerIdle {
		return domain.Worker{}, ErrNoIdleWorker
	}
	worker.Status = domain.WorkerWorking
	worker.CurrentTask = &taskLabel
	worker.LastAssignedAt = now
	w.byID[id] = worker
	return cloneWorker(worker), nil
}

// SetBusy marks a worker working with a label, regardless of its current
// state. Used for the orchestrator while a message is being processed.
func (w *Workers) SetBusy(id, taskLabel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	worker, ok := w.byID[id]
	if !ok {
		return
	}
	worker.Status = domain.WorkerWorking
	worker.CurrentTask = &taskLabel
	w.byID[id] = worker
}

// Release returns a worker to idle without touching its counters.
func (w *Workers) Release(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	worker, ok := w.byID[id]
	if !ok {
		return
	}
	worker.Status = domain.WorkerIdle
	worker.CurrentTask = nil
	w.byID[id] = worker
}

// Settle returns a worker to idle and increments its completed counter.
// Settling an already idle worker is a no-op, which makes stale settlement
// timers harmless.
func (w *Workers) Settle(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	worker, ok := w.byID[id]
	if !ok {
		return
	}
	if worker.Status == domain.WorkerIdle {
		return
	}
	worker.Status = domain.WorkerIdle
	worker.CurrentTask = nil
	worker.CompletedTasks++
	w.byID[id] = worker
}

func cloneWorker(worker domain.Worker) domain.Worker {
	out := worker
	if worker.CurrentTask != nil {
		v := *worker.CurrentTask
		out.CurrentTask = &v
	}
	return out
}
