package ledger

import (
	"errors"
	"testing"

	"frontdesk/internal/domain"
)

func roster() []domain.Worker {
	return []domain.Worker{
		{ID: "w1", Name: "A", Role: "copywriter", LastAssignedAt: "2025-01-02T00:00:00Z"},
		{ID: "w2", Name: "B", Role: "copywriter", LastAssignedAt: "2025-01-01T00:00:00Z"},
		{ID: "w3", Name: "C", Role: "researcher"},
	}
}

func TestAssignIdlePicksLeastRecentlyAssigned(t *testing.T) {
	w := NewWorkers(roster())
	picked, err := w.AssignIdle("copywriter", "job", "2025-02-01T00:00:00Z")
	if err != nil {
		t.Fatal(err)
	}
	if picked.ID != "w2" {
		t.Fatalf("picked %s, want w2 (oldest last_assigned_at)", picked.ID)
	}
	if picked.Status != domain.WorkerWorking || picked.CurrentTask == nil {
		t.Fatalf("picked worker not marked working: %+v", picked)
	}

	// Second assignment takes the remaining copywriter; a third finds none.
	second, err := w.AssignIdle("copywriter", "job2", "2025-02-01T00:00:01Z")
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != "w1" {
		t.Fatalf("second pick %s, want w1", second.ID)
	}
	if _, err := w.AssignIdle("copywriter", "job3", "2025-02-01T00:00:02Z"); !errors.Is(err, ErrNoIdleWorker) {
		t.Fatalf("err = %v, want ErrNoIdleWorker", err)
	}
}

func TestAssignRefusesBusyWorker(t *testing.T) {
	w := NewWorkers(roster())
	if _, err := w.Assign("w1", "job", "2025-02-01T00:00:00Z"); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Assign("w1", "job2", "2025-02-01T00:00:01Z"); !errors.Is(err, ErrNoIdleWorker) {
		t.Fatalf("err = %v, want ErrNoIdleWorker", err)
	}
	if _, err := w.Assign("missing", "job", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSettleIncrementsOnceAndToleratesStaleCalls(t *testing.T) {
	w := NewWorkers(roster())
	if _, err := w.Assign("w3", "dig", "2025-02-01T00:00:00Z"); err != nil {
		t.Fatal(err)
	}
	w.Settle("w3")
	w.Settle("w3") // stale timer
	worker, err := w.Get("w3")
	if err != nil {
		t.Fatal(err)
	}
	if worker.CompletedTasks != 1 {
		t.Fatalf("completed = %d, want 1", worker.CompletedTasks)
	}
	if worker.Status != domain.WorkerIdle || worker.CurrentTask != nil {
		t.Fatalf("worker not idle after settle: %+v", worker)
	}
}

func TestOneActiveConversationPerOwner(t *testing.T) {
	c := NewConversations()
	first := domain.Conversation{ID: "c1", OwnerKey: "chat:1", Phase: domain.PhaseGathering}
	if err := c.Start(first); err != nil {
		t.Fatal(err)
	}
	err := c.Start(domain.Conversation{ID: "c2", OwnerKey: "chat:1", Phase: domain.PhaseGathering})
	if !errors.Is(err, ErrOwnerBusy) {
		t.Fatalf("err = %v, want ErrOwnerBusy", err)
	}

	// Completing releases the slot.
	if _, err := c.Update("c1", func(conv *domain.Conversation) error {
		conv.Phase = domain.PhaseComplete
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if _, active := c.Active("chat:1"); active {
		t.Fatal("owner slot still held after completion")
	}
	if err := c.Start(domain.Conversation{ID: "c2", OwnerKey: "chat:1", Phase: domain.PhaseGathering}); err != nil {
		t.Fatalf("start after completion: %v", err)
	}
}

func TestByResultResolvesOldAndNewArtifacts(t *testing.T) {
	c := NewConversations()
	if err := c.Start(domain.Conversation{ID: "c1", OwnerKey: "chat:2", Phase: domain.PhaseReview}); err != nil {
		t.Fatal(err)
	}
	for _, artID := range []string{"a1", "a2"} {
		id := artID
		if _, err := c.Update("c1", func(conv *domain.Conversation) error {
			conv.ResultID = &id
			return nil
		}); err != nil {
			t.Fatal(err)
		}
	}
	for _, artID := range []string{"a1", "a2"} {
		conv, err := c.ByResult(artID)
		if err != nil {
			t.Fatalf("ByResult(%s): %v", artID, err)
		}
		if conv.ID != "c1" {
			t.Fatalf("ByResult(%s) = %s", artID, conv.ID)
		}
	}
}

func TestConversationUpdateIsolation(t *testing.T) {
	c := NewConversations()
	if err := c.Start(domain.Conversation{
		ID: "c1", OwnerKey: "chat:3", Phase: domain.PhaseGathering,
		CollectedFields: map[string]string{"topic": "go"},
	}); err != nil {
		t.Fatal(err)
	}
	got, _ := c.Get("c1")
	got.CollectedFields["topic"] = "mutated"
	fresh, _ := c.Get("c1")
	if fresh.CollectedFields["topic"] != "go" {
		t.Fatal("caller mutation leaked into the store")
	}
}
