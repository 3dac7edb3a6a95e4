package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"frontdesk/internal/ai"
	"frontdesk/internal/config"
	"frontdesk/internal/domain"
	"frontdesk/internal/journal"
)

// manualScheduler queues callbacks so tests fire settlements and assignment
// retries deterministically, outside any held conversation lock.
type manualScheduler struct {
	mu    sync.Mutex
	queue []func()
}

func (s *manualScheduler) AfterFunc(_ time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, fn)
}

func (s *manualScheduler) fire(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		t.Fatal("no scheduled work to fire")
	}
	fn := s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()
	fn()
}

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

type testEnv struct {
	eng   *Engine
	sched *manualScheduler
	j     *journal.Journal
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	j, err := journal.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	cfg := config.Default()
	eng := New(cfg, ai.Offline{}, j, nil)
	sched := &manualScheduler{}
	eng.Scheduler = sched
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time { return fixed }
	j.Now = eng.Now
	return &testEnv{eng: eng, sched: sched, j: j}
}

func (env *testEnv) ingest(t *testing.T, owner, text string) IngestResult {
	t.Helper()
	res, err := env.eng.Ingest(context.Background(), domain.InboundMessage{OwnerKey: owner, Text: text})
	if err != nil {
		t.Fatalf("ingest %q: %v", text, err)
	}
	return res
}

// toReview walks a conversation through a complete newsletter request and one
// settlement, returning it in the review phase.
func (env *testEnv) toReview(t *testing.T, owner string) domain.Conversation {
	t.Helper()
	res := env.ingest(t, owner, "Create a newsletter about AI trends for developers, keep it professional")
	if res.Phase != domain.PhaseGenerating {
		t.Fatalf("phase after complete request = %s, want generating", res.Phase)
	}
	env.sched.fire(t)
	conv, err := env.eng.Conversations.Get(res.ConversationID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if conv.Phase != domain.PhaseReview {
		t.Fatalf("phase after settlement = %s, want review", conv.Phase)
	}
	if conv.ResultID == nil {
		t.Fatal("conversation has no result after settlement")
	}
	return conv
}

func TestGreetingCompletesImmediately(t *testing.T) {
	env := newTestEnv(t)
	res := env.ingest(t, "chat:1", "hi")
	if res.Phase != domain.PhaseComplete {
		t.Fatalf("phase = %s, want complete", res.Phase)
	}
	if res.Intent != domain.IntentGreeting {
		t.Fatalf("intent = %s, want greeting", res.Intent)
	}
	if len(res.Replies) != 1 || !strings.Contains(res.Replies[0], "office assistant") {
		t.Fatalf("unexpected replies %v", res.Replies)
	}
	// The closed conversation frees the owner slot.
	res2 := env.ingest(t, "chat:1", "hello")
	if res2.ConversationID == res.ConversationID {
		t.Fatal("greeting conversation was reused after completing")
	}
}

func TestGatheringAsksForMissingFields(t *testing.T) {
	env := newTestEnv(t)
	res := env.ingest(t, "chat:2", "I need a newsletter")
	if res.Phase != domain.PhaseGathering {
		t.Fatalf("phase = %s, want gathering", res.Phase)
	}
	if len(res.Replies) != 1 || !strings.Contains(res.Replies[0], "topic") {
		t.Fatalf("expected a topic question, got %v", res.Replies)
	}

	res2 := env.ingest(t, "chat:2", "It's about coffee brewing for home baristas, casual tone please")
	if res2.ConversationID != res.ConversationID {
		t.Fatal("follow-up started a new conversation")
	}
	if res2.Phase != domain.PhaseGenerating {
		t.Fatalf("phase after filling fields = %s, want generating", res2.Phase)
	}
	conv, _ := env.eng.Conversations.Get(res.ConversationID)
	for field, want := range map[string]string{
		"topic":    "coffee brewing for home baristas",
		"audience": "home baristas",
		"tone":     "casual",
	} {
		if got := conv.CollectedFields[field]; got != want {
			t.Errorf("field %s = %q, want %q", field, got, want)
		}
	}
}

func TestFieldMergeNeverDropsValues(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, "chat:3", "newsletter about gardening")
	conv, _ := env.eng.Conversations.Active("chat:3")
	if conv.CollectedFields["topic"] != "gardening" {
		t.Fatalf("topic = %q, want gardening", conv.CollectedFields["topic"])
	}
	// A later message with no topic clause must not erase it.
	env.ingest(t, "chat:3", "make the tone friendly")
	conv, _ = env.eng.Conversations.Active("chat:3")
	if conv.CollectedFields["topic"] != "gardening" {
		t.Fatalf("topic after second turn = %q, want gardening", conv.CollectedFields["topic"])
	}
	if conv.CollectedFields["tone"] != "friendly" {
		t.Fatalf("tone = %q, want friendly", conv.CollectedFields["tone"])
	}
}

func TestSettlementProducesArtifactAndFreesWorker(t *testing.T) {
	env := newTestEnv(t)
	conv := env.toReview(t, "chat:4")

	art, err := env.eng.Artifacts.Get(*conv.ResultID)
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	if art.Status != domain.ArtifactPendingReview {
		t.Fatalf("artifact status = %s, want pending-review", art.Status)
	}
	if art.CreatedBy != "copywriter-1" {
		t.Fatalf("artifact created by %s, want copywriter-1", art.CreatedBy)
	}
	if !strings.Contains(art.Body, "AI trends") {
		t.Fatalf("artifact body missing topic: %q", art.Body)
	}

	worker, _ := env.eng.Workers.Get("copywriter-1")
	if worker.Status != domain.WorkerIdle {
		t.Fatalf("worker status = %s, want idle", worker.Status)
	}
	if worker.CompletedTasks != 13 {
		t.Fatalf("completed tasks = %d, want 13", worker.CompletedTasks)
	}

	task, ok := env.eng.Tasks.ByConversation(conv.ID)
	if !ok {
		t.Fatal("no task for conversation")
	}
	if task.Status != domain.TaskCompleted {
		t.Fatalf("task status = %s, want completed", task.Status)
	}
}

func TestStaleSettlementIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	conv := env.toReview(t, "chat:5")
	task, _ := env.eng.Tasks.ByConversation(conv.ID)

	env.eng.Settle(context.Background(), conv.ID, task.ID)

	if got := len(env.eng.Artifacts.List()); got != 1 {
		t.Fatalf("artifact count after stale settle = %d, want 1", got)
	}
	worker, _ := env.eng.Workers.Get("copywriter-1")
	if worker.CompletedTasks != 13 {
		t.Fatalf("completed tasks = %d, want 13", worker.CompletedTasks)
	}
}

func TestApproveIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	conv := env.toReview(t, "chat:6")
	id := *conv.ResultID

	art, err := env.eng.ApproveArtifact(context.Background(), id, "reviewer")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if art.Status != domain.ArtifactApproved {
		t.Fatalf("status = %s, want approved", art.Status)
	}
	again, err := env.eng.ApproveArtifact(context.Background(), id, "reviewer")
	if err != nil {
		t.Fatalf("second approve: %v", err)
	}
	if again.Status != domain.ArtifactApproved {
		t.Fatalf("second approve status = %s", again.Status)
	}

	conv, _ = env.eng.Conversations.Get(conv.ID)
	if conv.Phase != domain.PhaseComplete {
		t.Fatalf("conversation phase = %s, want complete", conv.Phase)
	}
	if _, active := env.eng.Conversations.Active("chat:6"); active {
		t.Fatal("completed conversation still holds the owner slot")
	}
}

func TestRejectRequiresFeedback(t *testing.T) {
	env := newTestEnv(t)
	conv := env.toReview(t, "chat:7")

	_, err := env.eng.RejectArtifact(context.Background(), *conv.ResultID, "   ", "reviewer")
	if !errors.Is(err, ErrFeedbackRequired) {
		t.Fatalf("err = %v, want ErrFeedbackRequired", err)
	}
	art, _ := env.eng.Artifacts.Get(*conv.ResultID)
	if art.Status != domain.ArtifactPendingReview {
		t.Fatalf("artifact status changed to %s on refused reject", art.Status)
	}
}

func TestRejectReopensAndRegenerates(t *testing.T) {
	env := newTestEnv(t)
	conv := env.toReview(t, "chat:8")
	firstID := *conv.ResultID

	art, err := env.eng.RejectArtifact(context.Background(), firstID, "make it shorter", "reviewer")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if art.Status != domain.ArtifactRejected || art.Feedback != "make it shorter" {
		t.Fatalf("rejected artifact = %+v", art)
	}
	conv, _ = env.eng.Conversations.Get(conv.ID)
	if conv.Phase != domain.PhaseGathering {
		t.Fatalf("phase after reject = %s, want gathering", conv.Phase)
	}
	if conv.CollectedFields["topic"] == "" {
		t.Fatal("collected fields were dropped on reject")
	}

	// The next message re-runs the gate and goes back to the same worker.
	res := env.ingest(t, "chat:8", "go ahead")
	if res.Phase != domain.PhaseGenerating {
		t.Fatalf("phase after go-ahead = %s, want generating", res.Phase)
	}
	env.sched.fire(t)
	conv, _ = env.eng.Conversations.Get(conv.ID)
	if conv.ResultID == nil || *conv.ResultID == firstID {
		t.Fatal("regeneration did not mint a new artifact id")
	}
	if conv.AssignedTo == nil || *conv.AssignedTo != "copywriter-1" {
		t.Fatalf("assignee changed on regeneration: %v", conv.AssignedTo)
	}

	// The rejected artifact stays rejected; only the replacement is reviewable.
	if _, err := env.eng.ApproveArtifact(context.Background(), firstID, "reviewer"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("approving rejected artifact: err = %v, want ErrInvalidTransition", err)
	}
	if _, err := env.eng.ApproveArtifact(context.Background(), *conv.ResultID, "reviewer"); err != nil {
		t.Fatalf("approving replacement: %v", err)
	}
}

func TestAssignmentDefersWhileWorkersBusy(t *testing.T) {
	env := newTestEnv(t)
	env.eng.Config.Assignment.MaxAttempts = 2
	env.eng.Workers.SetBusy("copywriter-1", "another job")

	res := env.ingest(t, "chat:9", "Create a newsletter about AI trends for developers, keep it professional")
	if res.Phase != domain.PhaseGenerating {
		t.Fatalf("phase while deferred = %s, want generating", res.Phase)
	}
	if env.sched.pending() != 1 {
		t.Fatalf("pending retries = %d, want 1", env.sched.pending())
	}

	env.sched.fire(t) // retry 1: still busy, defers again
	env.sched.fire(t) // retry 2: budget exhausted
	conv, _ := env.eng.Conversations.Get(res.ConversationID)
	if conv.Phase != domain.PhaseGathering {
		t.Fatalf("phase after exhausted retries = %s, want gathering", conv.Phase)
	}
	if conv.CollectedFields["topic"] == "" {
		t.Fatal("fields dropped while deferred")
	}

	// Once the worker frees up, the saved details carry the request through.
	env.eng.Workers.Release("copywriter-1")
	res2 := env.ingest(t, "chat:9", "please go ahead")
	if res2.Phase != domain.PhaseGenerating {
		t.Fatalf("phase after worker freed = %s, want generating", res2.Phase)
	}
}

func TestReviewPhaseMessageDoesNotRegenerate(t *testing.T) {
	env := newTestEnv(t)
	conv := env.toReview(t, "chat:10")

	res := env.ingest(t, "chat:10", "any update?")
	if res.Phase != domain.PhaseReview {
		t.Fatalf("phase = %s, want review", res.Phase)
	}
	if len(res.Replies) != 1 || !strings.Contains(res.Replies[0], "review") {
		t.Fatalf("unexpected replies %v", res.Replies)
	}
	if got := len(env.eng.Artifacts.List()); got != 1 {
		t.Fatalf("artifact count = %d, want 1", got)
	}
	if conv2, _ := env.eng.Conversations.Get(conv.ID); conv2.Phase != domain.PhaseReview {
		t.Fatalf("phase drifted to %s", conv2.Phase)
	}
}

func TestJournalRecordsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	conv := env.toReview(t, "chat:11")
	if _, err := env.eng.ApproveArtifact(context.Background(), *conv.ResultID, "reviewer"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	events, err := env.j.EventsAfter(context.Background(), 100, 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	seen := map[string]bool{}
	for _, evt := range events {
		seen[evt.Type] = true
	}
	for _, want := range []string{
		"conversation.started",
		"message.received",
		"intent.classified",
		"conversation.assigned",
		"artifact.created",
		"task.settled",
		"artifact.approved",
		"conversation.completed",
	} {
		if !seen[want] {
			t.Errorf("journal missing event %s (got %v)", want, keys(seen))
		}
	}
}

func TestIngestValidatesInput(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.eng.Ingest(context.Background(), domain.InboundMessage{Text: "hi"}); !errors.Is(err, ErrOwnerRequired) {
		t.Fatalf("missing owner: err = %v", err)
	}
	if _, err := env.eng.Ingest(context.Background(), domain.InboundMessage{OwnerKey: "chat:12", Text: "  "}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("blank text: err = %v", err)
	}
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
