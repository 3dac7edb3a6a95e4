// Package engine drives conversations from inbound chat message to approved
// artifact: intent classification, field gathering, worker assignment,
// settlement and the review loop. All state lives in the ledgers; the journal
// records every transition.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"frontdesk/internal/ai"
	"frontdesk/internal/config"
	"frontdesk/internal/domain"
	"frontdesk/internal/journal"
	"frontdesk/internal/ledger"
	"frontdesk/internal/notify"
)

var (
	ErrOwnerRequired     = errors.New("owner key is required")
	ErrEmptyMessage      = errors.New("message text is required")
	ErrFeedbackRequired  = errors.New("rejection feedback is required")
	ErrInvalidTransition = errors.New("invalid artifact transition")
)

const orchestratorRole = "orchestrator"

type Engine struct {
	Conversations *ledger.Conversations
	Artifacts     *ledger.Artifacts
	Workers       *ledger.Workers
	Tasks         *ledger.Tasks
	Gateway       ai.Gateway
	Journal       *journal.Journal
	Notifier      notify.Notifier
	Config        *config.Config
	Scheduler     Scheduler
	Now           func() time.Time
	Logger        *log.Logger

	fallback ai.Offline
	owners   ownerLocks
}

// New builds an engine with the worker roster from config and fresh ledgers.
func New(cfg *config.Config, gw ai.Gateway, j *journal.Journal, n notify.Notifier) *Engine {
	roster := make([]domain.Worker, 0, len(cfg.Workers))
	for _, w := range cfg.Workers {
		roster = append(roster, domain.Worker{
			ID:             w.ID,
			Name:           w.Name,
			Role:           w.Role,
			TrustLevel:     w.TrustLevel,
			Avatar:         w.Avatar,
			Status:         domain.WorkerIdle,
			CompletedTasks: w.CompletedTasks,
			ApprovalRate:   w.ApprovalRate,
		})
	}
	return &Engine{
		Conversations: ledger.NewConversations(),
		Artifacts:     ledger.NewArtifacts(),
		Workers:       ledger.NewWorkers(roster),
		Tasks:         ledger.NewTasks(),
		Gateway:       gw,
		Journal:       j,
		Notifier:      n,
		Config:        cfg,
		Scheduler:     TimerScheduler{},
		Now:           time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) nowStr() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e *Engine) logf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
	}
}

// IngestResult reports what one inbound message produced.
type IngestResult struct {
	ConversationID string        `json:"conversation_id"`
	Phase          domain.Phase  `json:"phase"`
	Intent         domain.Intent `json:"intent"`
	Replies        []string      `json:"replies,omitempty"`
}

// Ingest processes one inbound chat message end to end: it locates or starts
// the owner's active conversation, classifies intent, merges extracted
// fields, and either asks a clarifying question or hands the conversation to
// a worker. Messages for the same owner are serialized.
func (e *Engine) Ingest(ctx context.Context, msg domain.InboundMessage) (IngestResult, error) {
	text := strings.TrimSpace(msg.Text)
	if msg.OwnerKey == "" {
		return IngestResult{}, ErrOwnerRequired
	}
	if text == "" {
		return IngestResult{}, ErrEmptyMessage
	}
	unlock := e.owners.lock(msg.OwnerKey)
	defer unlock()

	if orch := e.orchestratorID(); orch != "" {
		e.Workers.SetBusy(orch, "Processing: "+snippet(text))
		defer e.Workers.Release(orch)
	}

	now := e.nowStr()
	userMsg := domain.Message{Role: "user", Content: text, Timestamp: now}
	conv, ok := e.Conversations.Active(msg.OwnerKey)
	if !ok {
		conv = domain.Conversation{
			ID:              uuid.NewString(),
			OwnerKey:        msg.OwnerKey,
			Phase:           domain.PhaseGathering,
			Intent:          domain.IntentUnknown,
			CollectedFields: map[string]string{},
			Messages:        []domain.Message{userMsg},
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := e.Conversations.Start(conv); err != nil {
			return IngestResult{}, err
		}
		e.append(ctx, "conversation.started", "conversation", conv.ID, msg.OwnerKey, journal.Payload{"owner_key": msg.OwnerKey})
	} else {
		var err error
		conv, err = e.Conversations.Update(conv.ID, func(c *domain.Conversation) error {
			c.Messages = append(c.Messages, userMsg)
			c.UpdatedAt = now
			return nil
		})
		if err != nil {
			return IngestResult{}, err
		}
	}
	e.append(ctx, "message.received", "conversation", conv.ID, msg.OwnerKey, journal.Payload{"from": msg.From, "kind": msg.Kind})

	// Mid-flight phases do not restart the pipeline.
	switch conv.Phase {
	case domain.PhaseGenerating:
		return e.reply(ctx, conv, "Still working on it — I'll send a preview as soon as it's ready.")
	case domain.PhaseReview:
		return e.reply(ctx, conv, "Your draft is ready and waiting for review. Approve it, or send feedback to get a new version.")
	}

	if !conv.Intent.Known() {
		analysis := e.classify(ctx, text)
		if analysis.Intent != conv.Intent {
			e.append(ctx, "intent.classified", "conversation", conv.ID, msg.OwnerKey,
				journal.Payload{"intent": analysis.Intent, "confidence": analysis.Confidence})
		}
		switch analysis.Intent {
		case domain.IntentGreeting, domain.IntentHelp:
			return e.closeWithCannedReply(ctx, conv, analysis.Intent)
		}
		var err error
		conv, err = e.Conversations.Update(conv.ID, func(c *domain.Conversation) error {
			c.Intent = analysis.Intent
			if c.Intent.Known() && len(c.RequiredFields) == 0 {
				c.RequiredFields = ai.RequiredFields(c.Intent)
			}
			c.UpdatedAt = now
			return nil
		})
		if err != nil {
			return IngestResult{}, err
		}
	}

	if !conv.Intent.Known() {
		question := e.clarify(ctx, conv.Messages)
		return e.askQuestion(ctx, conv, question)
	}

	extracted := e.extract(ctx, text, conv.CollectedFields)
	var mergedKeys []string
	conv, err := e.Conversations.Update(conv.ID, func(c *domain.Conversation) error {
		for k, v := range extracted {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if c.CollectedFields[k] != v {
				mergedKeys = append(mergedKeys, k)
			}
			c.CollectedFields[k] = v
		}
		c.Phase = domain.PhaseProcessing
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return IngestResult{}, err
	}
	if len(mergedKeys) > 0 {
		e.append(ctx, "fields.merged", "conversation", conv.ID, msg.OwnerKey, journal.Payload{"fields": mergedKeys})
	}

	comp := e.completeness(ctx, conv)
	if !comp.Complete {
		question := ""
		if len(comp.ClarifyingQuestions) > 0 {
			question = comp.ClarifyingQuestions[0]
		}
		if question == "" {
			question = e.clarify(ctx, conv.Messages)
		}
		return e.askQuestion(ctx, conv, question)
	}
	return e.assign(ctx, conv, 0)
}

// reply appends an assistant message and notifies the owner without changing
// phase.
func (e *Engine) reply(ctx context.Context, conv domain.Conversation, text string) (IngestResult, error) {
	now := e.nowStr()
	conv, err := e.Conversations.Update(conv.ID, func(c *domain.Conversation) error {
		c.Messages = append(c.Messages, domain.Message{Role: "assistant", Content: text, Timestamp: now})
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return IngestResult{}, err
	}
	e.notifyOwner(ctx, conv.ID, conv.OwnerKey, text)
	return e.result(conv, text), nil
}

// closeWithCannedReply finishes a greeting or help conversation in one turn.
func (e *Engine) closeWithCannedReply(ctx context.Context, conv domain.Conversation, intent domain.Intent) (IngestResult, error) {
	text := ai.WelcomeMessage()
	if intent == domain.IntentHelp {
		text = ai.HelpMessage()
	}
	now := e.nowStr()
	conv, err := e.Conversations.Update(conv.ID, func(c *domain.Conversation) error {
		c.Intent = intent
		c.Phase = domain.PhaseComplete
		c.Messages = append(c.Messages, domain.Message{Role: "assistant", Content: text, Timestamp: now})
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return IngestResult{}, err
	}
	e.append(ctx, "conversation.completed", "conversation", conv.ID, conv.OwnerKey, journal.Payload{"intent": intent})
	e.notifyOwner(ctx, conv.ID, conv.OwnerKey, text)
	return e.result(conv, text), nil
}

// askQuestion returns the conversation to gathering with a clarifying
// question.
func (e *Engine) askQuestion(ctx context.Context, conv domain.Conversation, question string) (IngestResult, error) {
	now := e.nowStr()
	conv, err := e.Conversations.Update(conv.ID, func(c *domain.Conversation) error {
		c.Phase = domain.PhaseGathering
		c.Messages = append(c.Messages, domain.Message{Role: "assistant", Content: question, Timestamp: now})
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return IngestResult{}, err
	}
	e.append(ctx, "question.asked", "conversation", conv.ID, conv.OwnerKey, journal.Payload{"missing": conv.MissingFields()})
	e.notifyOwner(ctx, conv.ID, conv.OwnerKey, question)
	return e.result(conv, question), nil
}

// assign routes a complete conversation to a worker. A conversation that
// already has an assignee waits for that same worker; it is never handed to
// a different one. Caller must hold the owner lock.
func (e *Engine) assign(ctx context.Context, conv domain.Conversation, attempt int) (IngestResult, error) {
	now := e.nowStr()
	label := taskTitle(conv)

	var worker domain.Worker
	var err error
	if conv.AssignedTo != nil {
		worker, err = e.Workers.Assign(*conv.AssignedTo, label, now)
	} else {
		role, ok := e.Config.Routing[string(conv.Intent)]
		if !ok || role == "" {
			return IngestResult{}, fmt.Errorf("no worker route for intent %s", conv.Intent)
		}
		worker, err = e.Workers.AssignIdle(role, label, now)
	}
	if errors.Is(err, ledger.ErrNoIdleWorker) {
		return e.deferAssignment(ctx, conv, attempt)
	}
	if err != nil {
		return IngestResult{}, err
	}

	task := domain.Task{
		ID:              uuid.NewString(),
		Title:           label,
		Description:     lastUserMessage(conv),
		AssignedTo:      worker.ID,
		ConversationID:  conv.ID,
		SourceMessageID: sourceMessageID(conv),
		Status:          domain.TaskInProgress,
		CreatedAt:       now,
	}
	e.Tasks.Add(task)

	conv, err = e.Conversations.Update(conv.ID, func(c *domain.Conversation) error {
		if c.AssignedTo == nil {
			c.AssignedTo = &worker.ID
		}
		c.Phase = domain.PhaseGenerating
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return IngestResult{}, err
	}
	e.append(ctx, "conversation.assigned", "conversation", conv.ID, conv.OwnerKey,
		journal.Payload{"worker_id": worker.ID, "task_id": task.ID})

	convID, taskID := conv.ID, task.ID
	e.Scheduler.AfterFunc(e.settleDelay(), func() {
		e.Settle(context.Background(), convID, taskID)
	})

	reply := fmt.Sprintf("Got it! %s is on your %s now. I'll send a preview shortly.", worker.Name, conv.Intent)
	nowReply := e.nowStr()
	conv, err = e.Conversations.Update(conv.ID, func(c *domain.Conversation) error {
		c.Messages = append(c.Messages, domain.Message{Role: "assistant", Content: reply, Timestamp: nowReply})
		c.UpdatedAt = nowReply
		return nil
	})
	if err != nil {
		return IngestResult{}, err
	}
	e.notifyOwner(ctx, conv.ID, conv.OwnerKey, reply)
	return e.result(conv, reply), nil
}

// deferAssignment holds a conversation in generating while every worker of
// the routed role is busy, retrying on a timer. After the attempt budget it
// gives up and returns the conversation to gathering.
func (e *Engine) deferAssignment(ctx context.Context, conv domain.Conversation, attempt int) (IngestResult, error) {
	now := e.nowStr()
	if attempt < e.Config.Assignment.MaxAttempts {
		conv, err := e.Conversations.Update(conv.ID, func(c *domain.Conversation) error {
			c.Phase = domain.PhaseGenerating
			c.UpdatedAt = now
			return nil
		})
		if err != nil {
			return IngestResult{}, err
		}
		e.append(ctx, "assignment.deferred", "conversation", conv.ID, conv.OwnerKey, journal.Payload{"attempt": attempt})
		convID := conv.ID
		next := attempt + 1
		e.Scheduler.AfterFunc(time.Duration(e.Config.Assignment.RetrySeconds)*time.Second, func() {
			e.retryAssign(convID, next)
		})
		var reply string
		if attempt == 0 {
			reply = "Everyone who can take this is busy right now — you're next in line, I'll start as soon as someone frees up."
			e.notifyOwner(ctx, conv.ID, conv.OwnerKey, reply)
		}
		return e.result(conv, reply), nil
	}

	reply := "I couldn't get a free worker on this in time. Your details are saved — message me again in a bit and I'll pick it right up."
	conv, err := e.Conversations.Update(conv.ID, func(c *domain.Conversation) error {
		c.Phase = domain.PhaseGathering
		c.Messages = append(c.Messages, domain.Message{Role: "assistant", Content: reply, Timestamp: now})
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return IngestResult{}, err
	}
	e.append(ctx, "assignment.abandoned", "conversation", conv.ID, conv.OwnerKey, journal.Payload{"attempts": attempt})
	e.notifyOwner(ctx, conv.ID, conv.OwnerKey, reply)
	return e.result(conv, reply), nil
}

// retryAssign runs on the scheduler goroutine after a deferral.
func (e *Engine) retryAssign(convID string, attempt int) {
	ctx := context.Background()
	conv, err := e.Conversations.Get(convID)
	if err != nil {
		return
	}
	unlock := e.owners.lock(conv.OwnerKey)
	defer unlock()
	conv, err = e.Conversations.Get(convID)
	if err != nil || conv.Phase != domain.PhaseGenerating {
		return
	}
	if task, ok := e.Tasks.ByConversation(convID); ok && task.Status == domain.TaskInProgress {
		return
	}
	if _, err := e.assign(ctx, conv, attempt); err != nil {
		e.logf("assignment retry for conversation %s failed: %v", convID, err)
	}
}

// Settle finishes a worker's task: it generates the artifact, stores it,
// moves the conversation to review and returns the worker to idle. A settle
// whose conversation has already moved on is a no-op.
func (e *Engine) Settle(ctx context.Context, convID, taskID string) {
	conv, err := e.Conversations.Get(convID)
	if err != nil {
		return
	}
	unlock := e.owners.lock(conv.OwnerKey)
	defer unlock()

	conv, err = e.Conversations.Get(convID)
	if err != nil || conv.Phase != domain.PhaseGenerating || conv.AssignedTo == nil {
		return
	}
	task, err := e.Tasks.Get(taskID)
	if err != nil || task.Status != domain.TaskInProgress {
		return
	}
	workerID := *conv.AssignedTo

	draft := e.generate(ctx, conv)
	now := e.nowStr()
	art := domain.Artifact{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Subject:        draft.Subject,
		Body:           draft.Body,
		CreatedBy:      workerID,
		CreatedAt:      now,
		Status:         domain.ArtifactPendingReview,
	}
	// The artifact must be resolvable before anyone is told about it.
	if err := e.Artifacts.Store(art); err != nil {
		e.logf("store artifact for conversation %s: %v", conv.ID, err)
		return
	}
	conv, err = e.Conversations.Update(conv.ID, func(c *domain.Conversation) error {
		c.ResultID = &art.ID
		artCopy := art
		c.Result = &artCopy
		c.Phase = domain.PhaseReview
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		e.logf("move conversation %s to review: %v", conv.ID, err)
		return
	}
	if _, err := e.Tasks.Update(taskID, func(t *domain.Task) error {
		t.Status = domain.TaskCompleted
		t.CompletedAt = &now
		return nil
	}); err != nil {
		e.logf("complete task %s: %v", taskID, err)
	}
	e.Workers.Settle(workerID)

	e.append(ctx, "artifact.created", "artifact", art.ID, workerID, journal.Payload{"conversation_id": conv.ID})
	e.append(ctx, "task.settled", "task", taskID, workerID, journal.Payload{"conversation_id": conv.ID})

	text := fmt.Sprintf("Your %s draft is ready: %q.", conv.Intent, art.Subject)
	if base := e.Config.Notify.ReviewURL; base != "" {
		text += " Review it here: " + strings.TrimRight(base, "/") + "/" + art.ID
	}
	e.notifyOwner(ctx, conv.ID, conv.OwnerKey, text)
}

// ApproveArtifact marks an artifact approved and completes its conversation.
// Approving an already approved artifact is a no-op.
func (e *Engine) ApproveArtifact(ctx context.Context, id, actorID string) (domain.Artifact, error) {
	art, err := e.Artifacts.Get(id)
	if err != nil {
		return domain.Artifact{}, err
	}
	conv, err := e.Conversations.ByResult(id)
	if err != nil {
		return domain.Artifact{}, err
	}
	unlock := e.owners.lock(conv.OwnerKey)
	defer unlock()

	art, err = e.Artifacts.Get(id)
	if err != nil {
		return domain.Artifact{}, err
	}
	if art.Status == domain.ArtifactApproved {
		return art, nil
	}
	if art.Status != domain.ArtifactPendingReview {
		return domain.Artifact{}, fmt.Errorf("%w: cannot approve a %s artifact", ErrInvalidTransition, art.Status)
	}

	art, err = e.Artifacts.Update(id, func(a *domain.Artifact) error {
		a.Status = domain.ArtifactApproved
		return nil
	})
	if err != nil {
		return domain.Artifact{}, err
	}
	now := e.nowStr()
	conv, err = e.Conversations.Update(conv.ID, func(c *domain.Conversation) error {
		c.Phase = domain.PhaseComplete
		artCopy := art
		c.Result = &artCopy
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Artifact{}, err
	}
	e.append(ctx, "artifact.approved", "artifact", art.ID, actorID, journal.Payload{"conversation_id": conv.ID})
	e.append(ctx, "conversation.completed", "conversation", conv.ID, actorID, journal.Payload{"artifact_id": art.ID})
	e.notifyOwner(ctx, conv.ID, conv.OwnerKey, fmt.Sprintf("Approved! Your %s %q is ready to go.", conv.Intent, art.Subject))
	return art, nil
}

// RejectArtifact records review feedback and reopens the conversation for
// another round of gathering. Collected fields and the assignee are kept.
func (e *Engine) RejectArtifact(ctx context.Context, id, feedback, actorID string) (domain.Artifact, error) {
	if strings.TrimSpace(feedback) == "" {
		return domain.Artifact{}, ErrFeedbackRequired
	}
	art, err := e.Artifacts.Get(id)
	if err != nil {
		return domain.Artifact{}, err
	}
	conv, err := e.Conversations.ByResult(id)
	if err != nil {
		return domain.Artifact{}, err
	}
	unlock := e.owners.lock(conv.OwnerKey)
	defer unlock()

	art, err = e.Artifacts.Get(id)
	if err != nil {
		return domain.Artifact{}, err
	}
	if art.Status != domain.ArtifactPendingReview {
		return domain.Artifact{}, fmt.Errorf("%w: cannot reject a %s artifact", ErrInvalidTransition, art.Status)
	}

	art, err = e.Artifacts.Update(id, func(a *domain.Artifact) error {
		a.Status = domain.ArtifactRejected
		a.Feedback = strings.TrimSpace(feedback)
		return nil
	})
	if err != nil {
		return domain.Artifact{}, err
	}
	now := e.nowStr()
	conv, err = e.Conversations.Update(conv.ID, func(c *domain.Conversation) error {
		c.Phase = domain.PhaseGathering
		artCopy := art
		c.Result = &artCopy
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Artifact{}, err
	}
	e.append(ctx, "artifact.rejected", "artifact", art.ID, actorID, journal.Payload{"feedback": art.Feedback})
	e.append(ctx, "conversation.reopened", "conversation", conv.ID, actorID, journal.Payload{"artifact_id": art.ID})
	e.notifyOwner(ctx, conv.ID, conv.OwnerKey,
		"Got your feedback — we'll rework the draft. Add any details you like, or just say \"go ahead\" and I'll have a new version made.")
	return art, nil
}

// --- capability calls with deterministic fallback ---

func (e *Engine) classify(ctx context.Context, text string) ai.IntentAnalysis {
	a, err := e.Gateway.ClassifyIntent(ctx, text)
	if err != nil {
		e.logf("intent classification failed, using offline fallback: %v", err)
		a, _ = e.fallback.ClassifyIntent(ctx, text)
	}
	return a
}

func (e *Engine) extract(ctx context.Context, text string, existing map[string]string) map[string]string {
	fields, err := e.Gateway.ExtractFields(ctx, text, existing)
	if err != nil {
		e.logf("field extraction failed, using offline fallback: %v", err)
		fields, _ = e.fallback.ExtractFields(ctx, text, existing)
	}
	return fields
}

func (e *Engine) completeness(ctx context.Context, conv domain.Conversation) ai.Completeness {
	comp, err := e.Gateway.CheckCompleteness(ctx, conv.RequiredFields, conv.CollectedFields, conv.Messages)
	if err != nil {
		e.logf("completeness check failed, using offline fallback: %v", err)
		comp, err = e.fallback.CheckCompleteness(ctx, conv.RequiredFields, conv.CollectedFields, conv.Messages)
		if err != nil {
			// Conservative default: move forward once anything is collected.
			comp = ai.Completeness{Complete: len(conv.CollectedFields) > 0}
		}
	}
	return comp
}

func (e *Engine) generate(ctx context.Context, conv domain.Conversation) ai.Draft {
	topic := conv.CollectedFields["topic"]
	draft, err := e.Gateway.GenerateArtifact(ctx, topic, conv.CollectedFields)
	if err != nil {
		e.logf("artifact generation failed, using offline fallback: %v", err)
		draft, _ = e.fallback.GenerateArtifact(ctx, topic, conv.CollectedFields)
	}
	return draft
}

func (e *Engine) clarify(ctx context.Context, transcript []domain.Message) string {
	q, err := e.Gateway.ClarifyingQuestion(ctx, transcript)
	if err != nil || strings.TrimSpace(q) == "" {
		if err != nil {
			e.logf("clarifying question failed, using offline fallback: %v", err)
		}
		q, _ = e.fallback.ClarifyingQuestion(ctx, transcript)
	}
	return q
}

// --- plumbing ---

func (e *Engine) append(ctx context.Context, evtType, entityKind, entityID, actorID string, payload journal.Payload) {
	if e.Journal == nil {
		return
	}
	if err := e.Journal.Append(ctx, evtType, entityKind, entityID, actorID, payload); err != nil {
		e.logf("journal append %s: %v", evtType, err)
	}
}

func (e *Engine) notifyOwner(ctx context.Context, convID, ownerKey, text string) {
	if e.Notifier == nil || text == "" {
		return
	}
	if err := e.Notifier.Notify(ctx, ownerKey, text); err != nil {
		e.logf("notify %s: %v", ownerKey, err)
		return
	}
	e.append(ctx, "notify.sent", "conversation", convID, ownerKey, journal.Payload{"chars": len(text)})
}

func (e *Engine) result(conv domain.Conversation, replies ...string) IngestResult {
	out := IngestResult{ConversationID: conv.ID, Phase: conv.Phase, Intent: conv.Intent}
	for _, r := range replies {
		if r != "" {
			out.Replies = append(out.Replies, r)
		}
	}
	return out
}

func (e *Engine) orchestratorID() string {
	for _, w := range e.Workers.List() {
		if w.Role == orchestratorRole {
			return w.ID
		}
	}
	return ""
}

func (e *Engine) settleDelay() time.Duration {
	min := e.Config.Settlement.MinSeconds
	max := e.Config.Settlement.MaxSeconds
	if max <= min {
		return time.Duration(min) * time.Second
	}
	return time.Duration(min+rand.Intn(max-min+1)) * time.Second
}

// ownerLocks serializes all work on one owner's conversation.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *ownerLocks) lock(key string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*sync.Mutex{}
	}
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func taskTitle(conv domain.Conversation) string {
	topic := conv.CollectedFields["topic"]
	switch conv.Intent {
	case domain.IntentNewsletter:
		if topic != "" {
			return "Create newsletter: " + topic
		}
		return "Create newsletter"
	case domain.IntentResearch:
		if topic != "" {
			return "Research: " + topic
		}
		return "Research request"
	default:
		return "Handle request"
	}
}

func lastUserMessage(conv domain.Conversation) string {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].Role == "user" {
			return conv.Messages[i].Content
		}
	}
	return ""
}

func sourceMessageID(conv domain.Conversation) string {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].Role == "user" {
			return fmt.Sprintf("%s/%d", conv.ID, i)
		}
	}
	return ""
}

func snippet(text string) string {
	const max = 60
	if len(text) <= max {
		return text
	}
	return text[:max] + "…"
}
