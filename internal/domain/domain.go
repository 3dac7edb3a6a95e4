package domain

// Phase is the lifecycle stage of a conversation.
type Phase string

const (
	PhaseGathering  Phase = "gathering"
	PhaseProcessing Phase = "processing"
	PhaseGenerating Phase = "generating"
	PhaseReview     Phase = "review"
	PhaseComplete   Phase = "complete"
)

// Intent is the classified purpose of a conversation.
type Intent string

const (
	IntentGreeting   Intent = "greeting"
	IntentHelp       Intent = "help"
	IntentNewsletter Intent = "newsletter"
	IntentResearch   Intent = "research"
	IntentUnknown    Intent = "unknown"
)

// Known reports whether the intent carries required fields and a worker route.
func (i Intent) Known() bool {
	return i == IntentNewsletter || i == IntentResearch
}

type Message struct {
	Role      string `json:"role" enum:"user,assistant"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp" format:"date-time"`
}

type Conversation struct {
	ID              string            `json:"id"`
	OwnerKey        string            `json:"owner_key"`
	Phase           Phase             `json:"phase" enum:"gathering,processing,generating,review,complete"`
	Intent          Intent            `json:"intent" enum:"greeting,help,newsletter,research,unknown"`
	RequiredFields  []string          `json:"required_fields,omitempty"`
	CollectedFields map[string]string `json:"collected_fields,omitempty"`
	AssignedTo      *string           `json:"assigned_to,omitempty"`
	ResultID        *string           `json:"result_id,omitempty"`
	Result          *Artifact         `json:"result,omitempty"`
	Messages        []Message         `json:"messages"`
	CreatedAt       string            `json:"created_at" format:"date-time"`
	UpdatedAt       string            `json:"updated_at" format:"date-time"`
}

// MissingFields returns required fields with no collected value yet.
func (c Conversation) MissingFields() []string {
	var missing []string
	for _, f := range c.RequiredFields {
		if c.CollectedFields[f] == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

type ArtifactStatus string

const (
	ArtifactDraft         ArtifactStatus = "draft"
	ArtifactPendingReview ArtifactStatus = "pending-review"
	ArtifactApproved      ArtifactStatus = "approved"
	ArtifactRejected      ArtifactStatus = "rejected"
)

type Artifact struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Subject        string         `json:"subject"`
	Body           string         `json:"body"`
	CreatedBy      string         `json:"created_by"`
	CreatedAt      string         `json:"created_at" format:"date-time"`
	Status         ArtifactStatus `json:"status" enum:"draft,pending-review,approved,rejected"`
	Feedback       string         `json:"feedback,omitempty"`
}

type WorkerStatus string

const (
	WorkerIdle             WorkerStatus = "idle"
	WorkerWorking          WorkerStatus = "working"
	WorkerAwaitingApproval WorkerStatus = "awaiting-approval"
	WorkerOffline          WorkerStatus = "offline"
)

type Worker struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Role           string       `json:"role"`
	TrustLevel     string       `json:"trust_level" enum:"apprentice,junior,senior,expert"`
	Avatar         string       `json:"avatar,omitempty"`
	Status         WorkerStatus `json:"status" enum:"idle,working,awaiting-approval,offline"`
	CurrentTask    *string      `json:"current_task,omitempty"`
	CompletedTasks int          `json:"completed_tasks"`
	ApprovalRate   float64      `json:"approval_rate"`
	LastAssignedAt string       `json:"last_assigned_at,omitempty" format:"date-time"`
}

type TaskStatus string

const (
	TaskPending          TaskStatus = "pending"
	TaskInProgress       TaskStatus = "in-progress"
	TaskAwaitingApproval TaskStatus = "awaiting-approval"
	TaskCompleted        TaskStatus = "completed"
	TaskRejected         TaskStatus = "rejected"
)

// Task is the audit record minted when a conversation is routed to a worker.
type Task struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	AssignedTo      string     `json:"assigned_to"`
	ConversationID  string     `json:"conversation_id"`
	SourceMessageID string     `json:"source_message_id,omitempty"`
	Status          TaskStatus `json:"status" enum:"pending,in-progress,awaiting-approval,completed,rejected"`
	CreatedAt       string     `json:"created_at" format:"date-time"`
	CompletedAt     *string    `json:"completed_at,omitempty" format:"date-time"`
}

// InboundMessage is the chat bridge's wire shape for a received message.
type InboundMessage struct {
	OwnerKey  string `json:"owner_key"`
	From      string `json:"from,omitempty"`
	Kind      string `json:"kind,omitempty" enum:"text,voice,photo,video,document"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
