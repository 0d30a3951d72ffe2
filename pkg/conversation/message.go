package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Summary methods.
const (
	MethodHeuristic    = "heuristic"
	MethodModel        = "model"
	MethodModelPending = "model_pending"
)

// Message is one conversation turn. Messages are owned by exactly one
// window and are append-only, except for in-place truncation of oversize
// content.
type Message struct {
	ID        string         `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMessage creates a message with a fresh id and the current time.
func NewMessage(role, content string, metadata map[string]any) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// Summary describes one archival batch. Exactly one summary is produced per
// batch; heuristic summaries are final, model-pending ones may be upgraded
// in place once.
type Summary struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// MessageCount and the per-role counts cover the archived batch.
	MessageCount      int `json:"message_count"`
	UserMessages      int `json:"user_message_count"`
	AssistantMessages int `json:"assistant_message_count"`
	SystemMessages    int `json:"system_message_count"`

	// TimeRange spans the batch's first and last timestamps.
	TimeRange string `json:"time_range"`

	// Topics holds up to five keywords extracted from user content.
	Topics []string `json:"topics,omitempty"`

	// Text is the summary body, Method how it was produced.
	Text   string `json:"summary"`
	Method string `json:"summary_method"`
}
