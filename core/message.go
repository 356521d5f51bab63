package core

import (
	"time"

	"github.com/google/uuid"
)

// Message types exchanged between agents through the pump.
const (
	MessageTaskRequest     = "task_request"
	MessageTaskResponse    = "task_response"
	MessagePerformanceData = "performance_data"
	MessageStatusUpdate    = "status_update"
	MessageErrorReport     = "error_report"
)

// Message priorities. Higher values are informational only; the pump
// delivers strictly in FIFO order.
const (
	PriorityLow      = 1
	PriorityNormal   = 2
	PriorityHigh     = 3
	PriorityCritical = 4
)

// Message is an immutable inter-agent message. It is enqueued by a
// stage, delivered by the pump, and appended to the state history.
type Message struct {
	ID               string                 `json:"id"`
	Sender           string                 `json:"sender"`
	Recipient        string                 `json:"recipient"`
	Type             string                 `json:"message_type"`
	Content          map[string]interface{} `json:"content"`
	Timestamp        time.Time              `json:"timestamp"`
	Priority         int                    `json:"priority"`
	RequiresResponse bool                   `json:"requires_response"`
	ResponseTimeout  time.Duration          `json:"response_timeout,omitempty"`
}

// NewMessage creates a message with a fresh id and timestamp.
func NewMessage(sender, recipient, msgType string, content map[string]interface{}) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Sender:    sender,
		Recipient: recipient,
		Type:      msgType,
		Content:   content,
		Timestamp: time.Now(),
		Priority:  PriorityNormal,
	}
}

// WithPriority returns the message with its priority set. Priorities
// outside [1..4] are clamped.
func (m *Message) WithPriority(p int) *Message {
	if p < PriorityLow {
		p = PriorityLow
	}
	if p > PriorityCritical {
		p = PriorityCritical
	}
	m.Priority = p
	return m
}
