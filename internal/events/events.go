package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type names a progress event.
type Type string

// Event types.
const (
	TypeStarted     Type = "writing.started"
	TypePaused      Type = "writing.paused"
	TypeResumed     Type = "writing.resumed"
	TypeCancelled   Type = "writing.cancelled"
	TypeJobResolved Type = "writing.job_resolved"
	TypeCompleted   Type = "writing.completed"
	TypeFailed      Type = "writing.failed"
)

// Event is a progress notification for one project.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Type      Type            `json:"type"`
	ProjectID uuid.UUID       `json:"project_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Status    string          `json:"status"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// New creates an event with payload encoded as JSON.
func New(t Type, projectID, userID uuid.UUID, status string, payload any) (*Event, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &Event{
		ID:        uuid.New(),
		Type:      t,
		ProjectID: projectID,
		UserID:    userID,
		Status:    status,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// UnmarshalPayload decodes the event payload into v.
func (e *Event) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler processes events dispatched in-process.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *Event) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent implements EventHandler.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// EventEmitter publishes events.
type EventEmitter interface {
	EmitEvent(ctx context.Context, event *Event) error
}

// Nop discards events.
type Nop struct{}

// EmitEvent implements EventEmitter.
func (Nop) EmitEvent(context.Context, *Event) error { return nil }
