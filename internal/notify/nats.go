package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Publisher is the subset of *nats.Conn used here.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// NATS publishes notification events for downstream consumers.
//
// Subject convention: notifications.protocolo.<type>
type NATS struct {
	conn Publisher
}

func NewNATS(conn Publisher) *NATS { return &NATS{conn: conn} }

func (p *NATS) Name() string { return "nats" }

// Event is the JSON schema published to NATS.
type Event struct {
	ID           string         `json:"id"`
	EventType    string         `json:"event_type"`
	Recipients   []string       `json:"recipients"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	Priority     string         `json:"priority"`
	Payload      map[string]any `json:"payload,omitempty"`
	CreatedAt    string         `json:"created_at"`
}

func Subject(t Type) string {
	return fmt.Sprintf("notifications.protocolo.%s", t)
}

func (p *NATS) Send(ctx context.Context, n Notification) error {
	if p.conn == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Event{
		ID:           n.ID,
		EventType:    string(n.Type),
		Recipients:   n.Recipients,
		ResourceType: "protocolo",
		ResourceID:   strconv.FormatInt(n.RecordID, 10),
		Title:        n.Title,
		Message:      n.Message,
		Priority:     string(n.Priority),
		Payload:      n.Extra,
		CreatedAt:    n.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
	if err != nil {
		return err
	}
	return p.conn.Publish(Subject(n.Type), data)
}
