package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Outbox event kinds. Notify rows go to the notification topic;
// processor rows are executed against the payment gateway by the worker.
const (
	KindNotify            = "notify"
	KindProcessorRefund   = "processor_refund"
	KindProcessorTransfer = "processor_transfer"
)

// Event is one pending post-commit effect. Rows are written in the same
// transaction as the state change they follow, and dispatched at least
// once by the worker.
type Event struct {
	ID           string
	Kind         string
	Topic        string
	Key          string
	Payload      []byte
	Attempts     int
	CreatedAt    time.Time
	DispatchedAt time.Time
}

// Notification is the payload shape of notify events. Delivery is
// fire-and-forget: failures are logged and retried, never surfaced to
// engine callers.
type Notification struct {
	UserID    string         `json:"user_id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// NewNotify builds a notify event for the given topic.
func NewNotify(topic string, n Notification) Event {
	raw, _ := json.Marshal(n)
	return Event{
		ID:      uuid.NewString(),
		Kind:    KindNotify,
		Topic:   topic,
		Key:     n.UserID,
		Payload: raw,
	}
}

// ProcessorTask is the payload shape of processor refund/transfer events.
type ProcessorTask struct {
	EscrowID     string  `json:"escrow_id"`
	ProcessorRef string  `json:"processor_ref,omitempty"`
	Account      string  `json:"account,omitempty"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
}

// NewProcessorTask builds a processor event of the given kind.
func NewProcessorTask(kind string, t ProcessorTask) Event {
	raw, _ := json.Marshal(t)
	return Event{
		ID:      uuid.NewString(),
		Kind:    kind,
		Key:     t.EscrowID,
		Payload: raw,
	}
}
