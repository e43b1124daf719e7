package notify

// Event types published by the coordinator.
const (
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventSessionEnded      = "session_ended"
	EventOrderConfirmed    = "order_confirmed"
	EventOrderStatus       = "order_status"
	EventOrderCancelled    = "order_cancelled"
	EventSplitCreated      = "split_created"
	EventSplitSettled      = "split_settled"
	EventSplitCancelled    = "split_cancelled"
	EventPaymentRecorded   = "payment_recorded"
)

// Event is one fire-and-forget notification to staff and diners.
type Event struct {
	Type      string      `json:"event"`
	SessionID int64       `json:"session_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Notifier delivers events best-effort. Publish must never block: settlement
// and order flows call it on their critical paths.
type Notifier interface {
	Publish(event Event)
}

// NopNotifier discards all events. Used in tests and when no hub is wired.
type NopNotifier struct{}

// Publish implements Notifier.
func (NopNotifier) Publish(Event) {}
