package events

import "context"

// Streams
const (
	StreamDeals = "events:deal"
)

// Event types
const (
	EventDealStatusChanged = "deal_status_changed"
	EventDealFeePaid       = "deal_fee_paid"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
