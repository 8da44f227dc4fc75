// Package messaging defines the message bus contract used to report work
// item status, plus helpers shared by the bus implementations.
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/vasont/Foundatio/serializer"
)

// Message is one bus message. In-process buses deliver Data as the value
// that was published; networked buses deliver it as encoded bytes. Use
// Decode to read it either way.
type Message struct {
	Type          string    `json:"type"`
	Data          any       `json:"data"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Publisher sends messages.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Handler receives messages. It runs on the bus's delivery goroutine.
type Handler func(ctx context.Context, msg Message)

// Subscriber registers handlers by message type. An empty type receives
// every message.
type Subscriber interface {
	Subscribe(ctx context.Context, msgType string, fn Handler) (Subscription, error)
}

// Subscription is an active registration.
type Subscription interface {
	Unsubscribe() error
}

// Bus is a Publisher that also supports subscriptions.
type Bus interface {
	Publisher
	Subscriber
}

// Decode returns msg.Data as T, decoding it with ser when it arrived as
// bytes.
func Decode[T any](ser serializer.Serializer, msg Message) (T, error) {
	var zero T
	switch v := msg.Data.(type) {
	case T:
		return v, nil
	case *T:
		if v == nil {
			return zero, fmt.Errorf("foundatio/messaging: decode %s: nil data", msg.Type)
		}
		return *v, nil
	case []byte:
		var out T
		if err := ser.Unmarshal(v, &out); err != nil {
			return zero, fmt.Errorf("foundatio/messaging: decode %s: %w", msg.Type, err)
		}
		return out, nil
	default:
		return zero, fmt.Errorf("foundatio/messaging: decode %s: unexpected data %T", msg.Type, msg.Data)
	}
}
