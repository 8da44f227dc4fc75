// Package redis implements messaging.Bus on Redis pub/sub. Each message
// type is a channel under the key prefix; message data is encoded with the
// bus serializer and delivered to subscribers as bytes.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vasont/Foundatio/messaging"
	"github.com/vasont/Foundatio/serializer"
)

// Compile-time check.
var _ messaging.Bus = (*Bus)(nil)

const defaultPrefix = "foundatio:messages:"

// envelope is the wire form of a message.
type envelope struct {
	Type          string    `json:"type"`
	Data          []byte    `json:"data"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Option configures a Bus.
type Option func(*Bus)

// WithKeyPrefix sets the channel prefix.
func WithKeyPrefix(p string) Option { return func(b *Bus) { b.prefix = p } }

// WithSerializer sets the serializer for envelopes and data.
func WithSerializer(s serializer.Serializer) Option { return func(b *Bus) { b.ser = s } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(b *Bus) { b.logger = l } }

// Bus publishes and subscribes through Redis. The caller owns the client.
type Bus struct {
	client redis.UniversalClient
	prefix string
	ser    serializer.Serializer
	logger *slog.Logger
}

// New creates a bus on client.
func New(client redis.UniversalClient, opts ...Option) *Bus {
	b := &Bus{
		client: client,
		prefix: defaultPrefix,
		ser:    serializer.Default,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Channel returns the pub/sub channel for msgType. An empty type maps to
// the pattern matching every channel.
func (b *Bus) Channel(msgType string) string {
	if msgType == "" {
		return b.prefix + "*"
	}
	return b.prefix + msgType
}

// Serializer returns the serializer used on the wire.
func (b *Bus) Serializer() serializer.Serializer { return b.ser }

// Publish implements messaging.Publisher.
func (b *Bus) Publish(ctx context.Context, msg messaging.Message) error {
	payload, err := b.encode(msg)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.Channel(msg.Type), payload).Err(); err != nil {
		return fmt.Errorf("foundatio/messaging/redis: publish %s: %w", msg.Type, err)
	}
	return nil
}

func (b *Bus) encode(msg messaging.Message) ([]byte, error) {
	env := envelope{Type: msg.Type, CorrelationID: msg.CorrelationID, CreatedAt: msg.CreatedAt}
	if env.CreatedAt.IsZero() {
		env.CreatedAt = time.Now().UTC()
	}
	switch v := msg.Data.(type) {
	case nil:
	case []byte:
		env.Data = v
	default:
		data, err := b.ser.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("foundatio/messaging/redis: encode %s: %w", msg.Type, err)
		}
		env.Data = data
	}
	out, err := b.ser.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("foundatio/messaging/redis: encode %s: %w", msg.Type, err)
	}
	return out, nil
}

func (b *Bus) decode(payload string) (messaging.Message, error) {
	var env envelope
	if err := b.ser.Unmarshal([]byte(payload), &env); err != nil {
		return messaging.Message{}, err
	}
	return messaging.Message{
		Type:          env.Type,
		Data:          env.Data,
		CorrelationID: env.CorrelationID,
		CreatedAt:     env.CreatedAt,
	}, nil
}

// Subscribe implements messaging.Subscriber. It waits for Redis to confirm
// the subscription before returning.
func (b *Bus) Subscribe(ctx context.Context, msgType string, fn messaging.Handler) (messaging.Subscription, error) {
	channel := b.Channel(msgType)
	var ps *redis.PubSub
	if strings.HasSuffix(channel, "*") {
		ps = b.client.PSubscribe(ctx, channel)
	} else {
		ps = b.client.Subscribe(ctx, channel)
	}
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("foundatio/messaging/redis: subscribe %s: %w", channel, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &subscription{ps: ps, cancel: cancel}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ch := ps.Channel()
		for {
			select {
			case <-runCtx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				msg, err := b.decode(m.Payload)
				if err != nil {
					b.logger.Warn("undecodable message",
						slog.String("channel", m.Channel),
						slog.String("error", err.Error()),
					)
					continue
				}
				fn(runCtx, msg)
			}
		}
	}()
	return s, nil
}

type subscription struct {
	ps     *redis.PubSub
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
	err    error
}

// Unsubscribe implements messaging.Subscription.
func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		s.err = s.ps.Close()
		s.wg.Wait()
	})
	return s.err
}
