// Package memory provides an in-process messaging.Bus. Each subscriber has
// a buffered channel drained by its own goroutine, so delivery order per
// subscriber matches publish order. A full buffer drops the message.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vasont/Foundatio/id"
	"github.com/vasont/Foundatio/messaging"
)

// Compile-time check.
var _ messaging.Bus = (*Bus)(nil)

// DefaultBufferSize is the per-subscriber buffer.
const DefaultBufferSize = 256

// firehose is the topic that receives every message.
const firehose = ""

// Option configures a Bus.
type Option func(*Bus)

// WithBufferSize sets the per-subscriber buffer size.
func WithBufferSize(n int) Option { return func(b *Bus) { b.bufferSize = n } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(b *Bus) { b.logger = l } }

// Bus fans messages out to subscribers by message type.
type Bus struct {
	mu         sync.RWMutex
	topics     map[string]map[string]*subscriber
	bufferSize int
	logger     *slog.Logger

	published atomic.Int64
	dropped   atomic.Int64
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		topics:     make(map[string]map[string]*subscriber),
		bufferSize: DefaultBufferSize,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Publish implements messaging.Publisher.
func (b *Bus) Publish(_ context.Context, msg messaging.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.topics[msg.Type])+len(b.topics[firehose]))
	for _, s := range b.topics[msg.Type] {
		targets = append(targets, s)
	}
	if msg.Type != firehose {
		for _, s := range b.topics[firehose] {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	b.published.Add(1)
	for _, s := range targets {
		if !s.send(msg) {
			b.dropped.Add(1)
			b.logger.Warn("message dropped",
				slog.String("type", msg.Type),
				slog.String("subscriber", s.id),
			)
		}
	}
	return nil
}

// Subscribe implements messaging.Subscriber. The subscription ends when
// Unsubscribe is called or ctx is done.
func (b *Bus) Subscribe(ctx context.Context, msgType string, fn messaging.Handler) (messaging.Subscription, error) {
	s := &subscriber{
		id:    id.NewSubscriberID().String(),
		bus:   b,
		topic: msgType,
		ch:    make(chan messaging.Message, b.bufferSize),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	subs, ok := b.topics[msgType]
	if !ok {
		subs = make(map[string]*subscriber)
		b.topics[msgType] = subs
	}
	subs[s.id] = s
	b.mu.Unlock()

	go s.run(ctx, fn)
	return s, nil
}

// SubscriberCount returns the number of subscribers on msgType.
func (b *Bus) SubscriberCount(msgType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[msgType])
}

// Published returns how many messages were published.
func (b *Bus) Published() int64 { return b.published.Load() }

// Dropped returns how many deliveries were dropped on full buffers.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }

func (b *Bus) remove(s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[s.topic]
	delete(subs, s.id)
	if len(subs) == 0 {
		delete(b.topics, s.topic)
	}
}

type subscriber struct {
	id     string
	bus    *Bus
	topic  string
	ch     chan messaging.Message
	done   chan struct{}
	once   sync.Once
	closed atomic.Bool
}

func (s *subscriber) send(msg messaging.Message) bool {
	if s.closed.Load() {
		return true
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

func (s *subscriber) run(ctx context.Context, fn messaging.Handler) {
	defer func() { _ = s.Unsubscribe() }()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case msg := <-s.ch:
			fn(ctx, msg)
		}
	}
}

// Unsubscribe implements messaging.Subscription.
func (s *subscriber) Unsubscribe() error {
	s.once.Do(func() {
		s.closed.Store(true)
		s.bus.remove(s)
		close(s.done)
	})
	return nil
}
