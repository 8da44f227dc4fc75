package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vasont/Foundatio/id"
	"github.com/vasont/Foundatio/internal/testutil"
	"github.com/vasont/Foundatio/messaging"
	"github.com/vasont/Foundatio/serializer"
)

type status struct {
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

func TestChannel(t *testing.T) {
	b := New(goredis.NewClient(&goredis.Options{Addr: "localhost:0"}))
	if got := b.Channel("workitem.status"); got != "foundatio:messages:workitem.status" {
		t.Errorf("Channel() = %q", got)
	}
	if got := b.Channel(""); got != "foundatio:messages:*" {
		t.Errorf("Channel(\"\") = %q", got)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	for _, ser := range []serializer.Serializer{serializer.JSON{}, serializer.Msgpack{}} {
		t.Run(ser.Name(), func(t *testing.T) {
			b := New(goredis.NewClient(&goredis.Options{Addr: "localhost:0"}), WithSerializer(ser))
			payload, err := b.encode(messaging.Message{
				Type:          "workitem.status",
				Data:          status{Progress: 50, Message: "half"},
				CorrelationID: "wi_1",
			})
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			msg, err := b.decode(string(payload))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if msg.Type != "workitem.status" || msg.CorrelationID != "wi_1" || msg.CreatedAt.IsZero() {
				t.Fatalf("msg = %+v", msg)
			}
			got, err := messaging.Decode[status](ser, msg)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got.Progress != 50 || got.Message != "half" {
				t.Fatalf("status = %+v", got)
			}
		})
	}
}

func TestPublishSubscribe(t *testing.T) {
	ctx := context.Background()
	client := testutil.RedisClient(t)
	b := New(client, WithKeyPrefix("foundatio:test:"+id.NewJobID().String()+":"))

	got := make(chan messaging.Message, 1)
	sub, err := b.Subscribe(ctx, "workitem.status", func(_ context.Context, m messaging.Message) { got <- m })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := b.Publish(ctx, messaging.Message{Type: "workitem.status", Data: status{Progress: 100}}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case m := <-got:
		s, err := messaging.Decode[status](b.Serializer(), m)
		if err != nil || s.Progress != 100 {
			t.Fatalf("status = %+v, %v", s, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}
