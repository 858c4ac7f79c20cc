package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestChannelBusPublishSubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	received := make(chan *domain.Message, 1)
	_, err := b.Subscribe(ctx, domain.TopicRiskScore, func(ctx context.Context, msg *domain.Message) error {
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	payload := []byte(`{"customerId":"CUST-1001"}`)
	if err := b.Publish(ctx, domain.TopicRiskScore, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Topic != domain.TopicRiskScore {
			t.Errorf("expected topic %s, got %s", domain.TopicRiskScore, msg.Topic)
		}
		if string(msg.Payload) != string(payload) {
			t.Errorf("payload mismatch: %s", msg.Payload)
		}
		if msg.ID == "" {
			t.Error("expected message id to be assigned")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestChannelBusTopicIsolation(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var count atomic.Int64
	b.Subscribe(ctx, domain.TopicUpload, func(ctx context.Context, msg *domain.Message) error {
		count.Add(1)
		return nil
	})

	b.Publish(ctx, domain.TopicAlertGenerated, []byte("x"))
	time.Sleep(50 * time.Millisecond)

	if count.Load() != 0 {
		t.Errorf("expected no delivery on other topic, got %d", count.Load())
	}
}

func TestChannelBusMultipleSubscribers(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var count atomic.Int64
	for i := 0; i < 3; i++ {
		b.Subscribe(ctx, domain.TopicUpload, func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})
	}

	b.Publish(ctx, domain.TopicUpload, []byte("x"))

	deadline := time.After(time.Second)
	for count.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected 3 deliveries, got %d", count.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestChannelBusUnsubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var count atomic.Int64
	sub, _ := b.Subscribe(ctx, domain.TopicUpload, func(ctx context.Context, msg *domain.Message) error {
		count.Add(1)
		return nil
	})

	if sub.Topic() != domain.TopicUpload {
		t.Errorf("expected topic %s, got %s", domain.TopicUpload, sub.Topic())
	}

	sub.Unsubscribe()
	time.Sleep(20 * time.Millisecond)

	b.Publish(ctx, domain.TopicUpload, []byte("x"))
	time.Sleep(50 * time.Millisecond)

	if count.Load() != 0 {
		t.Errorf("expected no delivery after unsubscribe, got %d", count.Load())
	}
}

func TestChannelBusClosed(t *testing.T) {
	b := NewChannelBus(10)
	ctx := context.Background()

	if err := b.Ping(ctx); err != nil {
		t.Errorf("Ping on open bus failed: %v", err)
	}

	b.Close()

	if err := b.Publish(ctx, domain.TopicUpload, []byte("x")); err == nil {
		t.Error("expected publish error on closed bus")
	}
	if _, err := b.Subscribe(ctx, domain.TopicUpload, nil); err == nil {
		t.Error("expected subscribe error on closed bus")
	}
	if err := b.Ping(ctx); err == nil {
		t.Error("expected ping error on closed bus")
	}
}

func TestBusFactory(t *testing.T) {
	b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 10})
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	defer b.Close()

	if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
		t.Error("expected error for unsupported bus type")
	}
}
