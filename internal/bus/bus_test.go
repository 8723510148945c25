package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/openaudit/kestrel/internal/domain"
)

func TestChannelBusPublishSubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()

	ctx := context.Background()
	received := make(chan *domain.Message, 1)

	sub, err := b.Subscribe(ctx, domain.TopicPredictions, func(ctx context.Context, msg *domain.Message) error {
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if sub.Topic() != domain.TopicPredictions {
		t.Errorf("topic = %q", sub.Topic())
	}

	if err := b.Publish(ctx, domain.TopicPredictions, []byte(`{"risk_score":80}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-received:
		if string(msg.Payload) != `{"risk_score":80}` {
			t.Errorf("payload = %s", msg.Payload)
		}
		if msg.ID == "" || msg.Timestamp == 0 {
			t.Errorf("envelope incomplete: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestChannelBusTopicIsolation(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()

	ctx := context.Background()
	alerts := make(chan *domain.Message, 1)

	_, err := b.Subscribe(ctx, domain.TopicAlerts, func(ctx context.Context, msg *domain.Message) error {
		alerts <- msg
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := b.Publish(ctx, domain.TopicPredictions, []byte("x")); err != nil {
		t.Fatal(err)
	}

	select {
	case <-alerts:
		t.Fatal("message leaked across topics")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelBusMultipleSubscribers(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(3)

	for i := 0; i < 3; i++ {
		_, err := b.Subscribe(ctx, domain.TopicAlerts, func(ctx context.Context, msg *domain.Message) error {
			wg.Done()
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	if err := b.Publish(ctx, domain.TopicAlerts, []byte("fanout")); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all subscribers received the message")
	}
}

func TestChannelBusClose(t *testing.T) {
	b := NewChannelBus(10)
	ctx := context.Background()

	if err := b.Ping(ctx); err != nil {
		t.Errorf("ping before close: %v", err)
	}

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if err := b.Publish(ctx, domain.TopicAlerts, []byte("x")); err == nil {
		t.Error("publish on closed bus should fail")
	}
	if _, err := b.Subscribe(ctx, domain.TopicAlerts, nil); err == nil {
		t.Error("subscribe on closed bus should fail")
	}
	if err := b.Ping(ctx); err == nil {
		t.Error("ping on closed bus should fail")
	}

	// Double close is a no-op.
	if err := b.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestFactoryChannel(t *testing.T) {
	b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 5})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
		t.Error("unsupported type should error")
	}
}
