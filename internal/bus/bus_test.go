package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ghost-forensics/ghost/internal/domain"
)

// settle gives freshly started subscription goroutines a beat before the
// first publish.
func settle() {
	time.Sleep(10 * time.Millisecond)
}

func awaitGroup(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timeout waiting for deliveries")
	}
}

func TestChannelBusDelivery(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()
	ctx := context.Background()

	var got *domain.Message
	var wg sync.WaitGroup
	wg.Add(1)

	_, err := bus.Subscribe(ctx, "case-001", domain.TopicRunCompleted, func(ctx context.Context, msg *domain.Message) error {
		got = msg
		wg.Done()
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	settle()

	if err := bus.Publish(ctx, "case-001", domain.TopicRunCompleted, []byte(`{"runId":"run-1"}`)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	awaitGroup(t, &wg, time.Second)

	if string(got.Payload) != `{"runId":"run-1"}` {
		t.Errorf("unexpected payload: %s", got.Payload)
	}
	if got.CaseID != "case-001" || got.Topic != domain.TopicRunCompleted {
		t.Errorf("unexpected envelope scope: %+v", got)
	}
	if got.ID == "" || got.Timestamp == 0 {
		t.Errorf("envelope missing id or timestamp: %+v", got)
	}
}

func TestChannelBusCaseIsolation(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()
	ctx := context.Background()

	var caseOne, caseTwo atomic.Int32
	bus.Subscribe(ctx, "case-001", domain.TopicAlertCritical, func(ctx context.Context, msg *domain.Message) error {
		caseOne.Add(1)
		return nil
	})
	bus.Subscribe(ctx, "case-002", domain.TopicAlertCritical, func(ctx context.Context, msg *domain.Message) error {
		caseTwo.Add(1)
		return nil
	})
	settle()

	bus.Publish(ctx, "case-001", domain.TopicAlertCritical, []byte("alert"))
	time.Sleep(50 * time.Millisecond)

	if caseOne.Load() != 1 {
		t.Errorf("case-001 should see 1 message, got %d", caseOne.Load())
	}
	if caseTwo.Load() != 0 {
		t.Errorf("case-002 should see nothing, got %d", caseTwo.Load())
	}
}

func TestChannelBusRequiresCaseID(t *testing.T) {
	bus := NewChannelBus(10)
	defer bus.Close()
	ctx := context.Background()

	if err := bus.Publish(ctx, "", "topic", []byte("data")); err == nil {
		t.Error("expected publish error for empty caseID")
	}
	if _, err := bus.Subscribe(ctx, "", "topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	}); err == nil {
		t.Error("expected subscribe error for empty caseID")
	}
	if _, err := bus.Request(ctx, "", "topic", []byte("data")); err == nil {
		t.Error("expected request error for empty caseID")
	}
}

func TestChannelBusUnsubscribe(t *testing.T) {
	bus := NewChannelBus(10)
	defer bus.Close()
	ctx := context.Background()

	var count atomic.Int32
	sub, _ := bus.Subscribe(ctx, "case-001", domain.TopicRunFailed, func(ctx context.Context, msg *domain.Message) error {
		count.Add(1)
		return nil
	})
	settle()

	bus.Publish(ctx, "case-001", domain.TopicRunFailed, []byte("first"))
	time.Sleep(50 * time.Millisecond)
	if count.Load() != 1 {
		t.Fatalf("expected 1 delivery before unsubscribe, got %d", count.Load())
	}

	sub.Unsubscribe()
	settle()

	bus.Publish(ctx, "case-001", domain.TopicRunFailed, []byte("second"))
	time.Sleep(50 * time.Millisecond)
	if count.Load() != 1 {
		t.Errorf("expected no deliveries after unsubscribe, got %d", count.Load())
	}
}

func TestChannelBusFanout(t *testing.T) {
	bus := NewChannelBus(10)
	defer bus.Close()
	ctx := context.Background()

	var first, second atomic.Int32
	bus.Subscribe(ctx, "case-001", domain.TopicRunCompleted, func(ctx context.Context, msg *domain.Message) error {
		first.Add(1)
		return nil
	})
	bus.Subscribe(ctx, "case-001", domain.TopicRunCompleted, func(ctx context.Context, msg *domain.Message) error {
		second.Add(1)
		return nil
	})
	settle()

	bus.Publish(ctx, "case-001", domain.TopicRunCompleted, []byte("broadcast"))
	time.Sleep(50 * time.Millisecond)

	if first.Load() != 1 || second.Load() != 1 {
		t.Errorf("expected both subscribers to receive, got %d and %d", first.Load(), second.Load())
	}
}

func TestChannelBusRequestReply(t *testing.T) {
	bus := NewChannelBus(10)
	defer bus.Close()
	ctx := context.Background()

	// Responder answers on the reply topic carried in metadata.
	bus.Subscribe(ctx, "case-001", "modules.describe", func(ctx context.Context, msg *domain.Message) error {
		return bus.Publish(ctx, "case-001", msg.Metadata["replyTo"], []byte(`{"module":"narcotics"}`))
	})
	settle()

	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	reply, err := bus.Request(reqCtx, "case-001", "modules.describe", []byte(`{"name":"narcotics"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if string(reply) != `{"module":"narcotics"}` {
		t.Errorf("unexpected reply: %s", reply)
	}
}

func TestChannelBusSubscriptionTopic(t *testing.T) {
	bus := NewChannelBus(10)
	defer bus.Close()

	sub, _ := bus.Subscribe(context.Background(), "case-001", domain.TopicRecordsSubmitted, func(ctx context.Context, msg *domain.Message) error {
		return nil
	})
	if sub.Topic() != domain.TopicRecordsSubmitted {
		t.Errorf("unexpected topic: %s", sub.Topic())
	}
}

func TestChannelBusPingAndClose(t *testing.T) {
	bus := NewChannelBus(10)
	ctx := context.Background()

	if err := bus.Ping(ctx); err != nil {
		t.Errorf("ping on open bus failed: %v", err)
	}

	bus.Subscribe(ctx, "case-001", domain.TopicRunCompleted, func(ctx context.Context, msg *domain.Message) error {
		return nil
	})
	if err := bus.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	if err := bus.Publish(ctx, "case-001", domain.TopicRunCompleted, []byte("data")); err == nil {
		t.Error("expected publish error after close")
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
}

func TestNewBus(t *testing.T) {
	bus, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer bus.Close()
	if _, ok := bus.(*ChannelBus); !ok {
		t.Error("expected ChannelBus for channel type")
	}

	if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()
	ctx := context.Background()

	const messageCount = 100
	var received atomic.Int32
	var wg sync.WaitGroup
	wg.Add(messageCount)

	bus.Subscribe(ctx, "case-load", domain.TopicRecordsSubmitted, func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		wg.Done()
		return nil
	})
	settle()

	for i := 0; i < messageCount; i++ {
		bus.Publish(ctx, "case-load", domain.TopicRecordsSubmitted, []byte("batch"))
	}
	awaitGroup(t, &wg, 5*time.Second)

	if received.Load() != messageCount {
		t.Errorf("expected %d deliveries, got %d", messageCount, received.Load())
	}
}
