package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ghost-forensics/ghost/internal/domain"
	"github.com/google/uuid"
)

const defaultBufferSize = 1000

// ChannelBus is the standalone tier bus: per-subscription buffered channels
// inside the server process, nothing external. Publishing never blocks; a
// subscriber that cannot keep up loses messages rather than stalling a run.
type ChannelBus struct {
	mu      sync.RWMutex
	bufSize int
	subs    map[string][]*channelSubscription
	closed  bool
}

type channelSubscription struct {
	id      string
	caseID  string
	topic   string
	handler domain.MessageHandler
	inbox   chan *domain.Message
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewChannelBus creates an in-process bus whose subscription channels buffer
// up to size messages each.
func NewChannelBus(size int) *ChannelBus {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &ChannelBus{
		bufSize: size,
		subs:    make(map[string][]*channelSubscription),
	}
}

// Publish delivers to every subscriber of the case and topic. Full
// subscription buffers are skipped, not waited on.
func (b *ChannelBus) Publish(ctx context.Context, caseID string, topic string, payload []byte) error {
	if caseID == "" {
		return fmt.Errorf("caseID is required")
	}
	return b.send(newMessage(caseID, topic, payload))
}

func (b *ChannelBus) send(env *domain.Message) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus closed")
	}
	receivers := b.subs[subKey(env.CaseID, env.Topic)]
	b.mu.RUnlock()

	for _, s := range receivers {
		select {
		case s.inbox <- env:
		default:
		}
	}
	return nil
}

// Subscribe registers a handler for a case-scoped topic and starts its
// delivery goroutine.
func (b *ChannelBus) Subscribe(ctx context.Context, caseID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if caseID == "" {
		return nil, fmt.Errorf("caseID is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("bus closed")
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &channelSubscription{
		id:      uuid.New().String(),
		caseID:  caseID,
		topic:   topic,
		handler: handler,
		inbox:   make(chan *domain.Message, b.bufSize),
		ctx:     subCtx,
		cancel:  cancel,
	}
	go s.deliver()

	key := subKey(caseID, topic)
	b.subs[key] = append(b.subs[key], s)
	return s, nil
}

// deliver drains the subscription inbox into the handler until the
// subscription is cancelled.
func (s *channelSubscription) deliver() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case env := <-s.inbox:
			if env != nil {
				_ = s.handler(s.ctx, env)
			}
		}
	}
}

// Request publishes and waits for one reply on a per-request reply topic.
// The reply topic rides in envelope metadata under "replyTo" so responders
// know where to answer.
func (b *ChannelBus) Request(ctx context.Context, caseID string, topic string, payload []byte) ([]byte, error) {
	if caseID == "" {
		return nil, fmt.Errorf("caseID is required")
	}

	replies := make(chan []byte, 1)
	replyTopic := topic + ".reply." + uuid.New().String()

	sub, err := b.Subscribe(ctx, caseID, replyTopic, func(ctx context.Context, env *domain.Message) error {
		select {
		case replies <- env.Payload:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	env := newMessage(caseID, topic, payload)
	env.Metadata["replyTo"] = replyTopic
	if err := b.send(env); err != nil {
		return nil, err
	}

	select {
	case rep := <-replies:
		return rep, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(requestTimeout):
		return nil, fmt.Errorf("request timed out")
	}
}

// Ping reports whether the bus is still accepting traffic.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus closed")
	}
	return nil
}

// Close cancels every subscription and rejects further use.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	// Cancellation stops each delivery goroutine; the channels are left
	// open so a racing send can never panic.
	for _, receivers := range b.subs {
		for _, s := range receivers {
			s.cancel()
		}
	}
	b.subs = make(map[string][]*channelSubscription)
	return nil
}

func subKey(caseID, topic string) string {
	return caseID + ":" + topic
}

func (s *channelSubscription) Unsubscribe() error {
	s.cancel()
	return nil
}

func (s *channelSubscription) Topic() string {
	return s.topic
}
