package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ghost-forensics/ghost/internal/domain"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	defaultMaxReconnects = 10
	defaultReconnectWait = 5
)

// NATSBus is the lab tier bus: case-scoped subjects on an external NATS
// server, with reconnect handling sized for long-running extractions.
type NATSBus struct {
	mu   sync.RWMutex
	nc   *nats.Conn
	subs map[string]*natsSubscription
}

type natsSubscription struct {
	id     string
	caseID string
	topic  string
	raw    *nats.Subscription
}

// NewNATSBus connects to NATS and wraps the connection. The initial connect
// retries up to the configured reconnect budget before giving up.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	if cfg.NATSUrl == "" {
		cfg.NATSUrl = nats.DefaultURL
	}
	if cfg.NATSMaxReconnects == 0 {
		cfg.NATSMaxReconnects = defaultMaxReconnects
	}
	if cfg.NATSReconnectWait == 0 {
		cfg.NATSReconnectWait = defaultReconnectWait
	}

	nc, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("NATS connected",
		"server_id", nc.ConnectedServerId(),
		"url", nc.ConnectedUrl(),
	)

	return &NATSBus{
		nc:   nc,
		subs: make(map[string]*natsSubscription),
	}, nil
}

// dial performs the initial connect with retry. The reconnect options keep
// the connection alive after that.
func dial(cfg domain.EventBusConfig) (*nats.Conn, error) {
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second
	opts := []nats.Option{
		nats.MaxReconnects(cfg.NATSMaxReconnects),
		nats.ReconnectWait(wait),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err, "will_reconnect", !nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			slog.Info("NATS connection closed for good")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, s *nats.Subscription, err error) {
			subject := ""
			if s != nil {
				subject = s.Subject
			}
			slog.Error("NATS async error", "error", err, "subject", subject)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	var nc *nats.Conn
	var err error
	for attempt := 1; attempt <= cfg.NATSMaxReconnects; attempt++ {
		nc, err = nats.Connect(cfg.NATSUrl, opts...)
		if err == nil {
			return nc, nil
		}
		slog.Warn("NATS connect attempt failed",
			"attempt", attempt,
			"attempts_left", cfg.NATSMaxReconnects-attempt,
			"error", err,
		)
		time.Sleep(wait)
	}
	return nil, fmt.Errorf("NATS unreachable after %d attempts: %w", cfg.NATSMaxReconnects, err)
}

// Publish sends one envelope to the case-scoped subject.
func (b *NATSBus) Publish(ctx context.Context, caseID string, topic string, payload []byte) error {
	if caseID == "" {
		return fmt.Errorf("caseID is required")
	}

	data, err := json.Marshal(newMessage(caseID, topic, payload))
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return b.nc.Publish(b.subject(caseID, topic), data)
}

// Subscribe attaches a handler to the case-scoped subject. Envelopes that do
// not unmarshal are logged and dropped.
func (b *NATSBus) Subscribe(ctx context.Context, caseID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if caseID == "" {
		return nil, fmt.Errorf("caseID is required")
	}

	subject := b.subject(caseID, topic)
	raw, err := b.nc.Subscribe(subject, func(m *nats.Msg) {
		var env domain.Message
		if err := json.Unmarshal(m.Data, &env); err != nil {
			slog.Error("dropping malformed envelope", "subject", m.Subject, "error", err)
			return
		}
		if err := handler(ctx, &env); err != nil {
			slog.Error("handler error", "subject", m.Subject, "message_id", env.ID, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	s := &natsSubscription{
		id:     uuid.New().String(),
		caseID: caseID,
		topic:  topic,
		raw:    raw,
	}
	b.mu.Lock()
	b.subs[s.id] = s
	b.mu.Unlock()
	return s, nil
}

// Request runs a request-reply round trip, honoring the context deadline
// when one is set.
func (b *NATSBus) Request(ctx context.Context, caseID string, topic string, payload []byte) ([]byte, error) {
	if caseID == "" {
		return nil, fmt.Errorf("caseID is required")
	}

	data, err := json.Marshal(newMessage(caseID, topic, payload))
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	timeout := requestTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}

	reply, err := b.nc.Request(b.subject(caseID, topic), data, timeout)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", topic, err)
	}

	var rep domain.Message
	if err := json.Unmarshal(reply.Data, &rep); err != nil {
		return nil, fmt.Errorf("unmarshal reply: %w", err)
	}
	return rep.Payload, nil
}

// Ping verifies the connection by forcing a server round trip.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.nc.IsConnected() {
		return fmt.Errorf("NATS connection is down")
	}
	return b.nc.FlushWithContext(ctx)
}

// Close drops every subscription and closes the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subs {
		_ = s.raw.Unsubscribe()
	}
	b.subs = make(map[string]*natsSubscription)

	b.nc.Close()
	return nil
}

// subject nests the topic under a case-scoped NATS subject. Topic constants
// already carry the product prefix, so it is stripped before nesting.
func (b *NATSBus) subject(caseID, topic string) string {
	return fmt.Sprintf("ghost.%s.%s", caseID, strings.TrimPrefix(topic, "ghost."))
}

// Stats exposes connection statistics.
func (b *NATSBus) Stats() nats.Statistics {
	return b.nc.Stats()
}

func (s *natsSubscription) Unsubscribe() error {
	return s.raw.Unsubscribe()
}

func (s *natsSubscription) Topic() string {
	return s.topic
}
