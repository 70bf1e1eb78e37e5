package domain

import (
	"context"
)

// EventBus carries case-scoped events between the API, the async worker, and
// anything an examiner wires up downstream. The standalone tier runs it over
// in-process channels; the lab tier runs it over NATS. Every call names the
// case so one case's traffic never reaches another's subscribers.
type EventBus interface {
	Publish(ctx context.Context, caseID string, topic string, payload []byte) error

	// Subscribe registers a handler and returns a handle for tearing the
	// subscription down.
	Subscribe(ctx context.Context, caseID string, topic string, handler MessageHandler) (Subscription, error)

	// Request publishes and waits for a single reply.
	Request(ctx context.Context, caseID string, topic string, payload []byte) ([]byte, error)

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler processes one delivered message.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the envelope every bus implementation delivers.
type Message struct {
	ID        string            `json:"id"`
	CaseID    string            `json:"caseId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription is the handle returned by Subscribe.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig selects and tunes a bus implementation.
type EventBusConfig struct {
	// Type is "channel" or "nats".
	Type string

	ChannelBufferSize int

	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Standard topic names for the analysis pipeline.
const (
	TopicRecordsSubmitted = "ghost.records.submitted"
	TopicRunCompleted     = "ghost.run.completed"
	TopicRunFailed        = "ghost.run.failed"
	TopicAlertCritical    = "ghost.alert.critical"
)
