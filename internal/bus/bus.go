// Package bus provides the event bus implementations behind domain.EventBus:
// in-process channels for the standalone tier and NATS for the lab tier.
package bus

import (
	"fmt"
	"time"

	"github.com/ghost-forensics/ghost/internal/domain"
	"github.com/google/uuid"
)

// requestTimeout caps Request round-trips that carry no context deadline.
const requestTimeout = 30 * time.Second

// New selects a bus implementation from configuration.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case "nats":
		return NewNATSBus(cfg)
	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// newMessage wraps a payload in the delivery envelope shared by all
// implementations.
func newMessage(caseID, topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		CaseID:    caseID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
}
