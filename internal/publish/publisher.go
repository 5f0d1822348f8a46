// Package publish implements the Substrate Publisher (spec.md §4.5): a thin,
// stateless contract over the broker that the Outbox Dispatcher and Relay
// Engine both depend on.
package publish

import (
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/arc-self/sync-relay/internal/relayerr"
)

// Ack is the durable acknowledgment returned by a successful publish.
type Ack struct {
	Stream     string
	Sequence   uint64
	Duplicate  bool
}

// Publisher publishes a message to the substrate with a message-id for
// server-side deduplication. Implementations must never silently swallow
// failures.
type Publisher interface {
	Publish(subject string, data []byte, messageID string) (Ack, error)
}

// JetStreamPublisher is the NATS JetStream-backed Publisher.
type JetStreamPublisher struct {
	js  nats.JetStreamContext
	log *zap.Logger
}

// NewJetStreamPublisher constructs a JetStreamPublisher over an established
// JetStream context.
func NewJetStreamPublisher(js nats.JetStreamContext, log *zap.Logger) *JetStreamPublisher {
	return &JetStreamPublisher{js: js, log: log}
}

// Publish publishes data to subject, blocking at the network boundary. When
// messageID is non-empty it is attached as the JetStream Nats-Msg-Id header
// so the broker's dedup window collapses duplicate publishes. A duplicate
// ack is treated as success per spec.md §7 (ErrDuplicateMessage is benign).
func (p *JetStreamPublisher) Publish(subject string, data []byte, messageID string) (Ack, error) {
	opts := []nats.PubOpt{}
	if messageID != "" {
		opts = append(opts, nats.MsgId(messageID))
	}

	pubAck, err := p.js.Publish(subject, data, opts...)
	if err != nil {
		if errors.Is(err, nats.ErrStreamNotFound) {
			return Ack{}, fmt.Errorf("publish %s: %w", subject, relayerr.ErrStreamNotFound)
		}
		if errors.Is(err, nats.ErrNoResponders) || errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrTimeout) {
			return Ack{}, fmt.Errorf("publish %s: %w", subject, relayerr.ErrBrokerUnavailable)
		}
		return Ack{}, fmt.Errorf("publish %s: %w", subject, err)
	}

	ack := Ack{Stream: pubAck.Stream, Sequence: pubAck.Sequence, Duplicate: pubAck.Duplicate}
	if ack.Duplicate {
		p.log.Debug("publish collapsed by broker dedup window",
			zap.String("subject", subject),
			zap.String("message_id", messageID),
			zap.Uint64("sequence", ack.Sequence),
		)
	}
	return ack, nil
}
