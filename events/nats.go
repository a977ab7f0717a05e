package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSPublisher sends events as JSON on a single subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

func NewNATSPublisher(url, subject string, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if subject == "" {
		return nil, fmt.Errorf("nats subject is empty")
	}

	nc, err := nats.Connect(url,
		nats.Name("codemind"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &NATSPublisher{conn: nc, subject: subject, logger: logger}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, event SuggestionResolved) error {
	if p == nil || p.conn == nil {
		return fmt.Errorf("nats connection is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := Encode(event)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}

// Subscribe decodes every event on the publisher's subject and passes it to
// handler until ctx is done.
func (p *NATSPublisher) Subscribe(ctx context.Context, handler func(SuggestionResolved)) error {
	if p == nil || p.conn == nil {
		return fmt.Errorf("nats connection is not configured")
	}

	sub, err := p.conn.Subscribe(p.subject, func(msg *nats.Msg) {
		event, err := Decode(msg.Data)
		if err != nil {
			p.logger.Warn("drop malformed event", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		handler(event)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", p.subject, err)
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	return nil
}

func (p *NATSPublisher) Close() {
	if p != nil && p.conn != nil {
		if err := p.conn.Drain(); err != nil {
			p.conn.Close()
		}
	}
}

func Encode(event SuggestionResolved) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return payload, nil
}

func Decode(data []byte) (SuggestionResolved, error) {
	var event SuggestionResolved
	if err := json.Unmarshal(data, &event); err != nil {
		return SuggestionResolved{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}

var _ Publisher = (*NATSPublisher)(nil)
