// Package notify delivers audit finalize events.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/soaringjerry/storeaudit/internal/services"
)

// DefaultSubject is where finalize events are published.
const DefaultSubject = "storeaudit.audit.finalized"

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes finalize events as JSON. Mail delivery and other
// fan-out live in whatever subscribes to the subject.
type NATSNotifier struct {
	conn    *nats.Conn
	pub     publisher
	subject string
	logger  *slog.Logger
}

// Connect dials the NATS server at url.
func Connect(url, subject string, logger *slog.Logger) (*NATSNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("storeaudit"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	n := newNATSNotifier(conn, subject, logger)
	n.conn = conn
	return n, nil
}

func newNATSNotifier(pub publisher, subject string, logger *slog.Logger) *NATSNotifier {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSNotifier{pub: pub, subject: subject, logger: logger}
}

func (n *NATSNotifier) AuditFinalized(ctx context.Context, ev services.FinalizedEvent) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	n.logger.Debug("finalize event published", "subject", n.subject, "audit", ev.AuditID)
	return nil
}

// Close drains the connection so buffered events are sent.
func (n *NATSNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}

// LogNotifier writes finalize events to the log. It is used when no
// broker is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) AuditFinalized(_ context.Context, ev services.FinalizedEvent) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("audit finalized", "audit", ev.AuditID, "store", ev.StoreID, "score", ev.TotalScore)
	return nil
}
