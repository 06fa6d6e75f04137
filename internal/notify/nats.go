// Package notify forwards build and dev process events to NATS so editors,
// browsers and dashboards can follow a watch session.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/buildflow/internal/events"
	ferrors "git.home.luguber.info/inful/buildflow/internal/foundation/errors"
	"git.home.luguber.info/inful/buildflow/internal/logfields"
)

// Publisher is the subset of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Envelope is the JSON document published for every event.
type Envelope struct {
	Event string    `json:"event"`
	At    time.Time `json:"at"`
	Data  any       `json:"data"`
}

// Notifier publishes bus events to "<subject>.<event name>".
type Notifier struct {
	conn    Publisher
	subject string
	logger  *slog.Logger
	now     func() time.Time
}

// Connect dials url and returns a Notifier publishing under subject.
func Connect(url, subject string, logger *slog.Logger) (*Notifier, error) {
	conn, err := nats.Connect(url, nats.Name("buildflow"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to connect to NATS").
			WithContext("url", url).
			Build()
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("NATS notifier connected", "url", url, "subject", subject)
	return New(conn, subject, logger), nil
}

// New wraps an existing connection.
func New(conn Publisher, subject string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{conn: conn, subject: subject, logger: logger, now: time.Now}
}

// Notify publishes a single event.
func (n *Notifier) Notify(evt events.Event) error {
	var data any = evt
	if rc, ok := evt.(events.RebuildCompleted); ok && rc.Err != nil && rc.Error == "" {
		rc.Error = rc.Err.Error()
		data = rc
	}
	payload, err := json.Marshal(Envelope{Event: evt.EventName(), At: n.now(), Data: data})
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to marshal event").
			WithContext("event", evt.EventName()).
			Build()
	}
	subject := n.subject + "." + evt.EventName()
	if err := n.conn.Publish(subject, payload); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to publish event").
			WithContext("subject", subject).
			Build()
	}
	n.logger.Debug("Published event", "subject", subject)
	return nil
}

// Run forwards every bus event until ctx is done or the bus closes, then drains
// the connection. Publish failures are logged and do not stop forwarding.
func (n *Notifier) Run(ctx context.Context, bus *events.Bus) error {
	ch, unsubscribe := events.Subscribe[events.Event](bus, 64)
	defer unsubscribe()
	defer func() {
		if err := n.conn.Drain(); err != nil {
			n.logger.Warn("Failed to drain NATS connection", logfields.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			if err := n.Notify(evt); err != nil {
				n.logger.Warn("Event notification failed", logfields.Error(err))
			}
		}
	}
}
