package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject prefixes every published subject.
const DefaultSubject = "agentflow.events"

// Publisher is the part of *nats.Conn used to publish events.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes events as JSON on "<subject>.<event type>".
type NATSNotifier struct {
	pub     Publisher
	subject string
	logger  Logger
	conn    *nats.Conn
}

// NewNATSNotifier wraps an existing publisher. logger may be nil.
func NewNATSNotifier(pub Publisher, subject string, logger Logger) *NATSNotifier {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSNotifier{pub: pub, subject: subject, logger: logger}
}

// ConnectNATS dials url and returns a notifier owning the connection.
func ConnectNATS(url, subject string, logger Logger) (*NATSNotifier, error) {
	conn, err := nats.Connect(url,
		nats.Name("agentflow"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	n := NewNATSNotifier(conn, subject, logger)
	n.conn = conn
	return n, nil
}

// Subject returns the subject an event of type t is published on.
func (n *NATSNotifier) Subject(t EventType) string {
	return n.subject + "." + string(t)
}

func (n *NATSNotifier) Notify(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		n.warn("encode event %s: %v", e.Type, err)
		return
	}
	if err := n.pub.Publish(n.Subject(e.Type), data); err != nil {
		n.warn("publish event %s: %v", e.Type, err)
	}
}

// Close flushes and closes an owned connection.
func (n *NATSNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	if err := n.conn.FlushTimeout(2 * time.Second); err != nil {
		n.warn("flush NATS: %v", err)
	}
	n.conn.Close()
	return nil
}

func (n *NATSNotifier) warn(format string, args ...interface{}) {
	if n.logger != nil {
		n.logger.Warnf(format, args...)
	}
}
