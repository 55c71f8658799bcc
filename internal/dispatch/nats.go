package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultNATSSubject is where alerts publish unless the config says
// otherwise.
const DefaultNATSSubject = "cloudscout.alerts"

// natsConn is the subset of *nats.Conn the transport needs; tests substitute
// a capture.
type natsConn interface {
	PublishMsg(m *nats.Msg) error
	Flush() error
	Close()
}

// NATS publishes alerts as JSON messages on a subject, with the incident
// identity mirrored into headers so subscribers can route without parsing
// the body.
type NATS struct {
	conn    natsConn
	subject string
}

// NewNATS connects to the NATS server at url and publishes on subject.
func NewNATS(url, subject string) (*NATS, error) {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	nc, err := nats.Connect(url, nats.Name("cloudscout"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{conn: nc, subject: subject}, nil
}

// newNATSWithConn wires a transport over an existing connection (tests).
func newNATSWithConn(conn natsConn, subject string) *NATS {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	return &NATS{conn: conn, subject: subject}
}

func (n *NATS) Name() string { return "nats" }

func (n *NATS) Send(_ context.Context, a Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	msg := &nats.Msg{Subject: n.subject, Data: data, Header: nats.Header{}}
	msg.Header.Set("Incident-Id", a.ID)
	msg.Header.Set("Fingerprint", a.Fingerprint)
	msg.Header.Set("Severity", a.Severity)

	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return n.conn.Flush()
}

// Close drains the underlying connection.
func (n *NATS) Close() { n.conn.Close() }
