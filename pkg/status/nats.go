package status

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher is the subset of *nats.Conn used by NATSSink.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each snapshot to <prefix>.<run_id>.<status>.
type NATSSink struct {
	pub    Publisher
	prefix string
}

// NewNATSSink publishes through pub. An empty prefix uses "gameforge.runs".
func NewNATSSink(pub Publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = "gameforge.runs"
	}
	return &NATSSink{pub: pub, prefix: strings.TrimSuffix(prefix, ".")}
}

// ConnectNATS dials a NATS server with reconnects enabled.
func ConnectNATS(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("gameforge"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// Subject returns the subject a snapshot is published on.
func (s *NATSSink) Subject(snap Snapshot) string {
	return fmt.Sprintf("%s.%s.%s", s.prefix, subjectToken(snap.RunID), subjectToken(snap.Status))
}

func (s *NATSSink) Push(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.pub.Publish(s.Subject(snap), data); err != nil {
		return fmt.Errorf("publish run status: %w", err)
	}
	return nil
}

// subjectToken keeps a value to a single NATS subject token.
func subjectToken(v string) string {
	if v == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, v)
}
