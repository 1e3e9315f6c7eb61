package pushsvc

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
)

type NatsPublisher struct {
	conn *nats.Conn
}

var _ core.Publisher = (*NatsPublisher)(nil)

func Connect(url string) (*NatsPublisher, error) {
	conn, err := nats.Connect(url, nats.Name(core.Conf.AppName))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to NATS")
	}
	return &NatsPublisher{conn: conn}, nil
}

func (p *NatsPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return errors.Wrap(err, "publishing to "+subject)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NatsPublisher) Close() error {
	return p.conn.Drain()
}

// Message is a publication recorded by MemoryPublisher.
type Message struct {
	Subject string
	Data    []byte
}

// MemoryPublisher keeps publications in memory; used when no broker is configured.
type MemoryPublisher struct {
	mu   sync.Mutex
	msgs []Message
}

var _ core.Publisher = (*MemoryPublisher)(nil)

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, Message{Subject: subject, Data: append([]byte(nil), data...)})
	return nil
}

func (p *MemoryPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.msgs...)
}
