package natsadapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
)

// Subscriber implements ports.EventSubscriber on a plain NATS connection.
// Relays see events as they happen; nothing is acknowledged or replayed.
type Subscriber struct {
	conn *nats.Conn
}

// NewSubscriber wraps an existing connection.
func NewSubscriber(conn *nats.Conn) *Subscriber {
	return &Subscriber{conn: conn}
}

// Subscribe delivers every message on subject to handler until the returned
// func is called or ctx is done.
func (s *Subscriber) Subscribe(ctx context.Context, subject string, handler func(subject string, data []byte)) (func(), error) {
	sub, err := s.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Unsubscribe()
		case <-stop:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			_ = sub.Unsubscribe()
		})
	}, nil
}
