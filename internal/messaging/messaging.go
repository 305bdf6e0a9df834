// Package messaging defines how detected accidents leave the process without
// coupling the service to a particular broker.
package messaging

import (
	"context"
	"sync"
)

// Message is a payload published to a subject.
type Message struct {
	Subject string
	Data    []byte
	// Metadata is carried as message headers where the broker supports them.
	Metadata map[string]string
}

// Publisher publishes messages to subjects.
type Publisher interface {
	// PublishMsg sends a Message including its metadata.
	PublishMsg(ctx context.Context, msg *Message) error

	// Close flushes pending messages and releases the connection.
	Close() error
}

// Recorder is an in-process Publisher that keeps every message. It backs
// dry runs and tests.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	closed   bool
}

func (r *Recorder) PublishMsg(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
