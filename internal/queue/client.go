package queue

import "context"

// Client sends analysis trigger messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
	// Ping verifies the queue is reachable.
	Ping(ctx context.Context) error
}
