// Package events publishes account lifecycle notifications to the task queue
// and holds the handlers the worker uses to consume them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue is the queue account events are enqueued on.
	DefaultQueue = "users"

	// TypeAccountRegistered is emitted after a successful registration.
	TypeAccountRegistered = "user:registered"
	// TypeAccountLoggedIn is emitted after a successful login.
	TypeAccountLoggedIn = "user:logged_in"
	// TypeProfileUpdated is emitted after a profile change is persisted.
	TypeProfileUpdated = "user:profile_updated"
)

// Types lists every event type the service emits.
var Types = []string{TypeAccountRegistered, TypeAccountLoggedIn, TypeProfileUpdated}

// AccountEvent is the payload of every account event.
type AccountEvent struct {
	AccountID  string    `json:"account_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher emits account events.
type Publisher interface {
	Publish(ctx context.Context, eventType string, event AccountEvent) error
}

// Enqueuer is the part of *asynq.Client the publisher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqPublisher enqueues events as asynq tasks.
type AsynqPublisher struct {
	client Enqueuer
	queue  string
}

var _ Publisher = (*AsynqPublisher)(nil)

// NewAsynqPublisher creates a publisher enqueueing on queue.
func NewAsynqPublisher(client Enqueuer, queue string) *AsynqPublisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &AsynqPublisher{client: client, queue: queue}
}

// Publish enqueues the event.
func (p *AsynqPublisher) Publish(ctx context.Context, eventType string, event AccountEvent) error {
	task, err := NewTask(eventType, event)
	if err != nil {
		return err
	}
	if _, err := p.client.EnqueueContext(ctx, task, asynq.Queue(p.queue), asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	return nil
}

// NopPublisher drops every event. Used when events are disabled.
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

func (NopPublisher) Publish(context.Context, string, AccountEvent) error { return nil }

// NewTask constructs an asynq task for an account event.
func NewTask(eventType string, event AccountEvent) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return asynq.NewTask(eventType, data), nil
}
