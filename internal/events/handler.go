package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/vissharm/ecommerce-app-user-service/internal/logging"
)

// Notifier delivers a consumed account event downstream.
type Notifier interface {
	Notify(ctx context.Context, eventType string, event AccountEvent) error
}

// LogNotifier writes consumed events to the log.
type LogNotifier struct {
	Logger logging.Logger
}

func (n LogNotifier) Notify(ctx context.Context, eventType string, event AccountEvent) error {
	n.Logger.Info(ctx, "account event",
		"type", eventType,
		"account_id", event.AccountID,
		"email", event.Email,
		"occurred_at", event.OccurredAt,
	)
	return nil
}

// HandleAccountEvent decodes an account event task and hands it to notifier.
// Undecodable payloads are not retried.
func HandleAccountEvent(notifier Notifier) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var event AccountEvent
		if err := json.Unmarshal(t.Payload(), &event); err != nil {
			return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
		}
		return notifier.Notify(ctx, t.Type(), event)
	}
}

// NewServeMux registers HandleAccountEvent for every account event type.
func NewServeMux(notifier Notifier) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for _, typ := range Types {
		mux.Handle(typ, HandleAccountEvent(notifier))
	}
	return mux
}
