package realtime

import (
	"context"
	"log/slog"
)

// Event types pushed to clients.
const (
	EventPhotoUpdated = "photo_updated"
	EventMealUpdated  = "meal_updated"
	EventCancelled    = "cancelled"
)

// Event notifies an owner that one of their photos or meals changed. Clients
// are expected to re-poll the task or meal for authoritative state.
type Event struct {
	Type      string `json:"type"`
	OwnerID   string `json:"-"`
	TaskID    string `json:"task_id,omitempty"`
	PhotoID   string `json:"photo_id,omitempty"`
	MealID    string `json:"meal_id,omitempty"`
	Status    string `json:"status,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Publisher delivers events best-effort. Publishing never fails the caller.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

type multi []Publisher

// Multi fans an event out to every publisher.
func Multi(publishers ...Publisher) Publisher {
	return multi(publishers)
}

func (m multi) Publish(ctx context.Context, ev Event) {
	for _, p := range m {
		p.Publish(ctx, ev)
	}
}

type nop struct{}

func Nop() Publisher { return nop{} }

func (nop) Publish(context.Context, Event) {}

type logging struct {
	logger *slog.Logger
}

// Logging records every event at debug level.
func Logging(logger *slog.Logger) Publisher {
	return logging{logger: logger}
}

func (l logging) Publish(ctx context.Context, ev Event) {
	l.logger.DebugContext(ctx, "realtime event",
		"type", ev.Type,
		"owner_id", ev.OwnerID,
		"photo_id", ev.PhotoID,
		"meal_id", ev.MealID,
		"status", ev.Status,
	)
}
