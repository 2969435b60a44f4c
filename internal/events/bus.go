package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Event is a payload that knows the name it is published under
type Event interface {
	EventName() string
}

type handler struct {
	label string
	fn    func(ctx context.Context, evt Event) error
}

// Bus is an in-process, synchronous publish/subscribe dispatcher.
// Listeners run on the publisher's goroutine in registration order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]handler
	logger   *logrus.Logger
}

// NewBus creates an empty bus
func NewBus(logger *logrus.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]handler),
		logger:   logger,
	}
}

// Subscribe registers fn for every event of type T.
// label only shows up in logs.
func Subscribe[T Event](b *Bus, label string, fn func(ctx context.Context, evt T) error) {
	var zero T
	name := zero.EventName()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], handler{
		label: label,
		fn: func(ctx context.Context, evt Event) error {
			typed, ok := evt.(T)
			if !ok {
				return fmt.Errorf("listener %s expected %T, got %T", label, zero, evt)
			}
			return fn(ctx, typed)
		},
	})
}

// Publish delivers evt to every listener registered for its name.
// A failing or panicking listener is logged and the remaining listeners still run.
func Publish[T Event](ctx context.Context, b *Bus, evt T) {
	if b == nil {
		return
	}
	name := evt.EventName()

	b.mu.RLock()
	handlers := append([]handler(nil), b.handlers[name]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(ctx, name, h, evt)
	}
}

// ListenerCount returns how many listeners are registered for name
func (b *Bus) ListenerCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[name])
}

func (b *Bus) dispatch(ctx context.Context, name string, h handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"event":    name,
				"listener": h.label,
				"panic":    r,
			}).Error("Event listener panicked")
		}
	}()

	if err := h.fn(ctx, evt); err != nil {
		b.logger.WithError(err).WithFields(logrus.Fields{
			"event":    name,
			"listener": h.label,
		}).Error("Event listener failed")
	}
}
