package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/luahost/internal/event/topic"
)

// HandlerFunc receives delivered envelopes.
type HandlerFunc func(ctx context.Context, env Envelope) error

// Subscription identifies a registered handler.
type Subscription struct {
	ID      string
	Pattern topic.Topic
}

// Bus publishes envelopes to subscribers whose pattern matches the topic.
type Bus interface {
	// Publish delivers env to every matching subscriber before returning.
	// Handler failures are joined into the returned error.
	Publish(ctx context.Context, env Envelope) error

	// Subscribe registers fn for topics matching pattern.
	Subscribe(pattern topic.Topic, fn HandlerFunc) (Subscription, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(sub Subscription) error
}

type subscriber struct {
	sub Subscription
	fn  HandlerFunc
}

type bus struct {
	mu   sync.RWMutex
	subs []subscriber
}

// NewBus creates a synchronous bus.
func NewBus() Bus {
	return &bus{}
}

func (b *bus) Publish(ctx context.Context, env Envelope) error {
	if !env.Topic.IsValid() || env.Topic.IsWildcard() {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, env.Topic)
	}

	b.mu.RLock()
	targets := make([]subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if env.Topic.Matches(s.sub.Pattern) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	var errs []error
	for _, s := range targets {
		if err := deliver(ctx, s, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func deliver(ctx context.Context, s subscriber, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{
				SubscriptionID: s.sub.ID,
				Topic:          env.Topic.String(),
				Err:            fmt.Errorf("%w: %v", ErrHandlerPanic, r),
			}
		}
	}()
	if herr := s.fn(ctx, env); herr != nil {
		return &HandlerError{SubscriptionID: s.sub.ID, Topic: env.Topic.String(), Err: herr}
	}
	return nil
}

func (b *bus) Subscribe(pattern topic.Topic, fn HandlerFunc) (Subscription, error) {
	if fn == nil {
		return Subscription{}, ErrNilHandler
	}
	if !pattern.IsValid() {
		return Subscription{}, fmt.Errorf("%w: %q", ErrInvalidTopic, pattern)
	}

	sub := Subscription{ID: uuid.NewString(), Pattern: pattern}
	b.mu.Lock()
	b.subs = append(b.subs, subscriber{sub: sub, fn: fn})
	b.mu.Unlock()
	return sub, nil
}

func (b *bus) Unsubscribe(sub Subscription) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.sub.ID == sub.ID {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return nil
		}
	}
	return ErrSubscriptionNotFound
}

// Publish is a nil-safe helper for components with an optional bus.
func Publish[T any](ctx context.Context, b Bus, t topic.Topic, payload T, source, sessionID string) error {
	if b == nil {
		return nil
	}
	ev := NewEvent(t, payload, source).WithSession(sessionID)
	return b.Publish(ctx, NewEnvelope(ev))
}
