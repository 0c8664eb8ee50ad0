package event

import "errors"

// Sentinel errors for the event bus.
var (
	// ErrInvalidTopic is returned when a topic is empty or malformed.
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrNilHandler is returned when a nil handler is provided.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrSubscriptionNotFound is returned when unsubscribing an unknown subscription.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrHandlerPanic is returned when a handler panics.
	ErrHandlerPanic = errors.New("handler panicked")
)

// HandlerError wraps a failure from one subscriber.
type HandlerError struct {
	// SubscriptionID identifies the failing subscription.
	SubscriptionID string

	// Topic is the topic being delivered.
	Topic string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return "handler error for subscription " + e.SubscriptionID + " on topic " + e.Topic + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}
