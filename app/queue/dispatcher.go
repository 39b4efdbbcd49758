package queue

import (
	"context"
	"errors"
	"fmt"
)

var ErrUnknownType = errors.New("unknown message type")

type HandlerFunc func(ctx context.Context, env *Envelope) error

// Dispatcher routes messages to handlers by their type discriminator.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: map[string]HandlerFunc{}}
}

func (d *Dispatcher) Register(msgType string, handler HandlerFunc) {
	d.handlers[msgType] = handler
}

// Handle registers a handler that receives the decoded payload of msgType.
func Handle[T any](d *Dispatcher, msgType string, fn func(ctx context.Context, messageID string, payload *T) error) {
	d.Register(msgType, func(ctx context.Context, env *Envelope) error {
		payload := new(T)
		if err := env.Payload(payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", msgType, err)
		}
		return fn(ctx, env.MessageID, payload)
	})
}

func (d *Dispatcher) HasType(msgType string) bool {
	_, ok := d.handlers[msgType]
	return ok
}

func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) error {
	env, err := Decode(body)
	if err != nil {
		return err
	}
	handler, ok := d.handlers[env.Type]
	if !ok {
		return fmt.Errorf("%w %s", ErrUnknownType, env.Type)
	}
	return handler(ctx, env)
}
