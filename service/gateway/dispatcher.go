package gateway

import (
	"context"
	"sync"

	"AmoraGateway/tools/errs"
)

// HandlerFunc processes one admitted, rate-limit-cleared event. Errors
// are acknowledged back to the sender; they never close the connection.
type HandlerFunc func(ctx context.Context, c *Conn, f *Frame) error

// Dispatcher routes events by name to business-logic handlers. The
// chat/match services register their handlers at startup; the gateway
// only owns the built-in ping.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

func (d *Dispatcher) Register(event string, h HandlerFunc) {
	d.mu.Lock()
	d.handlers[event] = h
	d.mu.Unlock()
}

func (d *Dispatcher) dispatch(ctx context.Context, c *Conn, f *Frame) error {
	d.mu.RLock()
	h, ok := d.handlers[f.Event]
	d.mu.RUnlock()
	if !ok {
		return errs.ErrUnknownEvent
	}
	return h(ctx, c, f)
}
