package ldap

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// EventKind is the closed set of lifecycle events a Connection emits.
type EventKind int

const (
	// EventNew fires once when a Connection is constructed.
	EventNew EventKind = iota + 1
	// EventRequest fires before a Request is prepared and invoked.
	EventRequest
	// EventResponse fires after an execution whose Response is OK.
	EventResponse
	// EventServerError fires after an execution whose Response is not OK.
	EventServerError
)

func (k EventKind) String() string {
	switch k {
	case EventNew:
		return "new"
	case EventRequest:
		return "request"
	case EventResponse:
		return "response"
	case EventServerError:
		return "serverError"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Valid reports whether k is one of the defined kinds.
func (k EventKind) Valid() bool {
	return k >= EventNew && k <= EventServerError
}

// Event is passed to handlers. Request and Response are set as far as the
// lifecycle has progressed; ID correlates a request with its response.
type Event struct {
	ID         uuid.UUID
	Kind       EventKind
	Connection *Connection
	Request    Request
	Response   *Response
}

// Handler observes an event.
type Handler func(ctx context.Context, event Event)

// EventBus dispatches events synchronously, in subscription order.
// Handlers must not subscribe while an event is being dispatched.
type EventBus struct {
	mu          sync.Mutex
	handlers    map[EventKind][]Handler
	dispatching int
}

// NewEventBus returns an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[EventKind][]Handler)}
}

// Subscribe appends handler to the subscribers of kind.
func (b *EventBus) Subscribe(kind EventKind, handler Handler) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown event kind %d", ErrInvalidArgument, int(kind))
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrInvalidArgument, kind)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dispatching > 0 {
		return fmt.Errorf("%w: cannot subscribe to %s during dispatch", ErrInvalidState, kind)
	}

	b.handlers[kind] = append(b.handlers[kind], handler)
	return nil
}

// Emit calls every handler subscribed to event.Kind, in order.
func (b *EventBus) Emit(ctx context.Context, event Event) {
	b.mu.Lock()
	handlers := b.handlers[event.Kind]
	b.dispatching++
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.dispatching--
		b.mu.Unlock()
	}()

	for _, h := range handlers {
		h(ctx, event)
	}
}

// Len returns the number of handlers subscribed to kind.
func (b *EventBus) Len(kind EventKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[kind])
}
