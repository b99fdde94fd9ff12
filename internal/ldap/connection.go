package ldap

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Connection executes Requests over a Link and publishes lifecycle events
// to the modules it was constructed with.
type Connection struct {
	link *Link
	bus  *EventBus

	mu    sync.Mutex
	state map[Module]any
}

// NewConnection subscribes every module in registry, in registration
// order, then emits EventNew. A nil registry attaches no modules.
func NewConnection(ctx context.Context, link *Link, registry *Registry) (*Connection, error) {
	if link == nil {
		return nil, fmt.Errorf("%w: link is nil", ErrInvalidArgument)
	}

	c := &Connection{link: link, bus: NewEventBus()}

	for _, m := range registry.Modules() {
		for kind, handler := range m.Subscriptions() {
			if err := c.bus.Subscribe(kind, handler); err != nil {
				return nil, fmt.Errorf("subscribing module %s: %w", m.Name(), err)
			}
		}
	}

	c.bus.Emit(ctx, Event{ID: uuid.New(), Kind: EventNew, Connection: c})
	return c, nil
}

// Link returns the underlying link.
func (c *Connection) Link() *Link {
	return c.link
}

// Events returns the connection's event bus.
func (c *Connection) Events() *EventBus {
	return c.bus
}

// moduleState returns what m stored on this connection, if anything.
func (c *Connection) moduleState(m Module) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state[m]
}

// setModuleState stores per-connection data for m, which must be
// comparable. The data lives as long as the Connection.
func (c *Connection) setModuleState(m Module, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		c.state = make(map[Module]any)
	}
	c.state[m] = v
}

// Execute runs req and returns its normalized Response. Directory failures
// are reported through the Response; only structural errors such as
// ErrUnsupportedOperation, ErrInvalidArgument and ErrLinkClosed are
// returned.
func (c *Connection) Execute(ctx context.Context, req Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is nil", ErrInvalidArgument)
	}

	id := uuid.New()
	ctx = tflog.SubsystemSetField(ctx, "ldap", "request_id", id.String())

	c.bus.Emit(ctx, Event{ID: id, Kind: EventRequest, Connection: c, Request: req})

	start := time.Now()
	if err := req.PrepareForExecution(c.link); err != nil {
		return nil, fmt.Errorf("preparing %s: %w", req.Action(), err)
	}

	outcome, err := c.link.Invoke(ctx, req.Action(), req.ActionParameters()...)
	if err != nil {
		return nil, err
	}

	resp := NewResponse(c.link, outcome, req)

	kind := EventResponse
	if !resp.OK() {
		kind = EventServerError
	}

	LogPerformance(ctx, SubsystemLDAP, req.Action(), time.Since(start), map[string]any{
		"result_code": uint16(resp.Code),
		"entries":     len(resp.Data),
	})

	c.bus.Emit(ctx, Event{ID: id, Kind: kind, Connection: c, Request: req, Response: resp})
	return resp, nil
}

// Pages executes a paged request repeatedly until the server returns an
// empty cookie or a page fails. Requests that are not paged yield a single
// response. Iteration stops at the first error.
func (c *Connection) Pages(ctx context.Context, req Pageable) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			resp, err := c.Execute(ctx, req)
			if !yield(resp, err) || err != nil {
				return
			}

			if !req.PagedSearchEnabled() || !resp.OK() || !resp.More() {
				return
			}
		}
	}
}

// Close releases the link.
func (c *Connection) Close() error {
	err := c.link.Close()
	if errors.Is(err, ErrLinkClosed) {
		return nil
	}
	return err
}
