package ldap

import (
	"context"
	"sync/atomic"
)

// Stats is a snapshot of StatsModule counters.
type Stats struct {
	Connections  int64
	Requests     int64
	Responses    int64
	ServerErrors int64
	Entries      int64
}

// StatsModule counts events across every connection it is attached to.
type StatsModule struct {
	BaseModule

	connections  atomic.Int64
	requests     atomic.Int64
	responses    atomic.Int64
	serverErrors atomic.Int64
	entries      atomic.Int64
}

func NewStatsModule() *StatsModule { return &StatsModule{} }

func (m *StatsModule) Name() string { return "stats" }

func (m *StatsModule) Subscriptions() map[EventKind]Handler {
	return map[EventKind]Handler{
		EventNew: func(context.Context, Event) {
			m.connections.Add(1)
		},
		EventRequest: func(context.Context, Event) {
			m.requests.Add(1)
		},
		EventResponse: func(_ context.Context, event Event) {
			m.responses.Add(1)
			m.entries.Add(int64(len(event.Response.Data)))
		},
		EventServerError: func(context.Context, Event) {
			m.serverErrors.Add(1)
		},
	}
}

// Stats returns the current counters.
func (m *StatsModule) Stats() Stats {
	return Stats{
		Connections:  m.connections.Load(),
		Requests:     m.requests.Load(),
		Responses:    m.responses.Load(),
		ServerErrors: m.serverErrors.Load(),
		Entries:      m.entries.Load(),
	}
}
