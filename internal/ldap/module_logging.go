package ldap

import (
	"context"
)

// LoggingModule writes every lifecycle event to the tflog "ldap" subsystem.
type LoggingModule struct {
	BaseModule
}

func NewLoggingModule() *LoggingModule { return &LoggingModule{} }

func (m *LoggingModule) Name() string { return "logging" }

func (m *LoggingModule) Subscriptions() map[EventKind]Handler {
	return map[EventKind]Handler{
		EventNew:         m.onNew,
		EventRequest:     m.onRequest,
		EventResponse:    m.onResponse,
		EventServerError: m.onServerError,
	}
}

func (m *LoggingModule) onNew(ctx context.Context, event Event) {
	ep := event.Connection.Link().Endpoint()
	LogLifecycle(ctx, LifecycleConnectionCreated, map[string]any{
		"host": ep.Host,
		"port": ep.Port,
	})
}

func (m *LoggingModule) onRequest(ctx context.Context, event Event) {
	fields := map[string]any{
		"request_id": event.ID.String(),
		"action":     event.Request.Action(),
	}
	if lookup, ok := event.Request.(*LookupRequest); ok {
		fields["base_dn"] = lookup.Base()
		fields["filter"] = lookup.Filter()
		fields["paged"] = lookup.PagedSearchEnabled()
	}
	NewTFLogger(ctx, SubsystemLDAP).Debug("Executing request", fields)
}

func (m *LoggingModule) onResponse(ctx context.Context, event Event) {
	resp := event.Response
	fields := map[string]any{
		"request_id":  event.ID.String(),
		"action":      event.Request.Action(),
		"result_code": uint16(resp.Code),
		"entries":     len(resp.Data),
		"more_pages":  resp.More(),
	}
	if resp.Estimated != nil {
		fields["estimated"] = *resp.Estimated
	}
	NewTFLogger(ctx, SubsystemLDAP).Debug("Request completed", fields)
}

func (m *LoggingModule) onServerError(ctx context.Context, event Event) {
	LogLDAPError(ctx, event.Request.Action(), event.Response.Err(), map[string]any{
		"request_id": event.ID.String(),
	})
}
