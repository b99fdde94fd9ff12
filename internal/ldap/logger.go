package ldap

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Log subsystems.
const (
	SubsystemProvider = "provider"
	SubsystemLDAP     = "ldap"
	SubsystemKerberos = "kerberos"
)

// Logger is the structured logging surface used by modules.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	Trace(msg string, fields map[string]any)
}

type logFunc func(ctx context.Context, subsystem, msg string, additionalFields ...map[string]any)

var _ Logger = (*TFLogger)(nil)

// TFLogger writes sanitized fields to a tflog subsystem.
type TFLogger struct {
	ctx       context.Context
	subsystem string
}

func NewTFLogger(ctx context.Context, subsystem string) *TFLogger {
	return &TFLogger{ctx: ctx, subsystem: subsystem}
}

func (l *TFLogger) log(fn logFunc, msg string, fields map[string]any) {
	fn(l.ctx, l.subsystem, msg, SanitizeFields(fields))
}

func (l *TFLogger) Debug(msg string, fields map[string]any) { l.log(tflog.SubsystemDebug, msg, fields) }
func (l *TFLogger) Info(msg string, fields map[string]any)  { l.log(tflog.SubsystemInfo, msg, fields) }
func (l *TFLogger) Warn(msg string, fields map[string]any)  { l.log(tflog.SubsystemWarn, msg, fields) }
func (l *TFLogger) Error(msg string, fields map[string]any) { l.log(tflog.SubsystemError, msg, fields) }
func (l *TFLogger) Trace(msg string, fields map[string]any) { l.log(tflog.SubsystemTrace, msg, fields) }

// Lifecycle names a connection or credential event that happens outside
// request execution.
type Lifecycle string

const (
	LifecycleDialed            Lifecycle = "connection_established"
	LifecycleDialFailed        Lifecycle = "connection_failed"
	LifecycleConnectionCreated Lifecycle = "connection_created"
	LifecycleAuthenticated     Lifecycle = "authentication_success"
	LifecycleAuthFailed        Lifecycle = "authentication_failed"
	LifecycleCCacheLoaded      Lifecycle = "credentials_cached"
	LifecycleKeytabLoaded      Lifecycle = "keytab_loaded"
	LifecycleTicketFailed      Lifecycle = "ticket_acquisition_failed"
	LifecycleKrb5ConfGenerated Lifecycle = "runtime_config_generated"
)

type lifecycleLevel struct {
	subsystem string
	log       logFunc
}

var lifecycleLevels = map[Lifecycle]lifecycleLevel{
	LifecycleDialed:            {SubsystemLDAP, tflog.SubsystemInfo},
	LifecycleDialFailed:        {SubsystemLDAP, tflog.SubsystemWarn},
	LifecycleConnectionCreated: {SubsystemLDAP, tflog.SubsystemDebug},
	LifecycleAuthenticated:     {SubsystemLDAP, tflog.SubsystemInfo},
	LifecycleAuthFailed:        {SubsystemLDAP, tflog.SubsystemError},
	LifecycleCCacheLoaded:      {SubsystemKerberos, tflog.SubsystemInfo},
	LifecycleKeytabLoaded:      {SubsystemKerberos, tflog.SubsystemInfo},
	LifecycleTicketFailed:      {SubsystemKerberos, tflog.SubsystemError},
	LifecycleKrb5ConfGenerated: {SubsystemKerberos, tflog.SubsystemDebug},
}

// LogLifecycle logs event at the level registered for it. Unknown events
// are traced on the ldap subsystem.
func LogLifecycle(ctx context.Context, event Lifecycle, fields map[string]any) {
	level, ok := lifecycleLevels[event]
	if !ok {
		level = lifecycleLevel{SubsystemLDAP, tflog.SubsystemTrace}
	}

	out := SanitizeFields(fields)
	if out == nil {
		out = make(map[string]any, 1)
	}
	out["event"] = string(event)

	level.log(ctx, level.subsystem, "Lifecycle event", out)
}

const (
	slowOperation       = 5 * time.Second
	noticeableOperation = time.Second
)

// LogPerformance logs how long an operation took, at Warn when slow.
func LogPerformance(ctx context.Context, subsystem, operation string, duration time.Duration, fields map[string]any) {
	out := make(map[string]any, len(fields)+2)
	maps.Copy(out, fields)
	out["operation"] = operation
	out["duration_ms"] = duration.Milliseconds()

	switch {
	case duration > slowOperation:
		tflog.SubsystemWarn(ctx, subsystem, "Slow operation detected", out)
	case duration > noticeableOperation:
		tflog.SubsystemInfo(ctx, subsystem, "Operation performance", out)
	default:
		tflog.SubsystemTrace(ctx, subsystem, "Operation performance", out)
	}
}

// LogLDAPError logs a failed operation. Fields of an *LDAPError in the
// chain are expanded.
func LogLDAPError(ctx context.Context, operation string, err error, fields map[string]any) {
	if err == nil {
		return
	}

	out := SanitizeFields(fields)
	if out == nil {
		out = make(map[string]any)
	}
	out["operation"] = operation
	out["error"] = err.Error()

	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) {
		out["ldap_result_code"] = uint16(ldapErr.Code)
		out["error_category"] = string(ldapErr.Category)
		out["retryable"] = ldapErr.Retryable
		if ldapErr.DN != "" {
			out["ldap_matched_dn"] = ldapErr.DN
		}
		if ldapErr.ServerMsg != "" {
			out["ldap_diagnostic_message"] = ldapErr.ServerMsg
		}
	}

	tflog.SubsystemError(ctx, SubsystemLDAP, "LDAP operation failed", out)
}

const redacted = "[REDACTED]"

var sensitiveKeys = map[string]bool{
	"password":     true,
	"passwd":       true,
	"old_password": true,
	"new_password": true,
	"userpassword": true,
	"unicodepwd":   true,
	"secret":       true,
	"token":        true,
	"key":          true,
	"private_key":  true,
	"credential":   true,
	"credentials":  true,
}

var sensitivePatterns = []string{
	"password=",
	"passwd=",
	"secret=",
	"token=",
	"key=",
	"userpassword=",
	"unicodepwd=",
}

// SanitizeFields returns a copy of fields with secrets redacted, either by
// key or because a string value embeds one.
func SanitizeFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}

	sanitized := make(map[string]any, len(fields))
	for k, v := range fields {
		if sensitiveKeys[strings.ToLower(k)] {
			sanitized[k] = redacted
			continue
		}
		if str, ok := v.(string); ok && containsSensitivePattern(str) {
			sanitized[k] = redacted
			continue
		}
		sanitized[k] = v
	}

	return sanitized
}

func containsSensitivePattern(s string) bool {
	lower := strings.ToLower(s)
	for _, pattern := range sensitivePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// LogOperation logs the start of a Terraform operation on component (a data
// source or resource type name) and returns a func that logs its outcome.
func LogOperation(ctx context.Context, component, operation string, fields map[string]any) func(error) {
	start := time.Now()

	base := SanitizeFields(fields)
	if base == nil {
		base = make(map[string]any, 2)
	}
	base["component"] = component
	base["operation"] = operation

	tflog.SubsystemDebug(ctx, SubsystemProvider, "Starting operation", base)

	return func(err error) {
		out := maps.Clone(base)
		out["duration_ms"] = time.Since(start).Milliseconds()
		out["has_error"] = err != nil

		if err != nil {
			out["error"] = err.Error()
			tflog.SubsystemError(ctx, SubsystemProvider, "Operation failed", out)
			return
		}
		tflog.SubsystemDebug(ctx, SubsystemProvider, "Operation completed", out)
	}
}
