package ldap

import (
	"fmt"
	"slices"
)

const (
	// DefaultFilter matches every entry.
	DefaultFilter = "(objectClass=*)"
	// DefaultPageSize is the page size used until one is set.
	DefaultPageSize = 1000
)

// Request describes one operation for an Executor.
type Request interface {
	// Action is the canonical operation name passed to Link.Invoke.
	Action() string
	// ActionParameters are the positional arguments passed to Link.Invoke.
	ActionParameters() []any
	// PrepareForExecution configures the link before each invocation.
	PrepareForExecution(link *Link) error
}

// Pageable is implemented by requests that continue across pages. The
// Response produced for such a request writes the server's cookie back.
type Pageable interface {
	Request
	PagedSearchEnabled() bool
	ReceiveCookie(cookie []byte)
}

// LookupRequest is a search, read or list. Setters return the receiver so
// calls can be chained.
type LookupRequest struct {
	scope          SearchScope
	base           string
	filter         string
	attributes     []string
	attributesOnly bool
	sizeLimit      int
	timeLimit      int
	deref          DerefAliases
	explicit       explicitLimits
	pageSize       int
	paged          bool
	cookie         []byte
	executed       bool
}

// NewSearchRequest returns a subtree lookup under base.
func NewSearchRequest(base string) *LookupRequest {
	return newLookupRequest(ScopeWholeSubtree, base)
}

// NewReadRequest returns a lookup of the single entry at base.
func NewReadRequest(base string) *LookupRequest {
	return newLookupRequest(ScopeBaseObject, base)
}

// NewListRequest returns a lookup of the immediate children of base.
func NewListRequest(base string) *LookupRequest {
	return newLookupRequest(ScopeSingleLevel, base)
}

// explicitLimits records which of the session-overridable parameters were
// set on the request. Unset ones are sent as nil so the link applies its
// session options.
type explicitLimits struct {
	sizeLimit bool
	timeLimit bool
	deref     bool
}

func newLookupRequest(scope SearchScope, base string) *LookupRequest {
	return &LookupRequest{
		scope:      scope,
		base:       base,
		filter:     DefaultFilter,
		attributes: []string{"*"},
		pageSize:   DefaultPageSize,
	}
}

func (r *LookupRequest) Action() string {
	return lookupAction(r.scope)
}

// ActionParameters returns base, filter, attributes, attributesOnly,
// sizeLimit, timeLimit and deref in that order. The last three are nil
// until set.
func (r *LookupRequest) ActionParameters() []any {
	return []any{
		r.base,
		r.filter,
		slices.Clone(r.attributes),
		r.attributesOnly,
		explicitOrNil(r.explicit.sizeLimit, r.sizeLimit),
		explicitOrNil(r.explicit.timeLimit, r.timeLimit),
		explicitOrNil(r.explicit.deref, r.deref),
	}
}

func explicitOrNil[T any](set bool, v T) any {
	if !set {
		return nil
	}
	return v
}

// PrepareForExecution installs the paging control on every execution of a
// paged request, including the first.
func (r *LookupRequest) PrepareForExecution(link *Link) error {
	r.executed = true
	if !r.paged {
		return nil
	}
	return link.SetPagingControl(r.pageSize, true, r.cookie)
}

func (r *LookupRequest) Scope() SearchScope { return r.scope }

func (r *LookupRequest) Base() string { return r.base }

func (r *LookupRequest) SetBase(base string) *LookupRequest {
	r.base = base
	return r
}

func (r *LookupRequest) Filter() string { return r.filter }

func (r *LookupRequest) SetFilter(filter string) *LookupRequest {
	r.filter = filter
	return r
}

func (r *LookupRequest) Attributes() []string { return slices.Clone(r.attributes) }

func (r *LookupRequest) SetAttributes(attributes ...string) *LookupRequest {
	r.attributes = slices.Clone(attributes)
	return r
}

func (r *LookupRequest) AttributesOnly() bool { return r.attributesOnly }

func (r *LookupRequest) SetAttributesOnly(attributesOnly bool) *LookupRequest {
	r.attributesOnly = attributesOnly
	return r
}

// SizeLimit returns the entry limit; 0 means unset.
func (r *LookupRequest) SizeLimit() int { return r.sizeLimit }

func (r *LookupRequest) SetSizeLimit(sizeLimit int) *LookupRequest {
	r.sizeLimit = max(sizeLimit, 0)
	r.explicit.sizeLimit = true
	return r
}

// TimeLimit returns the server-side time limit in seconds; 0 means unset.
func (r *LookupRequest) TimeLimit() int { return r.timeLimit }

func (r *LookupRequest) SetTimeLimit(seconds int) *LookupRequest {
	r.timeLimit = max(seconds, 0)
	r.explicit.timeLimit = true
	return r
}

func (r *LookupRequest) DereferenceAliases() DerefAliases { return r.deref }

func (r *LookupRequest) SetDereferenceAliases(deref DerefAliases) *LookupRequest {
	r.deref = deref
	r.explicit.deref = true
	return r
}

func (r *LookupRequest) PageSize() int { return r.pageSize }

func (r *LookupRequest) SetPageSize(pageSize int) *LookupRequest {
	r.pageSize = pageSize
	return r
}

func (r *LookupRequest) PagedSearchEnabled() bool { return r.paged }

func (r *LookupRequest) SetPagedSearchEnabled(enabled bool) *LookupRequest {
	r.paged = enabled
	return r
}

// Cookie returns the continuation cookie; nil before the first page.
func (r *LookupRequest) Cookie() []byte { return slices.Clone(r.cookie) }

func (r *LookupRequest) SetCookie(cookie []byte) *LookupRequest {
	r.cookie = slices.Clone(cookie)
	return r
}

// ReceiveCookie stores the cookie returned with the latest page.
func (r *LookupRequest) ReceiveCookie(cookie []byte) {
	r.SetCookie(cookie)
}

// Done reports whether a paged request has been executed and the server
// signalled the last page with an empty cookie.
func (r *LookupRequest) Done() bool {
	return r.paged && r.executed && len(r.cookie) == 0
}

// From sets the base DN.
func (r *LookupRequest) From(base string) *LookupRequest { return r.SetBase(base) }

// StartAt sets the base DN.
func (r *LookupRequest) StartAt(base string) *LookupRequest { return r.SetBase(base) }

// Where sets the filter.
func (r *LookupRequest) Where(filter string) *LookupRequest { return r.SetFilter(filter) }

// Select sets the requested attributes.
func (r *LookupRequest) Select(attributes ...string) *LookupRequest {
	return r.SetAttributes(attributes...)
}

// With sets the requested attributes.
func (r *LookupRequest) With(attributes ...string) *LookupRequest {
	return r.SetAttributes(attributes...)
}

// Get sets the requested attributes.
func (r *LookupRequest) Get(attributes ...string) *LookupRequest {
	return r.SetAttributes(attributes...)
}

// AndGet sets the requested attributes. It replaces rather than extends
// the list.
func (r *LookupRequest) AndGet(attributes ...string) *LookupRequest {
	return r.SetAttributes(attributes...)
}

// The sets the base DN.
func (r *LookupRequest) The(base string) *LookupRequest { return r.SetBase(base) }

// This sets the base DN.
func (r *LookupRequest) This(base string) *LookupRequest { return r.SetBase(base) }

// LimitTo sets the size limit.
func (r *LookupRequest) LimitTo(sizeLimit int) *LookupRequest { return r.SetSizeLimit(sizeLimit) }

// Within sets the time limit in seconds.
func (r *LookupRequest) Within(seconds int) *LookupRequest { return r.SetTimeLimit(seconds) }

// Secs does nothing. It reads after Within: req.Within(30).Secs().
func (r *LookupRequest) Secs() *LookupRequest { return r }

// EnablePagedMode turns the size limit into the page size and enables
// paging. The two are mutually exclusive: afterwards the size limit is an
// explicit 0, so no session size limit applies to the pages either.
func (r *LookupRequest) EnablePagedMode() (*LookupRequest, error) {
	if r.sizeLimit == 0 {
		return r, fmt.Errorf("%w: paged search requested but size limit is not set", ErrInvalidState)
	}

	r.pageSize = r.sizeLimit
	r.sizeLimit = 0
	r.explicit.sizeLimit = true
	r.paged = true
	return r, nil
}

// PerPage is EnablePagedMode.
func (r *LookupRequest) PerPage() (*LookupRequest, error) { return r.EnablePagedMode() }

var _ Pageable = (*LookupRequest)(nil)
