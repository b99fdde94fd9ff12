package ldap

import (
	"slices"

	"github.com/go-ldap/ldap/v3"
)

// Response is the normalized result of executing a Request.
type Response struct {
	Request           Request
	Code              ResultCode
	Message           string // Canonical message for Code
	DiagnosticMessage string // Message from the server, unmodified
	MatchedDN         string
	Data              []Object // nil for non-lookup operations
	Referrals         []string // nil when the server sent none
	Cookie            []byte   // nil when there are no further pages
	Estimated         *int     // Server's estimate of the total entry count
	Value             any      // Scalar result, e.g. a compare verdict

	raw *ldap.SearchResult
}

// NewResponse normalizes an invocation outcome. The link's last result
// supplies the status. For paged lookups the server's cookie is written
// back into req when the page succeeded or carried a paging control.
func NewResponse(link *Link, outcome Outcome, req Request) *Response {
	last := link.LastResult()

	resp := &Response{
		Request:           req,
		Code:              last.Code,
		DiagnosticMessage: last.DiagnosticMessage,
		MatchedDN:         last.MatchedDN,
		Value:             outcome.Value,
		raw:               outcome.Lookup,
	}

	if len(last.Referrals) > 0 {
		resp.Referrals = slices.Clone(last.Referrals)
	}

	if outcome.Lookup != nil {
		resp.Data = normalizeEntries(outcome.Lookup.Entries)
		resp.Cookie, resp.Estimated = pagingResponse(outcome.Lookup.Controls)
	}

	// A failed page without a paging control leaves the prior cookie, so
	// executing req again retries the same page.
	pagingSeen := resp.Estimated != nil
	if p, ok := req.(Pageable); ok && p.PagedSearchEnabled() && (pagingSeen || last.Code.OK()) {
		p.ReceiveCookie(resp.Cookie)
	}

	if resp.Code == CodeInvalidCredentials {
		if sub, ok := vendorSubCode(resp.DiagnosticMessage); ok {
			resp.Code = sub
		}
	}

	resp.Message = resp.Code.String()
	return resp
}

// OK reports whether the code is success, sizeLimitExceeded, compareFalse
// or compareTrue.
func (r *Response) OK() bool {
	return r.Code.OK()
}

// Category classifies the response code.
func (r *Response) Category() ErrorCategory {
	return r.Code.Category()
}

// Err returns the failure as an *LDAPError, or nil when OK.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}

	operation := ""
	if r.Request != nil {
		operation = r.Request.Action()
	}

	return &LDAPError{
		Operation: operation,
		Category:  r.Code.Category(),
		Code:      r.Code,
		Message:   r.Message,
		ServerMsg: r.DiagnosticMessage,
		DN:        r.MatchedDN,
		Retryable: r.Code.Retryable(),
	}
}

// More reports whether the server returned a cookie for a further page.
func (r *Response) More() bool {
	return len(r.Cookie) > 0
}

// Raw returns the unnormalized search result, or nil after Release.
func (r *Response) Raw() *ldap.SearchResult {
	return r.raw
}

// Release drops the raw result. Normalized fields stay valid.
func (r *Response) Release() {
	r.raw = nil
}
