package ldap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// LastResult is the outcome of the most recent operation on a Link.
type LastResult struct {
	Code              ResultCode
	MatchedDN         string
	DiagnosticMessage string
	Referrals         []string
}

// Outcome is what an invoked operation produced. Lookup is set for search,
// read and list; Value carries scalar results such as an option value or a
// WhoAmI authorization identity.
type Outcome struct {
	Lookup *ldap.SearchResult
	Value  any
}

// LookupParams are the arguments of a search, read or list. A zero
// SizeLimit, TimeLimit or Deref falls back to the link's session option
// unless the matching *Set flag marks it as explicit.
type LookupParams struct {
	Scope          SearchScope
	BaseDN         string
	Filter         string
	Attributes     []string
	AttributesOnly bool
	SizeLimit      int
	TimeLimit      int // seconds
	Deref          DerefAliases

	SizeLimitSet bool
	TimeLimitSet bool
	DerefSet     bool
}

// Link owns one protocol handle and exposes the operations permitted on it.
// A Link serializes calls; it is not meant for concurrent use by
// independent callers.
type Link struct {
	mu        sync.Mutex
	transport Transport
	endpoint  Endpoint
	closeOnce sync.Once
	closed    bool

	last    LastResult
	options map[Option]any
	paging  *pagingControl
}

// NewLink wraps an established transport.
func NewLink(transport Transport) (*Link, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: transport is nil", ErrInvalidArgument)
	}

	return &Link{
		transport: transport,
		options: map[Option]any{
			OptionProtocolVersion: 3,
			OptionDeref:           NeverDerefAliases,
			OptionSizeLimit:       0,
			OptionTimeLimit:       0,
			OptionReferrals:       false,
		},
	}, nil
}

// DialLink resolves the configured servers and connects to the first one
// that answers.
func DialLink(ctx context.Context, cfg *ConnectionConfig) (*Link, error) {
	return dialLink(ctx, cfg, NewSRVDiscovery(nil), DialEndpoint)
}

func dialLink(ctx context.Context, cfg *ConnectionConfig, discovery *SRVDiscovery, dial DialFunc) (*Link, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	endpoints, err := ResolveEndpoints(ctx, cfg, discovery)
	if err != nil {
		return nil, err
	}

	transport, ep, err := DialFirst(ctx, endpoints, cfg, dial)
	if err != nil {
		return nil, err
	}

	link, err := NewLink(transport)
	if err != nil {
		return nil, err
	}
	link.endpoint = ep
	link.options[OptionNetworkTimeout] = cfg.Timeout

	LogLifecycle(ctx, LifecycleDialed, map[string]any{
		"url":    ep.URL(),
		"source": ep.Source,
	})

	return link, nil
}

// Endpoint returns the server the link is connected to, if it was dialed.
func (l *Link) Endpoint() Endpoint {
	return l.endpoint
}

// LastResult returns the outcome of the most recent operation.
func (l *Link) LastResult() LastResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	last := l.last
	last.Referrals = slices.Clone(l.last.Referrals)
	return last
}

// Close releases the handle. Calling it more than once is harmless.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.closed = true
		l.paging = nil
		err = l.transport.Close()
	})
	return err
}

// Closed reports whether Close has been called.
func (l *Link) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// run executes fn against the transport and records its outcome as the
// last result. Protocol failures are returned as *LDAPError.
func (l *Link) run(ctx context.Context, operation string, fields map[string]any, fn func(Transport) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("%s: %w", operation, ErrLinkClosed)
	}

	start := time.Now()
	err := fn(l.transport)
	l.record(err)

	if fields == nil {
		fields = make(map[string]any)
	}
	fields["operation"] = operation
	fields["duration_ms"] = time.Since(start).Milliseconds()
	fields["result_code"] = uint16(l.last.Code)
	tflog.SubsystemTrace(ctx, "ldap", "Link operation finished", fields)

	if err != nil {
		return NewLDAPError(operation, err)
	}
	return nil
}

// record stores err as the last result. Callers hold l.mu.
func (l *Link) record(err error) {
	l.last = LastResult{Code: CodeSuccess}
	if err == nil {
		return
	}

	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		l.last.Code = ResultCode(resultErr.ResultCode)
		l.last.MatchedDN = resultErr.MatchedDN
		l.last.Referrals = resultReferrals(resultErr.Packet)
		if resultErr.Err != nil {
			l.last.DiagnosticMessage = resultErr.Err.Error()
		}
		return
	}

	l.last.Code = CodeOther
	l.last.DiagnosticMessage = err.Error()
}

// ldapResultReferralTag is the context tag of the referral field of an
// LDAPResult (RFC 4511 section 4.1.9).
const ldapResultReferralTag ber.Tag = 3

// resultReferrals returns the referral URIs of the LDAPResult carried in an
// LDAPMessage, or nil when it has none.
func resultReferrals(packet *ber.Packet) []string {
	if packet == nil || len(packet.Children) < 2 || packet.Children[1] == nil {
		return nil
	}

	var referrals []string
	for _, child := range packet.Children[1].Children {
		if child.ClassType != ber.ClassContext || child.Tag != ldapResultReferralTag {
			continue
		}
		for _, uri := range child.Children {
			if v, ok := uri.Value.(string); ok && v != "" {
				referrals = append(referrals, v)
			} else if uri.Data != nil && uri.Data.Len() > 0 {
				referrals = append(referrals, uri.Data.String())
			}
		}
	}
	return referrals
}

// setCode overrides the recorded code. Used for compare verdicts, which
// go-ldap reports as a boolean rather than an error.
func (l *Link) setCode(code ResultCode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last.Code = code
}

// SetPagingControl installs a paging control for the next lookup only.
func (l *Link) SetPagingControl(pageSize int, critical bool, cookie []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("ldap_control_paged_result: %w", ErrLinkClosed)
	}
	if pageSize <= 0 {
		return fmt.Errorf("%w: page size must be positive", ErrInvalidArgument)
	}

	l.paging = newPagingControl(pageSize, critical, cookie)
	return nil
}

// Search runs a lookup. A partial result is returned alongside the error
// when the server stopped early, e.g. on a size limit.
func (l *Link) Search(ctx context.Context, p LookupParams) (*ldap.SearchResult, error) {
	var result *ldap.SearchResult

	operation := lookupAction(p.Scope)
	err := l.run(ctx, operation, map[string]any{
		"base_dn": p.BaseDN,
		"filter":  p.Filter,
		"scope":   p.Scope.String(),
	}, func(t Transport) error {
		req := l.searchRequest(p)
		var err error
		result, err = t.Search(req)
		return err
	})

	if result != nil {
		l.mu.Lock()
		l.last.Referrals = append(l.last.Referrals, result.Referrals...)
		l.mu.Unlock()
	}

	return result, err
}

// searchRequest applies session defaults and consumes any pending paging
// control. Callers hold l.mu.
func (l *Link) searchRequest(p LookupParams) *ldap.SearchRequest {
	sizeLimit, timeLimit, deref := p.SizeLimit, p.TimeLimit, p.Deref
	if sizeLimit == 0 && !p.SizeLimitSet {
		sizeLimit, _ = l.options[OptionSizeLimit].(int)
	}
	if timeLimit == 0 && !p.TimeLimitSet {
		timeLimit, _ = l.options[OptionTimeLimit].(int)
	}
	if deref == NeverDerefAliases && !p.DerefSet {
		if d, ok := l.options[OptionDeref].(DerefAliases); ok {
			deref = d
		}
	}

	var controls []ldap.Control
	if server, ok := l.options[OptionServerControls].([]ldap.Control); ok {
		controls = append(controls, server...)
	}
	if l.paging != nil {
		controls = append(controls, l.paging)
		l.paging = nil
	}

	filter := p.Filter
	if filter == "" {
		filter = DefaultFilter
	}

	return ldap.NewSearchRequest(
		p.BaseDN,
		int(p.Scope),
		int(deref),
		sizeLimit,
		timeLimit,
		p.AttributesOnly,
		filter,
		p.Attributes,
		controls,
	)
}

// Bind performs a simple bind. An empty password performs an
// unauthenticated bind for dn.
func (l *Link) Bind(ctx context.Context, dn, password string) error {
	return l.run(ctx, "ldap_bind", map[string]any{"bind_dn": dn}, func(t Transport) error {
		if password == "" {
			return t.UnauthenticatedBind(dn)
		}
		return t.Bind(dn, password)
	})
}

// ExternalBind performs a SASL EXTERNAL bind using the TLS client certificate.
func (l *Link) ExternalBind(ctx context.Context) error {
	return l.run(ctx, "ldap_sasl_bind", map[string]any{"mechanism": "EXTERNAL"}, func(t Transport) error {
		return t.ExternalBind()
	})
}

// GSSAPIBind performs a SASL GSSAPI bind with the given Kerberos client.
func (l *Link) GSSAPIBind(ctx context.Context, client ldap.GSSAPIClient, spn string) error {
	return l.run(ctx, "ldap_sasl_bind", map[string]any{"mechanism": "GSSAPI", "spn": spn}, func(t Transport) error {
		return t.GSSAPIBind(client, spn, "")
	})
}

// Compare tests an attribute value. The verdict is also recorded as
// compareTrue or compareFalse in the last result.
func (l *Link) Compare(ctx context.Context, dn, attribute, value string) (bool, error) {
	var matched bool
	err := l.run(ctx, "ldap_compare", map[string]any{"dn": dn, "attribute": attribute}, func(t Transport) error {
		var err error
		matched, err = t.Compare(dn, attribute, value)
		return err
	})
	if err != nil {
		return false, err
	}

	if matched {
		l.setCode(CodeCompareTrue)
	} else {
		l.setCode(CodeCompareFalse)
	}
	return matched, nil
}

// Add creates an entry.
func (l *Link) Add(ctx context.Context, req *ldap.AddRequest) error {
	return l.run(ctx, "ldap_add", map[string]any{"dn": req.DN}, func(t Transport) error {
		return t.Add(req)
	})
}

// Delete removes an entry.
func (l *Link) Delete(ctx context.Context, dn string) error {
	return l.run(ctx, "ldap_delete", map[string]any{"dn": dn}, func(t Transport) error {
		return t.Del(ldap.NewDelRequest(dn, nil))
	})
}

// Modify applies attribute changes to an entry.
func (l *Link) Modify(ctx context.Context, req *ldap.ModifyRequest) error {
	return l.run(ctx, "ldap_modify", map[string]any{"dn": req.DN, "changes": len(req.Changes)}, func(t Transport) error {
		return t.Modify(req)
	})
}

// Rename changes an entry's RDN and optionally moves it under newParent.
func (l *Link) Rename(ctx context.Context, dn, newRDN, newParent string, deleteOldRDN bool) error {
	return l.run(ctx, "ldap_rename", map[string]any{"dn": dn, "new_rdn": newRDN}, func(t Transport) error {
		return t.ModifyDN(ldap.NewModifyDNRequest(dn, newRDN, deleteOldRDN, newParent))
	})
}

// PasswordModify runs the RFC 3062 extended operation and returns any
// server-generated password.
func (l *Link) PasswordModify(ctx context.Context, user, oldPassword, newPassword string) (string, error) {
	var generated string
	err := l.run(ctx, "ldap_passwd", map[string]any{"user": user}, func(t Transport) error {
		res, err := t.PasswordModify(ldap.NewPasswordModifyRequest(user, oldPassword, newPassword))
		if res != nil {
			generated = res.GeneratedPassword
		}
		return err
	})
	return generated, err
}

// WhoAmI returns the authorization identity of the bound session.
func (l *Link) WhoAmI(ctx context.Context) (string, error) {
	var authzID string
	err := l.run(ctx, "ldap_exop_whoami", nil, func(t Transport) error {
		res, err := t.WhoAmI(nil)
		if res != nil {
			authzID = res.AuthzID
		}
		return err
	})
	return authzID, err
}

// StartTLS upgrades the connection.
func (l *Link) StartTLS(ctx context.Context, cfg *tls.Config) error {
	return l.run(ctx, "ldap_start_tls", nil, func(t Transport) error {
		return t.StartTLS(cfg)
	})
}

// Unbind ends the session and releases the handle.
func (l *Link) Unbind(ctx context.Context) error {
	err := l.run(ctx, "ldap_unbind", nil, func(t Transport) error {
		return t.Unbind()
	})
	if errors.Is(err, ErrLinkClosed) {
		return err
	}
	if closeErr := l.Close(); err == nil && closeErr != nil {
		err = NewLDAPError("ldap_unbind", closeErr)
	}
	return err
}

// SetOption sets a session option.
func (l *Link) SetOption(opt Option, value any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("ldap_set_option: %w", ErrLinkClosed)
	}
	if opt.readOnly() {
		return fmt.Errorf("%w: option %s is read-only", ErrInvalidArgument, opt)
	}

	switch opt {
	case OptionSizeLimit, OptionTimeLimit:
		n, ok := value.(int)
		if !ok || n < 0 {
			return fmt.Errorf("%w: option %s requires a non-negative int", ErrInvalidArgument, opt)
		}
	case OptionDeref:
		if _, ok := value.(DerefAliases); !ok {
			return fmt.Errorf("%w: option %s requires DerefAliases", ErrInvalidArgument, opt)
		}
	case OptionProtocolVersion:
		if v, ok := value.(int); !ok || v != 3 {
			return fmt.Errorf("%w: only protocol version 3 is supported", ErrInvalidArgument)
		}
	case OptionReferrals, OptionRestart:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%w: option %s requires a bool", ErrInvalidArgument, opt)
		}
	case OptionServerControls, OptionClientControls:
		if _, ok := value.([]ldap.Control); !ok {
			return fmt.Errorf("%w: option %s requires []ldap.Control", ErrInvalidArgument, opt)
		}
	case OptionNetworkTimeout:
		d, ok := value.(time.Duration)
		if !ok || d <= 0 {
			return fmt.Errorf("%w: option %s requires a positive time.Duration", ErrInvalidArgument, opt)
		}
		l.transport.SetTimeout(d)
	default:
		return fmt.Errorf("%w: unknown option %s", ErrInvalidArgument, opt)
	}

	l.options[opt] = value
	return nil
}

// GetOption reads a session option or a field of the last result.
func (l *Link) GetOption(opt Option) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch opt {
	case OptionErrorNumber:
		return l.last.Code, nil
	case OptionDiagnosticMessage:
		return l.last.DiagnosticMessage, nil
	case OptionMatchedDN:
		return l.last.MatchedDN, nil
	case OptionHostName:
		return l.endpoint.Host, nil
	}

	value, ok := l.options[opt]
	if !ok {
		return nil, fmt.Errorf("%w: option %s is not set", ErrInvalidArgument, opt)
	}
	return value, nil
}
