package ldap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewLink(t *testing.T) {
	_, err := NewLink(nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	link, _ := newTestLink()
	version, err := link.GetOption(OptionProtocolVersion)
	require.NoError(t, err)
	assert.Equal(t, 3, version)

	deref, err := link.GetOption(OptionDeref)
	require.NoError(t, err)
	assert.Equal(t, NeverDerefAliases, deref)
}

func TestLink_Search(t *testing.T) {
	ctx := context.Background()
	link, transport := newTestLink()

	result := &ldap.SearchResult{
		Entries:   []*ldap.Entry{entry("CN=a,DC=example,DC=com", attribute("cn", "a"))},
		Referrals: []string{"ldap://other.example.com/DC=other"},
	}
	transport.On("Search", mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.BaseDN == "DC=example,DC=com" &&
			req.Scope == ldap.ScopeSingleLevel &&
			req.Filter == "(cn=a)" &&
			req.SizeLimit == 5 &&
			len(req.Controls) == 0
	})).Return(result, nil).Once()

	got, err := link.Search(ctx, LookupParams{
		Scope:      ScopeSingleLevel,
		BaseDN:     "DC=example,DC=com",
		Filter:     "(cn=a)",
		Attributes: []string{"cn"},
		SizeLimit:  5,
	})
	require.NoError(t, err)
	assert.Same(t, result, got)

	last := link.LastResult()
	assert.Equal(t, CodeSuccess, last.Code)
	assert.Equal(t, []string{"ldap://other.example.com/DC=other"}, last.Referrals)
	transport.AssertExpectations(t)
}

func TestLink_SearchFailureRecordsLastResult(t *testing.T) {
	ctx := context.Background()
	link, transport := newTestLink()

	failure := &ldap.Error{
		ResultCode: ldap.LDAPResultNoSuchObject,
		MatchedDN:  "DC=example,DC=com",
		Err:        errors.New("0000208D: NameErr: DSID-03100288, problem 2001 (NO_OBJECT)"),
	}
	transport.On("Search", mock.Anything).Return((*ldap.SearchResult)(nil), failure).Once()

	_, err := link.Search(ctx, LookupParams{Scope: ScopeBaseObject, BaseDN: "OU=missing,DC=example,DC=com"})

	var ldapErr *LDAPError
	require.ErrorAs(t, err, &ldapErr)
	assert.Equal(t, CodeNoSuchObject, ldapErr.Code)

	last := link.LastResult()
	assert.Equal(t, CodeNoSuchObject, last.Code)
	assert.Equal(t, "DC=example,DC=com", last.MatchedDN)
	assert.Contains(t, last.DiagnosticMessage, "NO_OBJECT")
}

func TestLink_SearchAppliesSessionDefaults(t *testing.T) {
	ctx := context.Background()
	link, transport := newTestLink()

	require.NoError(t, link.SetOption(OptionSizeLimit, 100))
	require.NoError(t, link.SetOption(OptionTimeLimit, 30))
	require.NoError(t, link.SetOption(OptionDeref, DerefAlways))

	transport.On("Search", mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.SizeLimit == 100 &&
			req.TimeLimit == 30 &&
			req.DerefAliases == ldap.DerefAlways &&
			req.Filter == DefaultFilter
	})).Return(&ldap.SearchResult{}, nil).Once()

	_, err := link.Search(ctx, LookupParams{Scope: ScopeWholeSubtree, BaseDN: "DC=example,DC=com"})
	require.NoError(t, err)
	transport.AssertExpectations(t)
}

func TestLink_ExplicitLookupParamsOverrideSessionDefaults(t *testing.T) {
	ctx := context.Background()
	link, transport := newTestLink()

	require.NoError(t, link.SetOption(OptionSizeLimit, 100))
	require.NoError(t, link.SetOption(OptionTimeLimit, 30))
	require.NoError(t, link.SetOption(OptionDeref, DerefAlways))

	transport.On("Search", mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.SizeLimit == 0 &&
			req.TimeLimit == 0 &&
			req.DerefAliases == ldap.NeverDerefAliases
	})).Return(&ldap.SearchResult{}, nil).Once()

	req := NewSearchRequest("DC=example,DC=com").
		LimitTo(0).
		Within(0).
		SetDereferenceAliases(NeverDerefAliases)
	_, err := link.Invoke(ctx, req.Action(), req.ActionParameters()...)
	require.NoError(t, err)
	assert.Equal(t, CodeSuccess, link.LastResult().Code)
	transport.AssertExpectations(t)
}

func TestLink_UnsetLookupParamsUseSessionDefaults(t *testing.T) {
	ctx := context.Background()
	link, transport := newTestLink()

	require.NoError(t, link.SetOption(OptionDeref, DerefAlways))

	transport.On("Search", mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.DerefAliases == ldap.DerefAlways
	})).Return(&ldap.SearchResult{}, nil).Once()

	req := NewSearchRequest("DC=example,DC=com")
	_, err := link.Invoke(ctx, req.Action(), req.ActionParameters()...)
	require.NoError(t, err)
	transport.AssertExpectations(t)
}

func TestLink_PagingControlIsOneShot(t *testing.T) {
	ctx := context.Background()
	link, transport := newTestLink()

	require.NoError(t, link.SetPagingControl(50, true, []byte("next")))

	transport.On("Search", mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		if len(req.Controls) != 1 {
			return false
		}
		ctrl, ok := req.Controls[0].(*pagingControl)
		return ok && ctrl.PagingSize == 50 && string(ctrl.Cookie) == "next"
	})).Return(&ldap.SearchResult{}, nil).Once()
	transport.On("Search", mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return len(req.Controls) == 0
	})).Return(&ldap.SearchResult{}, nil).Once()

	p := LookupParams{Scope: ScopeWholeSubtree, BaseDN: "DC=example,DC=com"}
	_, err := link.Search(ctx, p)
	require.NoError(t, err)
	_, err = link.Search(ctx, p)
	require.NoError(t, err)

	transport.AssertExpectations(t)
	assert.ErrorIs(t, link.SetPagingControl(0, false, nil), ErrInvalidArgument)
}

func TestLink_Bind(t *testing.T) {
	ctx := context.Background()

	t.Run("simple", func(t *testing.T) {
		link, transport := newTestLink()
		transport.On("Bind", "CN=svc,DC=example,DC=com", "secret").Return(nil).Once()

		require.NoError(t, link.Bind(ctx, "CN=svc,DC=example,DC=com", "secret"))
		transport.AssertExpectations(t)
	})

	t.Run("empty password is unauthenticated", func(t *testing.T) {
		link, transport := newTestLink()
		transport.On("UnauthenticatedBind", "CN=svc,DC=example,DC=com").Return(nil).Once()

		require.NoError(t, link.Bind(ctx, "CN=svc,DC=example,DC=com", ""))
		transport.AssertExpectations(t)
		transport.AssertNotCalled(t, "Bind", mock.Anything, mock.Anything)
	})

	t.Run("invalid credentials", func(t *testing.T) {
		link, transport := newTestLink()
		transport.On("Bind", "svc", "wrong").Return(ldapFailure(ldap.LDAPResultInvalidCredentials, "data 52e")).Once()

		err := link.Bind(ctx, "svc", "wrong")
		assert.True(t, IsAuthenticationError(err))
		assert.Equal(t, CodeInvalidCredentials, link.LastResult().Code)
	})
}

func TestLink_Compare(t *testing.T) {
	ctx := context.Background()
	link, transport := newTestLink()

	transport.On("Compare", "CN=g", "cn", "g").Return(true, nil).Once()
	transport.On("Compare", "CN=g", "cn", "h").Return(false, nil).Once()

	matched, err := link.Compare(ctx, "CN=g", "cn", "g")
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, CodeCompareTrue, link.LastResult().Code)

	matched, err = link.Compare(ctx, "CN=g", "cn", "h")
	require.NoError(t, err)
	assert.False(t, matched)
	assert.Equal(t, CodeCompareFalse, link.LastResult().Code)
}

func TestLink_NonProtocolErrorRecordedAsOther(t *testing.T) {
	ctx := context.Background()
	link, transport := newTestLink()
	transport.On("Del", mock.Anything).Return(errors.New("broken pipe")).Once()

	err := link.Delete(ctx, "CN=gone")
	require.Error(t, err)

	last := link.LastResult()
	assert.Equal(t, CodeOther, last.Code)
	assert.Equal(t, "broken pipe", last.DiagnosticMessage)
}

func TestLink_Close(t *testing.T) {
	ctx := context.Background()
	link, transport := newTestLink()
	transport.On("Close").Return(nil).Once()

	require.NoError(t, link.Close())
	require.NoError(t, link.Close())
	assert.True(t, link.Closed())

	err := link.Bind(ctx, "a", "b")
	assert.ErrorIs(t, err, ErrLinkClosed)
	assert.ErrorIs(t, link.SetOption(OptionSizeLimit, 1), ErrLinkClosed)
	assert.ErrorIs(t, link.SetPagingControl(10, true, nil), ErrLinkClosed)
	transport.AssertNumberOfCalls(t, "Close", 1)
}

func TestLink_Unbind(t *testing.T) {
	ctx := context.Background()
	link, transport := newTestLink()
	transport.On("Unbind").Return(nil).Once()
	transport.On("Close").Return(nil).Once()

	require.NoError(t, link.Unbind(ctx))
	assert.True(t, link.Closed())
	assert.ErrorIs(t, link.Unbind(ctx), ErrLinkClosed)
	transport.AssertExpectations(t)
}

func TestLink_Options(t *testing.T) {
	tests := []struct {
		name    string
		opt     Option
		value   any
		wantErr error
	}{
		{"size limit", OptionSizeLimit, 10, nil},
		{"negative size limit", OptionSizeLimit, -1, ErrInvalidArgument},
		{"size limit wrong type", OptionSizeLimit, "10", ErrInvalidArgument},
		{"deref", OptionDeref, DerefInSearching, nil},
		{"deref wrong type", OptionDeref, 3, ErrInvalidArgument},
		{"protocol v3", OptionProtocolVersion, 3, nil},
		{"protocol v2", OptionProtocolVersion, 2, ErrInvalidArgument},
		{"referrals", OptionReferrals, true, nil},
		{"server controls", OptionServerControls, []ldap.Control{}, nil},
		{"read-only error number", OptionErrorNumber, 0, ErrInvalidArgument},
		{"read-only host name", OptionHostName, "x", ErrInvalidArgument},
		{"unknown", Option(0x7777), 1, ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, _ := newTestLink()
			err := link.SetOption(tt.opt, tt.value)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			got, err := link.GetOption(tt.opt)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
		})
	}
}

func TestLink_NetworkTimeoutOption(t *testing.T) {
	link, transport := newTestLink()
	transport.On("SetTimeout", 5*time.Second).Return().Once()

	require.NoError(t, link.SetOption(OptionNetworkTimeout, 5*time.Second))
	assert.ErrorIs(t, link.SetOption(OptionNetworkTimeout, time.Duration(0)), ErrInvalidArgument)
	transport.AssertExpectations(t)
}

func TestLink_LastResultOptions(t *testing.T) {
	ctx := context.Background()
	link, transport := newTestLink()
	transport.On("Del", mock.Anything).Return(&ldap.Error{
		ResultCode: ldap.LDAPResultNotAllowedOnNonLeaf,
		MatchedDN:  "OU=x,DC=example,DC=com",
		Err:        errors.New("has children"),
	}).Once()

	_ = link.Delete(ctx, "OU=x,DC=example,DC=com")

	code, err := link.GetOption(OptionErrorNumber)
	require.NoError(t, err)
	assert.Equal(t, ResultCode(ldap.LDAPResultNotAllowedOnNonLeaf), code)

	msg, err := link.GetOption(OptionDiagnosticMessage)
	require.NoError(t, err)
	assert.Equal(t, "has children", msg)

	matched, err := link.GetOption(OptionMatchedDN)
	require.NoError(t, err)
	assert.Equal(t, "OU=x,DC=example,DC=com", matched)

	host, err := link.GetOption(OptionHostName)
	require.NoError(t, err)
	assert.Equal(t, "dc1.example.com", host)
}

func TestLink_PasswordModifyAndWhoAmI(t *testing.T) {
	ctx := context.Background()
	link, transport := newTestLink()

	transport.On("PasswordModify", mock.MatchedBy(func(req *ldap.PasswordModifyRequest) bool {
		return req.UserIdentity == "uid=alice" && req.NewPassword == ""
	})).Return(&ldap.PasswordModifyResult{GeneratedPassword: "generated"}, nil).Once()
	transport.On("WhoAmI", []ldap.Control(nil)).Return(&ldap.WhoAmIResult{AuthzID: "u:EXAMPLE\\alice"}, nil).Once()

	generated, err := link.PasswordModify(ctx, "uid=alice", "old", "")
	require.NoError(t, err)
	assert.Equal(t, "generated", generated)

	authzID, err := link.WhoAmI(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u:EXAMPLE\\alice", authzID)
}
