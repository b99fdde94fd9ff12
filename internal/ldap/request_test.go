package ldap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestLookupRequest_Defaults(t *testing.T) {
	tests := []struct {
		name       string
		req        *LookupRequest
		wantScope  SearchScope
		wantAction string
	}{
		{"search", NewSearchRequest("DC=example,DC=com"), ScopeWholeSubtree, "ldap_search"},
		{"read", NewReadRequest("DC=example,DC=com"), ScopeBaseObject, "ldap_read"},
		{"list", NewListRequest("DC=example,DC=com"), ScopeSingleLevel, "ldap_list"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantScope, tt.req.Scope())
			assert.Equal(t, tt.wantAction, tt.req.Action())
			assert.Equal(t, "DC=example,DC=com", tt.req.Base())
			assert.Equal(t, DefaultFilter, tt.req.Filter())
			assert.Equal(t, []string{"*"}, tt.req.Attributes())
			assert.Equal(t, DefaultPageSize, tt.req.PageSize())
			assert.Zero(t, tt.req.SizeLimit())
			assert.Zero(t, tt.req.TimeLimit())
			assert.False(t, tt.req.PagedSearchEnabled())
			assert.Nil(t, tt.req.Cookie())
		})
	}
}

func TestLookupRequest_Fluent(t *testing.T) {
	req := NewSearchRequest("").
		From("OU=Groups,DC=example,DC=com").
		Where("(objectClass=group)").
		Select("cn", "member").
		LimitTo(25).
		Within(10).
		SetDereferenceAliases(DerefAlways).
		SetAttributesOnly(true)

	assert.Equal(t, "OU=Groups,DC=example,DC=com", req.Base())
	assert.Equal(t, "(objectClass=group)", req.Filter())
	assert.Equal(t, []string{"cn", "member"}, req.Attributes())
	assert.Equal(t, 25, req.SizeLimit())
	assert.Equal(t, 10, req.TimeLimit())
	assert.Equal(t, DerefAlways, req.DereferenceAliases())
	assert.True(t, req.AttributesOnly())

	assert.Equal(t, []any{
		"OU=Groups,DC=example,DC=com",
		"(objectClass=group)",
		[]string{"cn", "member"},
		true,
		25,
		10,
		DerefAlways,
	}, req.ActionParameters())

	req.StartAt("DC=other").With("sn")
	assert.Equal(t, "DC=other", req.Base())
	assert.Equal(t, []string{"sn"}, req.Attributes())
}

func TestLookupRequest_Aliases(t *testing.T) {
	tests := []struct {
		name      string
		req       *LookupRequest
		wantBase  string
		wantAttrs []string
	}{
		{"the", NewReadRequest("").The("CN=a,DC=x"), "CN=a,DC=x", []string{"*"}},
		{"this", NewReadRequest("").This("CN=b,DC=x"), "CN=b,DC=x", []string{"*"}},
		{"get", NewSearchRequest("DC=x").Get("cn", "mail"), "DC=x", []string{"cn", "mail"}},
		{"and get replaces", NewSearchRequest("DC=x").Get("cn").AndGet("mail"), "DC=x", []string{"mail"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantBase, tt.req.Base())
			assert.Equal(t, tt.wantAttrs, tt.req.Attributes())
		})
	}

	req := NewSearchRequest("DC=x").Within(30).Secs()
	assert.Equal(t, 30, req.TimeLimit())
}

func TestLookupRequest_UnsetLimitsAreNil(t *testing.T) {
	paged, err := NewSearchRequest("DC=example,DC=com").LimitTo(20).PerPage()
	require.NoError(t, err)

	tests := []struct {
		name string
		req  *LookupRequest
		want []any
	}{
		{
			name: "unset",
			req:  NewSearchRequest("DC=example,DC=com"),
			want: []any{nil, nil, nil},
		},
		{
			name: "explicit zero values",
			req:  NewSearchRequest("DC=example,DC=com").LimitTo(0).Within(0).SetDereferenceAliases(NeverDerefAliases),
			want: []any{0, 0, NeverDerefAliases},
		},
		{
			name: "paged",
			req:  paged,
			want: []any{0, nil, nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.ActionParameters()[4:])
		})
	}
}

func TestLookupRequest_LimitsClampToZero(t *testing.T) {
	req := NewSearchRequest("DC=example,DC=com").SetSizeLimit(-5).SetTimeLimit(-1)
	assert.Zero(t, req.SizeLimit())
	assert.Zero(t, req.TimeLimit())
}

func TestLookupRequest_AttributesAreCopied(t *testing.T) {
	attrs := []string{"cn"}
	req := NewSearchRequest("DC=example,DC=com").Select(attrs...)
	attrs[0] = "mutated"

	got := req.Attributes()
	assert.Equal(t, []string{"cn"}, got)
	got[0] = "mutated"
	assert.Equal(t, []string{"cn"}, req.Attributes())
}

func TestLookupRequest_EnablePagedMode(t *testing.T) {
	t.Run("requires size limit", func(t *testing.T) {
		req := NewSearchRequest("DC=example,DC=com")
		_, err := req.EnablePagedMode()
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.False(t, req.PagedSearchEnabled())
	})

	t.Run("moves size limit to page size", func(t *testing.T) {
		req, err := NewSearchRequest("DC=example,DC=com").LimitTo(50).PerPage()
		require.NoError(t, err)
		assert.True(t, req.PagedSearchEnabled())
		assert.Equal(t, 50, req.PageSize())
		assert.Zero(t, req.SizeLimit())
	})
}

func TestLookupRequest_CookieLifecycle(t *testing.T) {
	req, err := NewSearchRequest("DC=example,DC=com").LimitTo(2).EnablePagedMode()
	require.NoError(t, err)
	assert.False(t, req.Done(), "not executed yet")

	cookie := []byte{0x01, 0x02}
	req.ReceiveCookie(cookie)
	cookie[0] = 0xff
	assert.Equal(t, []byte{0x01, 0x02}, req.Cookie())

	link, transport := newTestLink()
	require.NoError(t, req.PrepareForExecution(link))
	assert.False(t, req.Done())

	req.ReceiveCookie(nil)
	assert.True(t, req.Done())
	transport.AssertNotCalled(t, "Search", mock.Anything)
}

func TestLookupRequest_PrepareInstallsPagingControl(t *testing.T) {
	link, _ := newTestLink()

	plain := NewSearchRequest("DC=example,DC=com")
	require.NoError(t, plain.PrepareForExecution(link))
	assert.Nil(t, link.paging)

	paged, err := NewSearchRequest("DC=example,DC=com").LimitTo(10).EnablePagedMode()
	require.NoError(t, err)
	paged.SetCookie([]byte("abc"))
	require.NoError(t, paged.PrepareForExecution(link))

	require.NotNil(t, link.paging)
	assert.True(t, link.paging.Criticality)
	assert.Equal(t, uint32(10), link.paging.PagingSize)
	assert.Equal(t, []byte("abc"), link.paging.Cookie)
}

func TestOperationRequests(t *testing.T) {
	tests := []struct {
		name       string
		req        Request
		wantAction string
		wantParams []any
	}{
		{
			name:       "bind",
			req:        &BindRequest{DN: "CN=svc", Password: "pw"},
			wantAction: "ldap_bind",
			wantParams: []any{"CN=svc", "pw"},
		},
		{
			name:       "sasl external",
			req:        &SASLBindRequest{Mechanism: "EXTERNAL"},
			wantAction: "ldap_sasl_bind",
			wantParams: []any{"EXTERNAL"},
		},
		{
			name:       "compare",
			req:        &CompareRequest{DN: "CN=g", Attribute: "cn", Value: "g"},
			wantAction: "ldap_compare",
			wantParams: []any{"CN=g", "cn", "g"},
		},
		{
			name:       "add",
			req:        &AddRequest{DN: "CN=n", Attributes: map[string][]string{"cn": {"n"}}},
			wantAction: "ldap_add",
			wantParams: []any{"CN=n", map[string][]string{"cn": {"n"}}},
		},
		{
			name:       "delete",
			req:        &DeleteRequest{DN: "CN=n"},
			wantAction: "ldap_delete",
			wantParams: []any{"CN=n"},
		},
		{
			name:       "modify replace",
			req:        &ModifyRequest{DN: "CN=n", Attributes: map[string][]string{"description": {"x"}}},
			wantAction: "ldap_mod_replace",
			wantParams: []any{"CN=n", map[string][]string{"description": {"x"}}},
		},
		{
			name:       "modify add",
			req:        &ModifyRequest{DN: "CN=n", Mode: ModifyAdd},
			wantAction: "ldap_mod_add",
			wantParams: []any{"CN=n", map[string][]string(nil)},
		},
		{
			name:       "modify delete",
			req:        &ModifyRequest{DN: "CN=n", Mode: ModifyDelete},
			wantAction: "ldap_mod_del",
			wantParams: []any{"CN=n", map[string][]string(nil)},
		},
		{
			name:       "rename",
			req:        &RenameRequest{DN: "CN=a,DC=x", NewRDN: "CN=b", DeleteOldRDN: true},
			wantAction: "ldap_rename",
			wantParams: []any{"CN=a,DC=x", "CN=b", "", true},
		},
		{
			name:       "password modify",
			req:        &PasswordModifyRequest{User: "CN=u", NewPassword: "new"},
			wantAction: "ldap_passwd",
			wantParams: []any{"CN=u", "", "new"},
		},
		{
			name:       "whoami",
			req:        &WhoAmIRequest{},
			wantAction: "ldap_exop_whoami",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantAction, tt.req.Action())
			assert.Equal(t, tt.wantParams, tt.req.ActionParameters())
			assert.True(t, IsSupportedOperation(tt.req.Action()))
			assert.NoError(t, tt.req.PrepareForExecution(nil))
		})
	}
}
