package provider

import (
	"context"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/tfsdk"
	"github.com/hashicorp/terraform-plugin-go/tftypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/isometry/terraform-provider-ldap/internal/ldap/ldaptest"
)

type searchEntry struct {
	DN         string              `tfsdk:"dn"`
	Attributes map[string][]string `tfsdk:"attributes"`
}

func searchState(t *testing.T, resp *datasource.ReadResponse) (SearchDataSourceModel, []searchEntry) {
	t.Helper()
	ctx := context.Background()

	var data SearchDataSourceModel
	require.False(t, resp.Diagnostics.HasError(), "%v", resp.Diagnostics)
	require.False(t, resp.State.Get(ctx, &data).HasError())

	var entries []searchEntry
	require.False(t, data.Entries.ElementsAs(ctx, &entries, false).HasError())
	return data, entries
}

func TestSearchDataSource_Read(t *testing.T) {
	pd, transport := newTestProviderData(t)

	transport.On("Search", mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.BaseDN == "ou=people,dc=example,dc=com" &&
			req.Filter == "(objectClass=person)" &&
			req.Scope == ldap.ScopeSingleLevel &&
			len(req.Controls) == 0
	})).Return(ldaptest.Result(
		ldaptest.Entry("cn=alice,ou=people,dc=example,dc=com",
			ldaptest.Attribute("cn", "alice"),
			ldaptest.Attribute("mail", "alice@example.com")),
		ldaptest.Entry("cn=bob,ou=people,dc=example,dc=com",
			ldaptest.Attribute("cn", "bob"),
			ldaptest.Attribute("member;range=0-1", "cn=a", "cn=b"),
			ldaptest.Attribute("member;range=2-*", "cn=c")),
	), nil).Once()

	resp := readDataSource(t, NewSearchDataSource(), pd, map[string]tftypes.Value{
		"base":   tftypes.NewValue(tftypes.String, "ou=people,dc=example,dc=com"),
		"filter": tftypes.NewValue(tftypes.String, "(objectClass=person)"),
		"scope":  tftypes.NewValue(tftypes.String, "one"),
	})

	data, entries := searchState(t, resp)
	require.Len(t, entries, 2)
	assert.Equal(t, "cn=alice,ou=people,dc=example,dc=com", entries[0].DN)
	assert.Equal(t, []string{"alice@example.com"}, entries[0].Attributes["mail"])
	assert.Equal(t, []string{"cn=a", "cn=b", "cn=c"}, entries[1].Attributes["member"])

	assert.Equal(t, int64(2), data.EntryCount.ValueInt64())
	assert.Equal(t, int64(1), data.Pages.ValueInt64())
	assert.Equal(t, int64(0), data.Code.ValueInt64())
	assert.Equal(t, "Success", data.Message.ValueString())
	assert.Equal(t, "one", data.Scope.ValueString())
	assert.Equal(t, "one|ou=people,dc=example,dc=com|(objectClass=person)|*", data.ID.ValueString())
	transport.AssertExpectations(t)
}

func TestSearchDataSource_ReadDefaults(t *testing.T) {
	pd, transport := newTestProviderData(t)

	transport.On("Search", mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.BaseDN == "dc=example,dc=com" &&
			req.Filter == "(objectClass=*)" &&
			req.Scope == ldap.ScopeWholeSubtree
	})).Return(ldaptest.Result(), nil).Once()

	resp := readDataSource(t, NewSearchDataSource(), pd, nil)

	data, entries := searchState(t, resp)
	assert.Empty(t, entries)
	assert.Equal(t, "dc=example,dc=com", data.Base.ValueString())
	assert.Equal(t, "(objectClass=*)", data.Filter.ValueString())
	assert.Equal(t, "sub", data.Scope.ValueString())
	assert.Empty(t, data.Referrals.Elements())
	transport.AssertExpectations(t)
}

func TestSearchDataSource_ReadPaged(t *testing.T) {
	pd, transport := newTestProviderData(t)

	pages := []struct {
		cookie string
		next   string
		dn     string
	}{
		{"", "p1", "cn=1,dc=example,dc=com"},
		{"p1", "p2", "cn=2,dc=example,dc=com"},
		{"p2", "", "cn=3,dc=example,dc=com"},
	}
	for _, page := range pages {
		transport.On("Search", mock.MatchedBy(func(req *ldap.SearchRequest) bool {
			if len(req.Controls) != 1 {
				return false
			}
			decoded, err := ldap.DecodeControl(req.Controls[0].Encode())
			if err != nil {
				return false
			}
			ctrl, ok := decoded.(*ldap.ControlPaging)
			return ok && ctrl.PagingSize == 1 && string(ctrl.Cookie) == page.cookie && req.SizeLimit == 0
		})).Return(&ldap.SearchResult{
			Entries:  []*ldap.Entry{ldaptest.Entry(page.dn, ldaptest.Attribute("cn", "x"))},
			Controls: []ldap.Control{&ldap.ControlPaging{Cookie: []byte(page.next)}},
		}, nil).Once()
	}

	resp := readDataSource(t, NewSearchDataSource(), pd, map[string]tftypes.Value{
		"paged":     tftypes.NewValue(tftypes.Bool, true),
		"page_size": tftypes.NewValue(tftypes.Number, 1),
	})

	data, entries := searchState(t, resp)
	require.Len(t, entries, 3)
	assert.Equal(t, "cn=3,dc=example,dc=com", entries[2].DN)
	assert.Equal(t, int64(3), data.Pages.ValueInt64())
	assert.Equal(t, int64(3), data.EntryCount.ValueInt64())
	transport.AssertExpectations(t)
}

func TestSearchDataSource_ReadSizeLimitExceeded(t *testing.T) {
	pd, transport := newTestProviderData(t)

	transport.On("Search", mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.SizeLimit == 1
	})).Return(ldaptest.Result(
		ldaptest.Entry("cn=1,dc=example,dc=com", ldaptest.Attribute("cn", "1")),
	), ldaptest.Failure(ldap.LDAPResultSizeLimitExceeded, "size limit exceeded")).Once()

	resp := readDataSource(t, NewSearchDataSource(), pd, map[string]tftypes.Value{
		"size_limit": tftypes.NewValue(tftypes.Number, 1),
	})

	data, entries := searchState(t, resp)
	assert.Len(t, entries, 1)
	assert.Equal(t, int64(ldap.LDAPResultSizeLimitExceeded), data.Code.ValueInt64())
	assert.Equal(t, "size limit exceeded", data.DiagnosticMessage.ValueString())
}

func TestSearchDataSource_ReadFailure(t *testing.T) {
	pd, transport := newTestProviderData(t)

	transport.On("Search", mock.Anything).
		Return((*ldap.SearchResult)(nil), ldaptest.Failure(ldap.LDAPResultNoSuchObject, "no such object")).Once()

	resp := readDataSource(t, NewSearchDataSource(), pd, map[string]tftypes.Value{
		"base": tftypes.NewValue(tftypes.String, "ou=missing,dc=example,dc=com"),
	})

	require.True(t, resp.Diagnostics.HasError())
	assert.Equal(t, "Search Failed", resp.Diagnostics.Errors()[0].Summary())
	assert.Contains(t, resp.Diagnostics.Errors()[0].Detail(), "No Such Object")
}

func TestSearchDataSource_ReadNotConfigured(t *testing.T) {
	resp := readDataSource(t, NewSearchDataSource(), nil, nil)

	require.True(t, resp.Diagnostics.HasError())
	assert.Equal(t, "Provider Not Configured", resp.Diagnostics.Errors()[0].Summary())
}

func TestSearchDataSource_ValidateConfig(t *testing.T) {
	ctx := context.Background()
	ds := NewSearchDataSource().(*SearchDataSource)

	schemaResp := &datasource.SchemaResponse{}
	ds.Schema(ctx, datasource.SchemaRequest{}, schemaResp)
	typ := schemaResp.Schema.Type().TerraformType(ctx)

	testCases := []struct {
		name    string
		config  map[string]tftypes.Value
		wantErr bool
	}{
		{
			name:   "size limit alone",
			config: map[string]tftypes.Value{"size_limit": tftypes.NewValue(tftypes.Number, 10)},
		},
		{
			name:   "paged alone",
			config: map[string]tftypes.Value{"paged": tftypes.NewValue(tftypes.Bool, true)},
		},
		{
			name: "paged with zero size limit",
			config: map[string]tftypes.Value{
				"paged":      tftypes.NewValue(tftypes.Bool, true),
				"size_limit": tftypes.NewValue(tftypes.Number, 0),
			},
		},
		{
			name: "paged with size limit",
			config: map[string]tftypes.Value{
				"paged":      tftypes.NewValue(tftypes.Bool, true),
				"size_limit": tftypes.NewValue(tftypes.Number, 10),
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := &datasource.ValidateConfigResponse{}
			ds.ValidateConfig(ctx, datasource.ValidateConfigRequest{
				Config: tfsdk.Config{Schema: schemaResp.Schema, Raw: objectValue(t, typ, tc.config)},
			}, resp)
			assert.Equal(t, tc.wantErr, resp.Diagnostics.HasError(), "%v", resp.Diagnostics)
		})
	}
}
