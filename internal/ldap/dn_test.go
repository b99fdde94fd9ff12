package ldap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeDNValue(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty string", input: "", expected: ""},
		{name: "no escaping needed", input: "John Doe", expected: "John Doe"},
		{name: "comma", input: "Doe, John", expected: `Doe\, John`},
		{name: "plus sign", input: "John+Doe", expected: `John\+Doe`},
		{name: "double quote", input: `John "JD" Doe`, expected: `John \"JD\" Doe`},
		{name: "backslash", input: `DOMAIN\jdoe`, expected: `DOMAIN\\jdoe`},
		{name: "angle brackets", input: "John<>Doe", expected: `John\<\>Doe`},
		{name: "semicolon", input: "John;Doe", expected: `John\;Doe`},
		{name: "leading space", input: " John", expected: `\ John`},
		{name: "trailing space", input: "John ", expected: `John\ `},
		{name: "leading hash", input: "#123", expected: `\#123`},
		{name: "inner hash", input: "Team #1", expected: "Team #1"},
		{name: "null byte", input: "a\x00b", expected: `a\00b`},
		{name: "unicode preserved", input: "Jürgen Müller", expected: "Jürgen Müller"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, EscapeDNValue(tc.input))
		})
	}
}

func TestParseDN(t *testing.T) {
	testCases := []struct {
		name    string
		dn      string
		rdns    int
		wantErr bool
	}{
		{name: "simple", dn: "CN=Test,DC=example,DC=com", rdns: 3},
		{name: "surrounding whitespace", dn: "  cn=test,dc=example  ", rdns: 2},
		{name: "escaped comma", dn: `CN=Doe\, John,OU=Users,DC=example,DC=com`, rdns: 4},
		{name: "multi-valued rdn", dn: "CN=John+UID=jdoe,DC=example", rdns: 2},
		{name: "empty value", dn: "CN=,DC=example,DC=com", rdns: 3},
		{name: "empty", dn: "", wantErr: true},
		{name: "blank", dn: "   ", wantErr: true},
		{name: "no attribute type", dn: "invalid-dn", wantErr: true},
		{name: "missing type", dn: "=Test,DC=example,DC=com", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := ParseDN(tc.dn)
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Len(t, parsed.RDNs, tc.rdns)
		})
	}
}

func TestCanonicalDN(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{
			name:     "lowercase types",
			input:    "cn=john,ou=users,dc=example,dc=com",
			expected: "CN=john,OU=users,DC=example,DC=com",
		},
		{
			name:     "mixed case types keep value case",
			input:    "Cn=John Doe,oU=Users,Dc=Example,dC=com",
			expected: "CN=John Doe,OU=Users,DC=Example,DC=com",
		},
		{
			name:     "already canonical",
			input:    "CN=Test,DC=example,DC=com",
			expected: "CN=Test,DC=example,DC=com",
		},
		{
			name:     "spaces around separators removed",
			input:    "cn=test , dc=example",
			expected: "CN=test,DC=example",
		},
		{
			name:     "escaped characters survive",
			input:    `cn=Doe\, John,ou=users,dc=example,dc=com`,
			expected: `CN=Doe\, John,OU=users,DC=example,DC=com`,
		},
		{
			name:     "multi-valued rdn",
			input:    "cn=john+uid=jdoe,dc=example",
			expected: "CN=john+UID=jdoe,DC=example",
		},
		{name: "empty", input: "", expected: ""},
		{name: "whitespace only", input: "   ", expected: ""},
		{name: "invalid", input: "not a dn", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CanonicalDN(tc.input)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestParentDN(t *testing.T) {
	testCases := []struct {
		name     string
		dn       string
		expected string
		wantErr  bool
	}{
		{name: "user", dn: "cn=John,ou=Users,dc=example,dc=com", expected: "OU=Users,DC=example,DC=com"},
		{name: "two levels", dn: "OU=Users,DC=com", expected: "DC=com"},
		{name: "escaped parent", dn: `CN=x,OU=R\+D,DC=com`, expected: `OU=R\+D,DC=com`},
		{name: "root", dn: "DC=com", wantErr: true},
		{name: "empty", dn: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParentDN(tc.dn)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestSplitDN(t *testing.T) {
	rdn, parent, err := SplitDN("cn=john+uid=jdoe,ou=people,dc=example")
	require.NoError(t, err)
	assert.Equal(t, "CN=john+UID=jdoe", rdn)
	assert.Equal(t, "OU=people,DC=example", parent)

	rdn, parent, err = SplitDN("dc=com")
	require.NoError(t, err)
	assert.Equal(t, "DC=com", rdn)
	assert.Empty(t, parent)

	_, _, err = SplitDN("")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestEqualDN(t *testing.T) {
	testCases := []struct {
		name string
		a, b string
		want bool
	}{
		{name: "identical", a: "CN=a,DC=com", b: "CN=a,DC=com", want: true},
		{name: "type case", a: "cn=a,dc=com", b: "CN=a,DC=com", want: true},
		{name: "value case", a: "CN=Alice,DC=com", b: "CN=alice,DC=COM", want: true},
		{name: "spacing", a: "CN=a, DC=com", b: "CN=a,DC=com", want: true},
		{name: "different entry", a: "CN=a,DC=com", b: "CN=b,DC=com", want: false},
		{name: "unparseable falls back to fold", a: "garbage", b: "GARBAGE", want: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EqualDN(tc.a, tc.b))
		})
	}
}

func TestIsDescendantDN(t *testing.T) {
	testCases := []struct {
		name          string
		child, parent string
		want          bool
		wantErr       bool
	}{
		{name: "direct child", child: "CN=a,OU=Users,DC=com", parent: "OU=Users,DC=com", want: true},
		{name: "grandchild", child: "CN=a,OU=Users,DC=com", parent: "dc=com", want: true},
		{name: "same entry", child: "OU=Users,DC=com", parent: "OU=Users,DC=com", want: false},
		{name: "sibling", child: "CN=a,OU=Groups,DC=com", parent: "OU=Users,DC=com", want: false},
		{name: "parent longer", child: "DC=com", parent: "OU=Users,DC=com", want: false},
		{name: "invalid child", child: "bad", parent: "DC=com", wantErr: true},
		{name: "invalid parent", child: "CN=a,DC=com", parent: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := IsDescendantDN(tc.child, tc.parent)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
