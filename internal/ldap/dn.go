package ldap

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// EscapeDNValue escapes an attribute value for use inside a DN (RFC 4514).
//
//	"Doe, John" -> "Doe\, John"
//	" John "    -> "\ John\ "
//	"#123"      -> "\#123"
func EscapeDNValue(value string) string {
	if value == "" {
		return value
	}

	var b strings.Builder
	b.Grow(len(value) + 8)

	last := len(value) - 1
	for i, r := range value {
		switch {
		case r == ',' || r == '+' || r == '"' || r == '\\' || r == '<' || r == '>' || r == ';':
			b.WriteByte('\\')
		case r == '#' && i == 0:
			b.WriteByte('\\')
		case r == ' ' && (i == 0 || i == last):
			b.WriteByte('\\')
		case r == 0:
			b.WriteString(`\00`)
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}

// ParseDN parses dn, rejecting the empty string.
func ParseDN(dn string) (*ldap.DN, error) {
	dn = strings.TrimSpace(dn)
	if dn == "" {
		return nil, fmt.Errorf("%w: DN cannot be empty", ErrInvalidArgument)
	}

	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid DN syntax: %w", ErrInvalidArgument, err)
	}
	return parsed, nil
}

// CanonicalDN rewrites dn with upper-case attribute types and re-escaped
// values, the form Active Directory returns:
//
//	"cn=john,ou=users,dc=example,dc=com" -> "CN=john,OU=users,DC=example,DC=com"
//
// Value case is preserved. An empty dn is returned unchanged.
func CanonicalDN(dn string) (string, error) {
	if strings.TrimSpace(dn) == "" {
		return "", nil
	}

	parsed, err := ParseDN(dn)
	if err != nil {
		return "", err
	}
	return formatDN(parsed.RDNs), nil
}

func formatDN(rdns []*ldap.RelativeDN) string {
	parts := make([]string, len(rdns))
	for i, rdn := range rdns {
		attrs := make([]string, len(rdn.Attributes))
		for j, attr := range rdn.Attributes {
			attrs[j] = strings.ToUpper(attr.Type) + "=" + EscapeDNValue(attr.Value)
		}
		parts[i] = strings.Join(attrs, "+")
	}
	return strings.Join(parts, ",")
}

// ParentDN returns dn without its leading RDN, in canonical form.
func ParentDN(dn string) (string, error) {
	parsed, err := ParseDN(dn)
	if err != nil {
		return "", err
	}
	if len(parsed.RDNs) <= 1 {
		return "", fmt.Errorf("%w: %s has no parent", ErrInvalidArgument, dn)
	}
	return formatDN(parsed.RDNs[1:]), nil
}

// SplitDN returns the leading RDN of dn and its parent, both in canonical
// form. The parent is "" for a single-RDN dn.
func SplitDN(dn string) (rdn, parent string, err error) {
	parsed, err := ParseDN(dn)
	if err != nil {
		return "", "", err
	}
	return formatDN(parsed.RDNs[:1]), formatDN(parsed.RDNs[1:]), nil
}

// EqualDN reports whether a and b name the same entry, ignoring case.
// Unparseable input falls back to a case-insensitive string comparison.
func EqualDN(a, b string) bool {
	pa, errA := ldap.ParseDN(a)
	pb, errB := ldap.ParseDN(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return pa.EqualFold(pb)
}

// IsDescendantDN reports whether child lies strictly below parent.
func IsDescendantDN(child, parent string) (bool, error) {
	pc, err := ParseDN(child)
	if err != nil {
		return false, err
	}
	pp, err := ParseDN(parent)
	if err != nil {
		return false, err
	}
	return pp.AncestorOfFold(pc), nil
}
