package ldap

import (
	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"

	"github.com/isometry/terraform-provider-ldap/internal/ldap/ldaptest"
)

type MockTransport = ldaptest.MockTransport

var _ Transport = (*MockTransport)(nil)

// newTestLink returns a Link over a fresh MockTransport.
func newTestLink() (*Link, *MockTransport) {
	transport := &MockTransport{}
	link, err := NewLink(transport)
	if err != nil {
		panic(err)
	}
	link.endpoint = Endpoint{Host: "dc1.example.com", Port: 389, Source: "config"}
	return link, transport
}

func ldapFailure(code uint16, msg string) error {
	return ldaptest.Failure(code, msg)
}

func ldapReferral(application ber.Tag, uris ...string) error {
	return ldaptest.ResultFailure(application, ldap.LDAPResultReferral, "", "Referral", uris...)
}

func entry(dn string, attrs ...*ldap.EntryAttribute) *ldap.Entry {
	return ldaptest.Entry(dn, attrs...)
}

func attribute(name string, values ...string) *ldap.EntryAttribute {
	return ldaptest.Attribute(name, values...)
}
