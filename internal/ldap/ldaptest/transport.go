// Package ldaptest provides a mock protocol handle for exercising the
// ldap package without a directory server.
package ldaptest

import (
	"crypto/tls"
	"errors"
	"time"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/mock"
)

// MockTransport is a testify mock of the protocol handle.
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	args := m.Called(req)
	result, _ := args.Get(0).(*ldap.SearchResult)
	return result, args.Error(1)
}

func (m *MockTransport) Bind(username, password string) error {
	args := m.Called(username, password)
	return args.Error(0)
}

func (m *MockTransport) UnauthenticatedBind(username string) error {
	args := m.Called(username)
	return args.Error(0)
}

func (m *MockTransport) ExternalBind() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTransport) GSSAPIBind(client ldap.GSSAPIClient, servicePrincipal, authzid string) error {
	args := m.Called(client, servicePrincipal, authzid)
	return args.Error(0)
}

func (m *MockTransport) Compare(dn, attribute, value string) (bool, error) {
	args := m.Called(dn, attribute, value)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransport) Add(req *ldap.AddRequest) error {
	args := m.Called(req)
	return args.Error(0)
}

func (m *MockTransport) Del(req *ldap.DelRequest) error {
	args := m.Called(req)
	return args.Error(0)
}

func (m *MockTransport) Modify(req *ldap.ModifyRequest) error {
	args := m.Called(req)
	return args.Error(0)
}

func (m *MockTransport) ModifyDN(req *ldap.ModifyDNRequest) error {
	args := m.Called(req)
	return args.Error(0)
}

func (m *MockTransport) PasswordModify(req *ldap.PasswordModifyRequest) (*ldap.PasswordModifyResult, error) {
	args := m.Called(req)
	result, _ := args.Get(0).(*ldap.PasswordModifyResult)
	return result, args.Error(1)
}

func (m *MockTransport) WhoAmI(controls []ldap.Control) (*ldap.WhoAmIResult, error) {
	args := m.Called(controls)
	result, _ := args.Get(0).(*ldap.WhoAmIResult)
	return result, args.Error(1)
}

func (m *MockTransport) StartTLS(cfg *tls.Config) error {
	args := m.Called(cfg)
	return args.Error(0)
}

func (m *MockTransport) SetTimeout(d time.Duration) {
	m.Called(d)
}

func (m *MockTransport) Unbind() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTransport) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Failure returns the error go-ldap reports for a result code.
func Failure(code uint16, msg string) error {
	return ldap.NewError(code, errors.New(msg))
}

// ResultFailure returns the error go-ldap derives from a response PDU of
// the given application tag, including the LDAPResult referral field. The
// PDU is encoded and decoded again so the error carries a wire-shaped
// packet.
func ResultFailure(application ber.Tag, code uint16, matchedDN, msg string, referrals ...string) error {
	message := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "LDAP Response")
	message.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, int64(1), "MessageID"))

	result := ber.Encode(ber.ClassApplication, ber.TypeConstructed, application, nil, "Result")
	result.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, int64(code), "resultCode"))
	result.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, matchedDN, "matchedDN"))
	result.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, msg, "diagnosticMessage"))
	if len(referrals) > 0 {
		field := ber.Encode(ber.ClassContext, ber.TypeConstructed, 3, nil, "referral")
		for _, uri := range referrals {
			field.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, uri, "URI"))
		}
		result.AppendChild(field)
	}
	message.AppendChild(result)

	decoded, err := ber.DecodePacketErr(message.Bytes())
	if err != nil {
		return err
	}
	return ldap.GetLDAPError(decoded)
}

// Entry builds a search result entry.
func Entry(dn string, attrs ...*ldap.EntryAttribute) *ldap.Entry {
	return &ldap.Entry{DN: dn, Attributes: attrs}
}

// Attribute builds an entry attribute with matching string and byte values.
func Attribute(name string, values ...string) *ldap.EntryAttribute {
	raw := make([][]byte, len(values))
	for i, v := range values {
		raw[i] = []byte(v)
	}
	return &ldap.EntryAttribute{Name: name, Values: values, ByteValues: raw}
}

// Result wraps entries in a search result.
func Result(entries ...*ldap.Entry) *ldap.SearchResult {
	return &ldap.SearchResult{Entries: entries}
}
