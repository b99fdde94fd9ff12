package ldap

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/go-objectsid"
	"github.com/google/uuid"
)

// Object is one normalized directory entry.
type Object struct {
	DN         string
	Attributes map[string][]string
	Raw        map[string][][]byte
}

// Values returns the values of name, matched case-insensitively.
func (o Object) Values(name string) []string {
	if v, ok := o.Attributes[name]; ok {
		return v
	}
	for k, v := range o.Attributes {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}

// First returns the first value of name, or "".
func (o Object) First(name string) string {
	if v := o.Values(name); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (o Object) rawValue(name string) []byte {
	for k, v := range o.Raw {
		if strings.EqualFold(k, name) && len(v) > 0 {
			return v[0]
		}
	}
	return nil
}

// SID decodes the binary objectSid attribute into S-1-5-... form.
func (o Object) SID() (string, error) {
	raw := o.rawValue("objectSid")
	if len(raw) < 8 {
		return "", fmt.Errorf("objectSid not present or truncated on %s", o.DN)
	}
	return objectsid.Decode(raw).String(), nil
}

// GUID decodes the binary objectGUID attribute. Active Directory stores the
// first three fields little-endian.
func (o Object) GUID() (uuid.UUID, error) {
	raw := o.rawValue("objectGUID")
	if len(raw) != 16 {
		return uuid.Nil, fmt.Errorf("objectGUID not present or not 16 bytes on %s", o.DN)
	}

	b := make([]byte, 16)
	copy(b, raw)
	b[0], b[1], b[2], b[3] = b[3], b[2], b[1], b[0]
	b[4], b[5] = b[5], b[4]
	b[6], b[7] = b[7], b[6]

	return uuid.FromBytes(b)
}
