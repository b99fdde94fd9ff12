package ldap

import (
	"maps"

	"github.com/go-ldap/ldap/v3"
)

// BindRequest authenticates the link with a simple bind. An empty password
// binds unauthenticated.
type BindRequest struct {
	DN       string
	Password string
}

func (r *BindRequest) Action() string                  { return "ldap_bind" }
func (r *BindRequest) ActionParameters() []any         { return []any{r.DN, r.Password} }
func (r *BindRequest) PrepareForExecution(*Link) error { return nil }

// SASLBindRequest authenticates with SASL EXTERNAL or GSSAPI. Client and
// ServicePrincipal are used by GSSAPI only.
type SASLBindRequest struct {
	Mechanism        string
	Client           ldap.GSSAPIClient
	ServicePrincipal string
}

func (r *SASLBindRequest) Action() string { return "ldap_sasl_bind" }
func (r *SASLBindRequest) ActionParameters() []any {
	if r.Client == nil {
		return []any{r.Mechanism}
	}
	return []any{r.Mechanism, r.Client, r.ServicePrincipal}
}
func (r *SASLBindRequest) PrepareForExecution(*Link) error { return nil }

// CompareRequest asserts that an entry holds an attribute value. The verdict
// is reported through the response code.
type CompareRequest struct {
	DN        string
	Attribute string
	Value     string
}

func (r *CompareRequest) Action() string { return "ldap_compare" }
func (r *CompareRequest) ActionParameters() []any {
	return []any{r.DN, r.Attribute, r.Value}
}
func (r *CompareRequest) PrepareForExecution(*Link) error { return nil }

// AddRequest creates an entry.
type AddRequest struct {
	DN         string
	Attributes map[string][]string
}

func (r *AddRequest) Action() string { return "ldap_add" }
func (r *AddRequest) ActionParameters() []any {
	return []any{r.DN, maps.Clone(r.Attributes)}
}
func (r *AddRequest) PrepareForExecution(*Link) error { return nil }

// DeleteRequest removes an entry.
type DeleteRequest struct {
	DN string
}

func (r *DeleteRequest) Action() string                  { return "ldap_delete" }
func (r *DeleteRequest) ActionParameters() []any         { return []any{r.DN} }
func (r *DeleteRequest) PrepareForExecution(*Link) error { return nil }

// ModifyMode selects how a ModifyRequest changes attribute values.
type ModifyMode int

const (
	ModifyReplace ModifyMode = iota
	ModifyAdd
	ModifyDelete
)

// ModifyRequest changes attribute values on an entry.
type ModifyRequest struct {
	DN         string
	Mode       ModifyMode
	Attributes map[string][]string
}

func (r *ModifyRequest) Action() string {
	switch r.Mode {
	case ModifyAdd:
		return "ldap_mod_add"
	case ModifyDelete:
		return "ldap_mod_del"
	default:
		return "ldap_mod_replace"
	}
}

func (r *ModifyRequest) ActionParameters() []any {
	return []any{r.DN, maps.Clone(r.Attributes)}
}
func (r *ModifyRequest) PrepareForExecution(*Link) error { return nil }

// RenameRequest changes an entry's RDN and optionally its parent.
type RenameRequest struct {
	DN           string
	NewRDN       string
	NewParent    string
	DeleteOldRDN bool
}

func (r *RenameRequest) Action() string { return "ldap_rename" }
func (r *RenameRequest) ActionParameters() []any {
	return []any{r.DN, r.NewRDN, r.NewParent, r.DeleteOldRDN}
}
func (r *RenameRequest) PrepareForExecution(*Link) error { return nil }

// PasswordModifyRequest runs the RFC 3062 password modify extended
// operation. An empty NewPassword asks the server to generate one, which
// is returned as the Response Value.
type PasswordModifyRequest struct {
	User        string
	OldPassword string
	NewPassword string
}

func (r *PasswordModifyRequest) Action() string { return "ldap_passwd" }
func (r *PasswordModifyRequest) ActionParameters() []any {
	return []any{r.User, r.OldPassword, r.NewPassword}
}
func (r *PasswordModifyRequest) PrepareForExecution(*Link) error { return nil }

// WhoAmIRequest asks the server for the bound authorization identity.
type WhoAmIRequest struct{}

func (r *WhoAmIRequest) Action() string                  { return "ldap_exop_whoami" }
func (r *WhoAmIRequest) ActionParameters() []any         { return nil }
func (r *WhoAmIRequest) PrepareForExecution(*Link) error { return nil }

var (
	_ Request = (*BindRequest)(nil)
	_ Request = (*SASLBindRequest)(nil)
	_ Request = (*CompareRequest)(nil)
	_ Request = (*AddRequest)(nil)
	_ Request = (*DeleteRequest)(nil)
	_ Request = (*ModifyRequest)(nil)
	_ Request = (*RenameRequest)(nil)
	_ Request = (*PasswordModifyRequest)(nil)
	_ Request = (*WhoAmIRequest)(nil)
)
