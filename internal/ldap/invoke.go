package ldap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// OperationPrefix marks the canonical operation family. Names passed to
// Invoke without it are prefixed automatically.
const OperationPrefix = "ldap_"

type operation func(ctx context.Context, l *Link, a arguments) (Outcome, error)

// operations is the allow-list for Link.Invoke.
var operations = map[string]operation{
	"ldap_search":               lookupOperation(ScopeWholeSubtree),
	"ldap_read":                 lookupOperation(ScopeBaseObject),
	"ldap_list":                 lookupOperation(ScopeSingleLevel),
	"ldap_bind":                 bindOperation,
	"ldap_sasl_bind":            saslBindOperation,
	"ldap_compare":              compareOperation,
	"ldap_add":                  addOperation,
	"ldap_delete":               deleteOperation,
	"ldap_modify":               modifyOperation(ldap.ReplaceAttribute),
	"ldap_mod_replace":          modifyOperation(ldap.ReplaceAttribute),
	"ldap_mod_add":              modifyOperation(ldap.AddAttribute),
	"ldap_mod_del":              modifyOperation(ldap.DeleteAttribute),
	"ldap_rename":               renameOperation,
	"ldap_passwd":               passwdOperation,
	"ldap_exop_whoami":          whoAmIOperation,
	"ldap_start_tls":            startTLSOperation,
	"ldap_unbind":               unbindOperation,
	"ldap_set_option":           setOptionOperation,
	"ldap_get_option":           getOptionOperation,
	"ldap_errno":                errnoOperation,
	"ldap_error":                errorOperation,
	"ldap_control_paged_result": pagedResultOperation,
}

// CanonicalOperationName prefixes name with OperationPrefix if needed.
func CanonicalOperationName(name string) string {
	if strings.HasPrefix(name, OperationPrefix) {
		return name
	}
	return OperationPrefix + name
}

// SupportedOperations returns the sorted allow-list.
func SupportedOperations() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsSupportedOperation reports whether name, after canonicalization, is on
// the allow-list.
func IsSupportedOperation(name string) bool {
	_, ok := operations[CanonicalOperationName(name)]
	return ok
}

// Invoke runs the named operation with positional arguments. Names outside
// the allow-list fail with ErrUnsupportedOperation and malformed arguments
// with ErrInvalidArgument. Protocol failures are not returned: they are
// recorded and available through LastResult.
func (l *Link) Invoke(ctx context.Context, name string, args ...any) (Outcome, error) {
	canonical := CanonicalOperationName(name)

	op, ok := operations[canonical]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnsupportedOperation, name)
	}

	out, err := op(ctx, l, arguments{operation: canonical, values: args})

	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) {
		err = nil
	}
	return out, err
}

func lookupAction(scope SearchScope) string {
	switch scope {
	case ScopeBaseObject:
		return "ldap_read"
	case ScopeSingleLevel:
		return "ldap_list"
	default:
		return "ldap_search"
	}
}

func lookupOperation(scope SearchScope) operation {
	return func(ctx context.Context, l *Link, a arguments) (Outcome, error) {
		if err := a.count(1, 7); err != nil {
			return Outcome{}, err
		}

		p := LookupParams{Scope: scope}
		var err error
		if p.BaseDN, err = arg[string](a, 0); err != nil {
			return Outcome{}, err
		}
		if p.Filter, err = optionalArg(a, 1, DefaultFilter); err != nil {
			return Outcome{}, err
		}
		if p.Attributes, err = optionalArg(a, 2, []string{"*"}); err != nil {
			return Outcome{}, err
		}
		if p.AttributesOnly, err = optionalArg(a, 3, false); err != nil {
			return Outcome{}, err
		}
		if p.SizeLimit, err = optionalArg(a, 4, 0); err != nil {
			return Outcome{}, err
		}
		if p.TimeLimit, err = optionalArg(a, 5, 0); err != nil {
			return Outcome{}, err
		}
		if p.Deref, err = optionalArg(a, 6, NeverDerefAliases); err != nil {
			return Outcome{}, err
		}
		p.SizeLimitSet, p.TimeLimitSet, p.DerefSet = a.present(4), a.present(5), a.present(6)

		result, err := l.Search(ctx, p)
		return Outcome{Lookup: result}, err
	}
}

func bindOperation(ctx context.Context, l *Link, a arguments) (Outcome, error) {
	if err := a.count(0, 2); err != nil {
		return Outcome{}, err
	}
	dn, err := optionalArg(a, 0, "")
	if err != nil {
		return Outcome{}, err
	}
	password, err := optionalArg(a, 1, "")
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{}, l.Bind(ctx, dn, password)
}

func saslBindOperation(ctx context.Context, l *Link, a arguments) (Outcome, error) {
	if err := a.count(1, 3); err != nil {
		return Outcome{}, err
	}
	mechanism, err := arg[string](a, 0)
	if err != nil {
		return Outcome{}, err
	}

	switch strings.ToUpper(mechanism) {
	case "EXTERNAL":
		return Outcome{}, l.ExternalBind(ctx)
	case "GSSAPI":
		if err := a.count(3, 3); err != nil {
			return Outcome{}, err
		}
		client, err := arg[ldap.GSSAPIClient](a, 1)
		if err != nil {
			return Outcome{}, err
		}
		spn, err := arg[string](a, 2)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{}, l.GSSAPIBind(ctx, client, spn)
	default:
		return Outcome{}, fmt.Errorf("%w: %s: unsupported SASL mechanism %q", ErrInvalidArgument, a.operation, mechanism)
	}
}

func compareOperation(ctx context.Context, l *Link, a arguments) (Outcome, error) {
	if err := a.count(3, 3); err != nil {
		return Outcome{}, err
	}
	dn, err := arg[string](a, 0)
	if err != nil {
		return Outcome{}, err
	}
	attribute, err := arg[string](a, 1)
	if err != nil {
		return Outcome{}, err
	}
	value, err := arg[string](a, 2)
	if err != nil {
		return Outcome{}, err
	}
	matched, err := l.Compare(ctx, dn, attribute, value)
	return Outcome{Value: matched}, err
}

func addOperation(ctx context.Context, l *Link, a arguments) (Outcome, error) {
	if err := a.count(2, 2); err != nil {
		return Outcome{}, err
	}
	dn, err := arg[string](a, 0)
	if err != nil {
		return Outcome{}, err
	}
	attrs, err := arg[map[string][]string](a, 1)
	if err != nil {
		return Outcome{}, err
	}

	req := ldap.NewAddRequest(dn, nil)
	for _, name := range sortedKeys(attrs) {
		req.Attribute(name, attrs[name])
	}
	return Outcome{}, l.Add(ctx, req)
}

func deleteOperation(ctx context.Context, l *Link, a arguments) (Outcome, error) {
	if err := a.count(1, 1); err != nil {
		return Outcome{}, err
	}
	dn, err := arg[string](a, 0)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{}, l.Delete(ctx, dn)
}

func modifyOperation(change uint) operation {
	return func(ctx context.Context, l *Link, a arguments) (Outcome, error) {
		if err := a.count(2, 2); err != nil {
			return Outcome{}, err
		}
		dn, err := arg[string](a, 0)
		if err != nil {
			return Outcome{}, err
		}
		attrs, err := arg[map[string][]string](a, 1)
		if err != nil {
			return Outcome{}, err
		}

		req := ldap.NewModifyRequest(dn, nil)
		for _, name := range sortedKeys(attrs) {
			switch change {
			case ldap.AddAttribute:
				req.Add(name, attrs[name])
			case ldap.DeleteAttribute:
				req.Delete(name, attrs[name])
			default:
				req.Replace(name, attrs[name])
			}
		}
		return Outcome{}, l.Modify(ctx, req)
	}
}

func renameOperation(ctx context.Context, l *Link, a arguments) (Outcome, error) {
	if err := a.count(2, 4); err != nil {
		return Outcome{}, err
	}
	dn, err := arg[string](a, 0)
	if err != nil {
		return Outcome{}, err
	}
	newRDN, err := arg[string](a, 1)
	if err != nil {
		return Outcome{}, err
	}
	newParent, err := optionalArg(a, 2, "")
	if err != nil {
		return Outcome{}, err
	}
	deleteOld, err := optionalArg(a, 3, true)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{}, l.Rename(ctx, dn, newRDN, newParent, deleteOld)
}

func passwdOperation(ctx context.Context, l *Link, a arguments) (Outcome, error) {
	if err := a.count(0, 3); err != nil {
		return Outcome{}, err
	}
	user, err := optionalArg(a, 0, "")
	if err != nil {
		return Outcome{}, err
	}
	oldPassword, err := optionalArg(a, 1, "")
	if err != nil {
		return Outcome{}, err
	}
	newPassword, err := optionalArg(a, 2, "")
	if err != nil {
		return Outcome{}, err
	}
	generated, err := l.PasswordModify(ctx, user, oldPassword, newPassword)
	return Outcome{Value: generated}, err
}

func whoAmIOperation(ctx context.Context, l *Link, a arguments) (Outcome, error) {
	if err := a.count(0, 0); err != nil {
		return Outcome{}, err
	}
	authzID, err := l.WhoAmI(ctx)
	return Outcome{Value: authzID}, err
}

func startTLSOperation(ctx context.Context, l *Link, a arguments) (Outcome, error) {
	if err := a.count(0, 1); err != nil {
		return Outcome{}, err
	}
	cfg, err := optionalArg[*tls.Config](a, 0, nil)
	if err != nil {
		return Outcome{}, err
	}
	if cfg == nil {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: l.Endpoint().Host}
	}
	return Outcome{}, l.StartTLS(ctx, cfg)
}

func unbindOperation(ctx context.Context, l *Link, a arguments) (Outcome, error) {
	if err := a.count(0, 0); err != nil {
		return Outcome{}, err
	}
	return Outcome{}, l.Unbind(ctx)
}

func setOptionOperation(_ context.Context, l *Link, a arguments) (Outcome, error) {
	if err := a.count(2, 2); err != nil {
		return Outcome{}, err
	}
	opt, err := arg[Option](a, 0)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Value: true}, l.SetOption(opt, a.values[1])
}

func getOptionOperation(_ context.Context, l *Link, a arguments) (Outcome, error) {
	if err := a.count(1, 1); err != nil {
		return Outcome{}, err
	}
	opt, err := arg[Option](a, 0)
	if err != nil {
		return Outcome{}, err
	}
	value, err := l.GetOption(opt)
	return Outcome{Value: value}, err
}

func errnoOperation(_ context.Context, l *Link, a arguments) (Outcome, error) {
	if err := a.count(0, 0); err != nil {
		return Outcome{}, err
	}
	return Outcome{Value: l.LastResult().Code}, nil
}

func errorOperation(_ context.Context, l *Link, a arguments) (Outcome, error) {
	if err := a.count(0, 0); err != nil {
		return Outcome{}, err
	}
	return Outcome{Value: l.LastResult().Code.String()}, nil
}

func pagedResultOperation(_ context.Context, l *Link, a arguments) (Outcome, error) {
	if err := a.count(1, 3); err != nil {
		return Outcome{}, err
	}
	pageSize, err := arg[int](a, 0)
	if err != nil {
		return Outcome{}, err
	}
	critical, err := optionalArg(a, 1, false)
	if err != nil {
		return Outcome{}, err
	}
	cookie, err := optionalArg[[]byte](a, 2, nil)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Value: true}, l.SetPagingControl(pageSize, critical, cookie)
}

type arguments struct {
	operation string
	values    []any
}

func (a arguments) count(minimum, maximum int) error {
	if n := len(a.values); n < minimum || n > maximum {
		return fmt.Errorf("%w: %s takes %d to %d arguments, got %d", ErrInvalidArgument, a.operation, minimum, maximum, n)
	}
	return nil
}

func arg[T any](a arguments, i int) (T, error) {
	var zero T
	if i >= len(a.values) {
		return zero, fmt.Errorf("%w: %s: missing argument %d", ErrInvalidArgument, a.operation, i)
	}
	v, ok := a.values[i].(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s: argument %d must be %v, got %T", ErrInvalidArgument, a.operation, i, reflect.TypeFor[T](), a.values[i])
	}
	return v, nil
}

// present reports whether argument i was passed and is not nil.
func (a arguments) present(i int) bool {
	return i < len(a.values) && a.values[i] != nil
}

// optionalArg returns def when the argument is absent or nil.
func optionalArg[T any](a arguments, i int, def T) (T, error) {
	if !a.present(i) {
		return def, nil
	}
	return arg[T](a, i)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
