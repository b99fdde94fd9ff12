package ldap

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-ldap/ldap/v3"
)

// ConnectionConfig holds configuration for dialing and authenticating a Link.
type ConnectionConfig struct {
	// Server selection, in priority order: LDAPURLs, Host, Domain.
	LDAPURLs []string      // Direct LDAP URLs
	Host     string        // Single host name
	Port     int           `default:"389"`
	Domain   string        // Domain for SRV discovery
	BaseDN   string        // Default base DN for lookups
	Timeout  time.Duration `default:"30s"`
	PageSize int           `default:"1000"`

	// Authentication settings
	Username       string // Bind DN, UPN, or Kerberos principal
	Password       string // Password for simple or Kerberos password bind
	KerberosRealm  string // Kerberos realm for GSSAPI authentication
	KerberosKeytab string // Path to Kerberos keytab file
	KerberosConfig string `default:"/etc/krb5.conf"`
	KerberosCCache string // Path to Kerberos credential cache
	KerberosSPN    string // Service principal override
	External       bool   // Use SASL EXTERNAL (client certificate)

	// TLS settings
	TLSConfig         *tls.Config // Custom TLS configuration
	UseTLS            bool        `default:"true"`
	SkipTLSVerify     bool        // Skip certificate verification
	TLSCACertFile     string      // Path to CA certificate file
	TLSClientCertFile string      // Path to client certificate file
	TLSClientKeyFile  string      // Path to client private key file
}

// DefaultConfig returns a configuration with defaults applied.
func DefaultConfig() *ConnectionConfig {
	cfg := &ConnectionConfig{}
	if err := defaults.Set(cfg); err != nil {
		// Only reachable with malformed struct tags.
		panic(fmt.Sprintf("ldap: invalid config defaults: %v", err))
	}
	return cfg
}

// Validate checks that the configuration can be used to dial a server.
func (c *ConnectionConfig) Validate() error {
	if len(c.LDAPURLs) == 0 && c.Host == "" && c.Domain == "" {
		return errors.New("one of LDAP URLs, host, or domain must be set")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", c.Port)
	}

	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}

	if c.PageSize <= 0 {
		return errors.New("page size must be positive")
	}

	if (c.TLSClientCertFile == "") != (c.TLSClientKeyFile == "") {
		return errors.New("client certificate and key must be set together")
	}

	if c.External && c.TLSClientCertFile == "" {
		return errors.New("external authentication requires a client certificate")
	}

	return nil
}

// BuildTLSConfig returns the TLS configuration used for LDAPS and StartTLS.
func (c *ConnectionConfig) BuildTLSConfig(serverName string) (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig.Clone(), nil
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         serverName,
		InsecureSkipVerify: c.SkipTLSVerify, //nolint:gosec
	}

	if c.TLSCACertFile != "" {
		pem, err := os.ReadFile(c.TLSCACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", c.TLSCACertFile)
		}
		tlsConfig.RootCAs = pool
	}

	if c.TLSClientCertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.TLSClientCertFile, c.TLSClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// SearchScope defines LDAP search scope.
type SearchScope int

const (
	ScopeBaseObject   SearchScope = ldap.ScopeBaseObject
	ScopeSingleLevel  SearchScope = ldap.ScopeSingleLevel
	ScopeWholeSubtree SearchScope = ldap.ScopeWholeSubtree
)

func (s SearchScope) String() string {
	switch s {
	case ScopeBaseObject:
		return "base"
	case ScopeSingleLevel:
		return "one"
	case ScopeWholeSubtree:
		return "sub"
	default:
		return "unknown"
	}
}

// ParseSearchScope parses "base", "one" or "sub".
func ParseSearchScope(s string) (SearchScope, error) {
	switch s {
	case "base":
		return ScopeBaseObject, nil
	case "one":
		return ScopeSingleLevel, nil
	case "sub":
		return ScopeWholeSubtree, nil
	default:
		return 0, fmt.Errorf("%w: unknown search scope %q", ErrInvalidArgument, s)
	}
}

// DerefAliases defines alias dereferencing behavior.
type DerefAliases int

const (
	NeverDerefAliases   DerefAliases = ldap.NeverDerefAliases
	DerefInSearching    DerefAliases = ldap.DerefInSearching
	DerefFindingBaseObj DerefAliases = ldap.DerefFindingBaseObj
	DerefAlways         DerefAliases = ldap.DerefAlways
)

func (d DerefAliases) String() string {
	switch d {
	case NeverDerefAliases:
		return "never"
	case DerefInSearching:
		return "searching"
	case DerefFindingBaseObj:
		return "finding"
	case DerefAlways:
		return "always"
	default:
		return "unknown"
	}
}

// ParseDerefAliases parses "never", "searching", "finding" or "always".
func ParseDerefAliases(s string) (DerefAliases, error) {
	for _, d := range []DerefAliases{NeverDerefAliases, DerefInSearching, DerefFindingBaseObj, DerefAlways} {
		if d.String() == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown alias dereferencing mode %q", ErrInvalidArgument, s)
}

// AuthMethod defines authentication method types.
type AuthMethod int

const (
	AuthMethodNone       AuthMethod = iota // Anonymous
	AuthMethodSimpleBind                   // Username/password authentication
	AuthMethodKerberos                     // GSSAPI/Kerberos authentication
	AuthMethodExternal                     // SASL EXTERNAL with a client certificate
)

// String returns string representation of authentication method.
func (a AuthMethod) String() string {
	switch a {
	case AuthMethodNone:
		return "none"
	case AuthMethodSimpleBind:
		return "simple"
	case AuthMethodKerberos:
		return "kerberos"
	case AuthMethodExternal:
		return "external"
	default:
		return "unknown"
	}
}

// GetAuthMethod determines the authentication method from the configuration.
func (c *ConnectionConfig) GetAuthMethod() AuthMethod {
	switch {
	case c.External:
		return AuthMethodExternal
	case c.KerberosRealm != "" && (c.KerberosKeytab != "" || c.KerberosCCache != "" || c.Username != ""):
		return AuthMethodKerberos
	case c.Username != "":
		return AuthMethodSimpleBind
	default:
		return AuthMethodNone
	}
}
