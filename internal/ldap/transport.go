package ldap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Transport is the protocol handle a Link drives. *ldap.Conn satisfies it.
type Transport interface {
	Search(*ldap.SearchRequest) (*ldap.SearchResult, error)
	Bind(username, password string) error
	UnauthenticatedBind(username string) error
	ExternalBind() error
	GSSAPIBind(client ldap.GSSAPIClient, servicePrincipal, authzid string) error
	Compare(dn, attribute, value string) (bool, error)
	Add(*ldap.AddRequest) error
	Del(*ldap.DelRequest) error
	Modify(*ldap.ModifyRequest) error
	ModifyDN(*ldap.ModifyDNRequest) error
	PasswordModify(*ldap.PasswordModifyRequest) (*ldap.PasswordModifyResult, error)
	WhoAmI(controls []ldap.Control) (*ldap.WhoAmIResult, error)
	StartTLS(*tls.Config) error
	SetTimeout(time.Duration)
	Unbind() error
	Close() error
}

var _ Transport = (*ldap.Conn)(nil)

// DialFunc opens a transport to an endpoint.
type DialFunc func(ctx context.Context, ep Endpoint, cfg *ConnectionConfig) (Transport, error)

// DialEndpoint connects to a single endpoint, upgrading plain connections
// with StartTLS when the configuration asks for TLS.
func DialEndpoint(ctx context.Context, ep Endpoint, cfg *ConnectionConfig) (Transport, error) {
	tlsConfig, err := cfg.BuildTLSConfig(ep.Host)
	if err != nil {
		return nil, err
	}

	dialer := ldap.DialWithDialer(&net.Dialer{Timeout: cfg.Timeout})

	var conn *ldap.Conn
	if ep.UseTLS {
		conn, err = ldap.DialURL(ep.URL(), dialer, ldap.DialWithTLSConfig(tlsConfig))
	} else {
		conn, err = ldap.DialURL(ep.URL(), dialer)
		if err == nil && cfg.UseTLS {
			if err = conn.StartTLS(tlsConfig); err != nil {
				_ = conn.Close()
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", ep.URL(), err)
	}

	conn.SetTimeout(cfg.Timeout)

	tflog.SubsystemDebug(ctx, "ldap", "Connected", map[string]any{
		"url":    ep.URL(),
		"source": ep.Source,
	})

	return conn, nil
}

// DialFirst tries each endpoint in order and returns the first transport
// that connects.
func DialFirst(ctx context.Context, endpoints []Endpoint, cfg *ConnectionConfig, dial DialFunc) (Transport, Endpoint, error) {
	if dial == nil {
		dial = DialEndpoint
	}

	var errs []error
	for _, ep := range endpoints {
		if err := ctx.Err(); err != nil {
			return nil, Endpoint{}, err
		}

		t, err := dial(ctx, ep, cfg)
		if err == nil {
			return t, ep, nil
		}

		LogLifecycle(ctx, LifecycleDialFailed, map[string]any{
			"url":   ep.URL(),
			"error": err.Error(),
		})
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil, Endpoint{}, fmt.Errorf("%w: no endpoints to dial", ErrInvalidArgument)
	}
	return nil, Endpoint{}, NewLDAPError("connect", errors.Join(errs...))
}
