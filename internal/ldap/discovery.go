package ldap

import (
	"cmp"
	"context"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Endpoint is a dialable directory server.
type Endpoint struct {
	Host     string
	Port     int
	UseTLS   bool // ldaps:// rather than ldap://
	Priority int
	Weight   int
	Source   string // "config", "srv" or "fallback"
}

// URL returns the endpoint as an LDAP URL.
func (e Endpoint) URL() string {
	scheme := "ldap"
	if e.UseTLS {
		scheme = "ldaps"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(e.Host, strconv.Itoa(e.Port)))
}

// Validate checks the endpoint is dialable.
func (e Endpoint) Validate() error {
	if e.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if e.Port <= 0 || e.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", e.Port)
	}
	if e.Priority < 0 || e.Weight < 0 {
		return fmt.Errorf("priority and weight cannot be negative")
	}
	return nil
}

// ParseLDAPURL parses an ldap:// or ldaps:// URL into an Endpoint.
func ParseLDAPURL(raw string) (Endpoint, error) {
	if raw == "" {
		return Endpoint{}, fmt.Errorf("URL cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid LDAP URL %q: %w", raw, err)
	}

	ep := Endpoint{Host: u.Hostname(), Weight: 100, Source: "config"}

	switch strings.ToLower(u.Scheme) {
	case "ldaps":
		ep.UseTLS = true
		ep.Port = 636
	case "ldap":
		ep.Port = 389
	default:
		return Endpoint{}, fmt.Errorf("unsupported scheme %q, must be ldap:// or ldaps://", u.Scheme)
	}

	if p := u.Port(); p != "" {
		ep.Port, err = strconv.Atoi(p)
		if err != nil {
			return Endpoint{}, fmt.Errorf("invalid port number: %s", p)
		}
	}

	return ep, ep.Validate()
}

// SRVResolver is the subset of *net.Resolver used for discovery.
type SRVResolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

// SRVDiscovery finds directory servers for a DNS domain.
type SRVDiscovery struct {
	resolver SRVResolver
}

// NewSRVDiscovery creates a discovery using the given resolver, or
// net.DefaultResolver when nil.
func NewSRVDiscovery(resolver SRVResolver) *SRVDiscovery {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &SRVDiscovery{resolver: resolver}
}

// DiscoverServers looks up _ldaps._tcp, then _ldap._tcp, then _gc._tcp for
// domain. LDAPS records short-circuit the search. When nothing resolves, the
// domain itself is returned on the standard ports.
func (d *SRVDiscovery) DiscoverServers(ctx context.Context, domain string) ([]Endpoint, error) {
	if domain == "" {
		return nil, fmt.Errorf("domain cannot be empty")
	}

	start := time.Now()
	tflog.SubsystemDebug(ctx, "ldap", "Starting server discovery", map[string]any{
		"domain": domain,
	})

	services := []struct {
		service string
		useTLS  bool
	}{
		{"ldaps", true},
		{"ldap", false},
		{"gc", false},
	}

	var found []Endpoint
	for _, svc := range services {
		_, records, err := d.resolver.LookupSRV(ctx, svc.service, "tcp", domain)
		if err != nil || len(records) == 0 {
			tflog.SubsystemTrace(ctx, "ldap", "SRV lookup returned nothing", map[string]any{
				"service": svc.service,
				"domain":  domain,
			})
			continue
		}

		for _, srv := range records {
			found = append(found, Endpoint{
				Host:     strings.TrimSuffix(srv.Target, "."),
				Port:     int(srv.Port),
				UseTLS:   svc.useTLS,
				Priority: int(srv.Priority),
				Weight:   int(srv.Weight),
				Source:   "srv",
			})
		}

		if svc.useTLS {
			break
		}
	}

	if len(found) == 0 {
		tflog.SubsystemDebug(ctx, "ldap", "No SRV records found, using fallback servers", map[string]any{
			"domain":      domain,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return []Endpoint{
			{Host: domain, Port: 636, UseTLS: true, Weight: 100, Source: "fallback"},
			{Host: domain, Port: 389, Priority: 1, Weight: 100, Source: "fallback"},
		}, nil
	}

	// RFC 2782: ascending priority, heavier weight first within a priority.
	slices.SortStableFunc(found, func(a, b Endpoint) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return cmp.Compare(b.Weight, a.Weight)
	})

	tflog.SubsystemDebug(ctx, "ldap", "Server discovery completed", map[string]any{
		"domain":       domain,
		"server_count": len(found),
		"duration_ms":  time.Since(start).Milliseconds(),
	})

	return found, nil
}

// ResolveEndpoints returns the candidate servers for cfg in dial order.
func ResolveEndpoints(ctx context.Context, cfg *ConnectionConfig, discovery *SRVDiscovery) ([]Endpoint, error) {
	switch {
	case len(cfg.LDAPURLs) > 0:
		endpoints := make([]Endpoint, 0, len(cfg.LDAPURLs))
		for _, raw := range cfg.LDAPURLs {
			ep, err := ParseLDAPURL(raw)
			if err != nil {
				return nil, err
			}
			endpoints = append(endpoints, ep)
		}
		return endpoints, nil

	case cfg.Host != "":
		ep := Endpoint{Host: cfg.Host, Port: cfg.Port, UseTLS: cfg.Port == 636 || cfg.Port == 3269, Weight: 100, Source: "config"}
		return []Endpoint{ep}, ep.Validate()

	case cfg.Domain != "":
		if discovery == nil {
			discovery = NewSRVDiscovery(nil)
		}
		return discovery.DiscoverServers(ctx, cfg.Domain)
	}

	return nil, fmt.Errorf("%w: no server configured", ErrInvalidArgument)
}
