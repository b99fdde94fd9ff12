package ldap

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResolver answers SRV lookups from a table keyed by service name.
type fakeResolver struct {
	records map[string][]*net.SRV
	lookups []string
}

func (r *fakeResolver) LookupSRV(_ context.Context, service, proto, name string) (string, []*net.SRV, error) {
	r.lookups = append(r.lookups, service)
	if recs, ok := r.records[service]; ok {
		return "_" + service + "._" + proto + "." + name, recs, nil
	}
	return "", nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func TestSRVDiscovery_DiscoverServers(t *testing.T) {
	tests := []struct {
		name        string
		records     map[string][]*net.SRV
		wantHosts   []string
		wantTLS     []bool
		wantSource  string
		wantLookups []string
	}{
		{
			name: "ldaps records short-circuit",
			records: map[string][]*net.SRV{
				"ldaps": {
					{Target: "dc2.example.com.", Port: 636, Priority: 10, Weight: 50},
					{Target: "dc1.example.com.", Port: 636, Priority: 0, Weight: 100},
				},
				"ldap": {{Target: "dc3.example.com.", Port: 389}},
			},
			wantHosts:   []string{"dc1.example.com", "dc2.example.com"},
			wantTLS:     []bool{true, true},
			wantSource:  "srv",
			wantLookups: []string{"ldaps"},
		},
		{
			name: "ldap and gc combined",
			records: map[string][]*net.SRV{
				"ldap": {{Target: "dc1.example.com.", Port: 389, Priority: 0, Weight: 10}},
				"gc":   {{Target: "gc1.example.com.", Port: 3268, Priority: 0, Weight: 90}},
			},
			wantHosts:   []string{"gc1.example.com", "dc1.example.com"},
			wantTLS:     []bool{false, false},
			wantSource:  "srv",
			wantLookups: []string{"ldaps", "ldap", "gc"},
		},
		{
			name:        "fallback to domain",
			records:     nil,
			wantHosts:   []string{"example.com", "example.com"},
			wantTLS:     []bool{true, false},
			wantSource:  "fallback",
			wantLookups: []string{"ldaps", "ldap", "gc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &fakeResolver{records: tt.records}
			servers, err := NewSRVDiscovery(resolver).DiscoverServers(context.Background(), "example.com")
			require.NoError(t, err)

			var hosts []string
			var tlsFlags []bool
			for _, s := range servers {
				require.NoError(t, s.Validate())
				assert.Equal(t, tt.wantSource, s.Source)
				hosts = append(hosts, s.Host)
				tlsFlags = append(tlsFlags, s.UseTLS)
			}
			assert.Equal(t, tt.wantHosts, hosts)
			assert.Equal(t, tt.wantTLS, tlsFlags)
			assert.Equal(t, tt.wantLookups, resolver.lookups)
		})
	}
}

func TestSRVDiscovery_EmptyDomain(t *testing.T) {
	_, err := NewSRVDiscovery(&fakeResolver{}).DiscoverServers(context.Background(), "")
	assert.Error(t, err)
}

func TestParseLDAPURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    Endpoint
		wantErr bool
	}{
		{
			name: "ldaps with port",
			url:  "ldaps://dc1.example.com:3269",
			want: Endpoint{Host: "dc1.example.com", Port: 3269, UseTLS: true, Weight: 100, Source: "config"},
		},
		{
			name: "ldaps without port",
			url:  "ldaps://dc1.example.com",
			want: Endpoint{Host: "dc1.example.com", Port: 636, UseTLS: true, Weight: 100, Source: "config"},
		},
		{
			name: "ldap without port",
			url:  "LDAP://dc1.example.com",
			want: Endpoint{Host: "dc1.example.com", Port: 389, Weight: 100, Source: "config"},
		},
		{
			name: "ipv6",
			url:  "ldap://[2001:db8::1]:389",
			want: Endpoint{Host: "2001:db8::1", Port: 389, Weight: 100, Source: "config"},
		},
		{name: "empty URL", url: "", wantErr: true},
		{name: "invalid scheme", url: "https://dc1.example.com", wantErr: true},
		{name: "invalid port", url: "ldap://dc1.example.com:abc", wantErr: true},
		{name: "port out of range", url: "ldap://dc1.example.com:70000", wantErr: true},
		{name: "missing host", url: "ldap://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLDAPURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEndpoint_URL(t *testing.T) {
	assert.Equal(t, "ldaps://dc1.example.com:636", Endpoint{Host: "dc1.example.com", Port: 636, UseTLS: true}.URL())
	assert.Equal(t, "ldap://dc1.example.com:389", Endpoint{Host: "dc1.example.com", Port: 389}.URL())
	assert.Equal(t, "ldap://[2001:db8::1]:389", Endpoint{Host: "2001:db8::1", Port: 389}.URL())
}

func TestResolveEndpoints(t *testing.T) {
	ctx := context.Background()
	discovery := NewSRVDiscovery(&fakeResolver{records: map[string][]*net.SRV{
		"ldaps": {{Target: "dc1.example.com.", Port: 636}},
	}})

	t.Run("urls take precedence", func(t *testing.T) {
		cfg := &ConnectionConfig{
			LDAPURLs: []string{"ldaps://a.example.com", "ldap://b.example.com"},
			Host:     "ignored.example.com",
			Domain:   "example.com",
		}
		eps, err := ResolveEndpoints(ctx, cfg, discovery)
		require.NoError(t, err)
		require.Len(t, eps, 2)
		assert.Equal(t, "a.example.com", eps[0].Host)
		assert.Equal(t, "b.example.com", eps[1].Host)
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := ResolveEndpoints(ctx, &ConnectionConfig{LDAPURLs: []string{"http://x"}}, discovery)
		assert.Error(t, err)
	})

	t.Run("host and port", func(t *testing.T) {
		eps, err := ResolveEndpoints(ctx, &ConnectionConfig{Host: "dc9.example.com", Port: 636, Domain: "example.com"}, discovery)
		require.NoError(t, err)
		require.Len(t, eps, 1)
		assert.Equal(t, "ldaps://dc9.example.com:636", eps[0].URL())
	})

	t.Run("domain", func(t *testing.T) {
		eps, err := ResolveEndpoints(ctx, &ConnectionConfig{Domain: "example.com"}, discovery)
		require.NoError(t, err)
		require.Len(t, eps, 1)
		assert.Equal(t, "dc1.example.com", eps[0].Host)
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := ResolveEndpoints(ctx, &ConnectionConfig{}, discovery)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestDialFirst(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	endpoints := []Endpoint{
		{Host: "down.example.com", Port: 389},
		{Host: "up.example.com", Port: 389},
	}

	t.Run("first reachable wins", func(t *testing.T) {
		var dialed []string
		transport := &MockTransport{}
		dial := func(_ context.Context, ep Endpoint, _ *ConnectionConfig) (Transport, error) {
			dialed = append(dialed, ep.Host)
			if ep.Host == "down.example.com" {
				return nil, errors.New("connection refused")
			}
			return transport, nil
		}

		got, ep, err := DialFirst(ctx, endpoints, cfg, dial)
		require.NoError(t, err)
		assert.Same(t, transport, got)
		assert.Equal(t, "up.example.com", ep.Host)
		assert.Equal(t, []string{"down.example.com", "up.example.com"}, dialed)
	})

	t.Run("all fail", func(t *testing.T) {
		dial := func(context.Context, Endpoint, *ConnectionConfig) (Transport, error) {
			return nil, errors.New("connection refused")
		}

		_, _, err := DialFirst(ctx, endpoints, cfg, dial)
		var ldapErr *LDAPError
		require.ErrorAs(t, err, &ldapErr)
		assert.Equal(t, ErrorCategoryConnection, ldapErr.Category)
		assert.True(t, ldapErr.Retryable)
	})

	t.Run("no endpoints", func(t *testing.T) {
		_, _, err := DialFirst(ctx, nil, cfg, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestDialLink(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Domain = "example.com"
	cfg.Timeout = 7 * time.Second

	discovery := NewSRVDiscovery(&fakeResolver{records: map[string][]*net.SRV{
		"ldap": {{Target: "dc1.example.com.", Port: 389}},
	}})
	transport := &MockTransport{}
	dial := func(context.Context, Endpoint, *ConnectionConfig) (Transport, error) {
		return transport, nil
	}

	link, err := dialLink(ctx, cfg, discovery, dial)
	require.NoError(t, err)
	assert.Equal(t, "dc1.example.com", link.Endpoint().Host)

	timeout, err := link.GetOption(OptionNetworkTimeout)
	require.NoError(t, err)
	assert.Equal(t, cfg.Timeout, timeout)

	_, err = dialLink(ctx, &ConnectionConfig{}, discovery, dial)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
