package ldap

import (
	"context"
	"runtime"
	"testing"
	"time"
	"weak"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAuthModule(t *testing.T) {
	tests := []struct {
		name     string
		config   *ConnectionConfig
		setup    func(*MockTransport)
		wantErr  bool
		wantAuth bool
	}{
		{
			name:   "anonymous does nothing",
			config: &ConnectionConfig{},
			setup:  func(*MockTransport) {},
		},
		{
			name:   "simple bind",
			config: &ConnectionConfig{Username: "CN=svc,DC=example,DC=com", Password: "secret"},
			setup: func(m *MockTransport) {
				m.On("Bind", "CN=svc,DC=example,DC=com", "secret").Return(nil).Once()
			},
			wantAuth: true,
		},
		{
			name:   "simple bind rejected",
			config: &ConnectionConfig{Username: "svc@example.com", Password: "wrong"},
			setup: func(m *MockTransport) {
				m.On("Bind", "svc@example.com", "wrong").Return(ldapFailure(
					ldap.LDAPResultInvalidCredentials,
					"80090308: LdapErr: DSID-0C09044E, comment: AcceptSecurityContext error, data 775, v4563",
				)).Once()
			},
			wantErr: true,
		},
		{
			name: "sasl external",
			config: &ConnectionConfig{
				External:          true,
				TLSClientCertFile: "/tmp/cert.pem",
				TLSClientKeyFile:  "/tmp/key.pem",
			},
			setup: func(m *MockTransport) {
				m.On("ExternalBind").Return(nil).Once()
			},
			wantAuth: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := NewAuthModule(tt.config)
			stats := NewStatsModule()

			link, transport := newTestLink()
			tt.setup(transport)

			registry, err := NewRegistry(context.Background(), auth, stats)
			require.NoError(t, err)

			conn, err := NewConnection(context.Background(), link, registry)
			require.NoError(t, err)

			if tt.wantErr {
				require.Error(t, auth.Err(conn))
				assert.True(t, IsAuthenticationError(auth.Err(conn)))
			} else {
				assert.NoError(t, auth.Err(conn))
			}
			transport.AssertExpectations(t)

			// The bind runs through Execute, so later modules observe it.
			s := stats.Stats()
			assert.Equal(t, int64(1), s.Connections)
			if tt.wantAuth || tt.wantErr {
				assert.Equal(t, int64(1), s.Requests)
			} else {
				assert.Zero(t, s.Requests)
			}
		})
	}
}

func TestAuthModule_LockedOutSubCode(t *testing.T) {
	auth := NewAuthModule(&ConnectionConfig{Username: "alice", Password: "pw"})
	link, transport := newTestLink()
	transport.On("Bind", "alice", "pw").Return(ldapFailure(
		ldap.LDAPResultInvalidCredentials,
		"80090308: LdapErr: DSID-0C09044E, comment: AcceptSecurityContext error, data 775, v4563",
	)).Once()

	registry, err := NewRegistry(context.Background(), auth)
	require.NoError(t, err)
	conn, err := NewConnection(context.Background(), link, registry)
	require.NoError(t, err)

	var ldapErr *LDAPError
	require.ErrorAs(t, auth.Err(conn), &ldapErr)
	assert.Equal(t, CodeAccountLockedOut, ldapErr.Code)
	assert.Equal(t, "Account locked out", ldapErr.Message)
}

func TestAuthModule_ResultsArePerConnection(t *testing.T) {
	auth := NewAuthModule(&ConnectionConfig{Username: "CN=svc,DC=example,DC=com", Password: "secret"})
	registry, err := NewRegistry(context.Background(), auth)
	require.NoError(t, err)

	okLink, okTransport := newTestLink()
	okTransport.On("Bind", "CN=svc,DC=example,DC=com", "secret").Return(nil).Once()
	badLink, badTransport := newTestLink()
	badTransport.On("Bind", "CN=svc,DC=example,DC=com", "secret").
		Return(ldapFailure(ldap.LDAPResultInvalidCredentials, "invalid credentials")).Once()

	ok, err := NewConnection(context.Background(), okLink, registry)
	require.NoError(t, err)
	bad, err := NewConnection(context.Background(), badLink, registry)
	require.NoError(t, err)

	assert.NoError(t, auth.Err(ok))
	assert.Error(t, auth.Err(bad))
	assert.NoError(t, auth.Err(nil))
}

func TestAuthModule_DoesNotRetainClosedConnections(t *testing.T) {
	auth := NewAuthModule(&ConnectionConfig{})
	registry, err := NewRegistry(context.Background(), auth)
	require.NoError(t, err)

	ref := func() weak.Pointer[Connection] {
		link, transport := newTestLink()
		transport.On("Close").Return(nil).Once()

		conn, err := NewConnection(context.Background(), link, registry)
		require.NoError(t, err)
		require.NoError(t, auth.Err(conn))
		require.NoError(t, conn.Close())
		return weak.Make(conn)
	}()

	assert.Eventually(t, func() bool {
		runtime.GC()
		return ref.Value() == nil
	}, time.Second, 10*time.Millisecond)
}

func TestAuthModule_RequiresConfig(t *testing.T) {
	_, err := NewRegistry(context.Background(), NewAuthModule(nil))
	assert.ErrorIs(t, err, ErrInvalidModule)
}

func TestStatsModule(t *testing.T) {
	stats := NewStatsModule()
	conn, transport := newTestConnection(t, stats, NewLoggingModule())

	transport.On("Search", mock.Anything).Return(&ldap.SearchResult{
		Entries: []*ldap.Entry{entry("CN=1"), entry("CN=2")},
	}, nil).Once()
	transport.On("Del", mock.Anything).Return(ldapFailure(ldap.LDAPResultNoSuchObject, "gone")).Once()

	_, err := conn.Execute(context.Background(), NewSearchRequest("DC=example,DC=com"))
	require.NoError(t, err)
	_, err = conn.Execute(context.Background(), &DeleteRequest{DN: "CN=gone"})
	require.NoError(t, err)

	assert.Equal(t, Stats{
		Connections:  1,
		Requests:     2,
		Responses:    1,
		ServerErrors: 1,
		Entries:      2,
	}, stats.Stats())
}

func TestBuiltinModuleNames(t *testing.T) {
	names := []string{
		NewAuthModule(&ConnectionConfig{}).Name(),
		NewLoggingModule().Name(),
		NewStatsModule().Name(),
	}
	assert.Equal(t, []string{"auth", "logging", "stats"}, names)
}
