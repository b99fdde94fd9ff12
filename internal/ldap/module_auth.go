package ldap

import (
	"context"
	"fmt"
)

// AuthModule binds every new connection using the configured method.
// The outcome of each bind is stored on the connection and read with Err.
type AuthModule struct {
	BaseModule

	config *ConnectionConfig
}

// authResult is what AuthModule stores on a Connection.
type authResult struct {
	err error
}

// NewAuthModule returns an AuthModule for cfg.
func NewAuthModule(cfg *ConnectionConfig) *AuthModule {
	return &AuthModule{config: cfg}
}

func (m *AuthModule) Name() string { return "auth" }

func (m *AuthModule) Enable(context.Context) error {
	if m.config == nil {
		return fmt.Errorf("auth module requires a configuration")
	}
	return nil
}

func (m *AuthModule) Subscriptions() map[EventKind]Handler {
	return map[EventKind]Handler{
		EventNew: m.onNew,
	}
}

// Err returns the authentication error for conn, or nil if it bound
// successfully or was never seen.
func (m *AuthModule) Err(conn *Connection) error {
	if conn == nil {
		return nil
	}
	result, _ := conn.moduleState(m).(authResult)
	return result.err
}

func (m *AuthModule) onNew(ctx context.Context, event Event) {
	err := m.authenticate(ctx, event.Connection)

	event.Connection.setModuleState(m, authResult{err: err})

	method := m.config.GetAuthMethod().String()
	if err != nil {
		LogLifecycle(ctx, LifecycleAuthFailed, map[string]any{
			"method": method,
			"error":  err.Error(),
		})
		return
	}
	LogLifecycle(ctx, LifecycleAuthenticated, map[string]any{
		"method": method,
	})
}

func (m *AuthModule) authenticate(ctx context.Context, conn *Connection) error {
	var req Request

	switch m.config.GetAuthMethod() {
	case AuthMethodNone:
		return nil

	case AuthMethodSimpleBind:
		req = &BindRequest{DN: m.config.Username, Password: m.config.Password}

	case AuthMethodExternal:
		req = &SASLBindRequest{Mechanism: "EXTERNAL"}

	case AuthMethodKerberos:
		client, err := newKerberosClient(ctx, m.config)
		if err != nil {
			return NewLDAPError("ldap_sasl_bind", fmt.Errorf("kerberos: %w", err))
		}
		defer func() { _ = client.DeleteSecContext() }()

		spn, err := servicePrincipal(m.config, conn.Link().Endpoint())
		if err != nil {
			return NewLDAPError("ldap_sasl_bind", err)
		}
		req = &SASLBindRequest{Mechanism: "GSSAPI", Client: client, ServicePrincipal: spn}
	}

	resp, err := conn.Execute(ctx, req)
	if err != nil {
		return err
	}
	return resp.Err()
}
