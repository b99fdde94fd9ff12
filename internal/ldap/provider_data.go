package ldap

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// ProviderData is what the Terraform provider hands to its data sources:
// one executing Connection plus the configuration and counters behind it.
type ProviderData struct {
	Conn   *Connection
	Config *ConnectionConfig
	Stats  *StatsModule

	// Terraform reads data sources concurrently. exec keeps a paged
	// lookup's control and its executions together on the shared link.
	exec sync.Mutex

	mu     sync.Mutex
	baseDN string
}

// NewProviderData wraps an established connection.
func NewProviderData(conn *Connection, cfg *ConnectionConfig, stats *StatsModule) *ProviderData {
	return &ProviderData{
		Conn:   conn,
		Config: cfg,
		Stats:  stats,
	}
}

// Execute runs req on the shared connection.
func (pd *ProviderData) Execute(ctx context.Context, req Request) (*Response, error) {
	if pd.Conn == nil {
		return nil, fmt.Errorf("%w: LDAP connection is not initialized", ErrInvalidState)
	}

	pd.exec.Lock()
	defer pd.exec.Unlock()
	return pd.Conn.Execute(ctx, req)
}

// ExecuteAll runs req page by page until the server reports no further
// pages, returning every response in order. The first structural error
// or failed page stops the loop; the failed page is still returned.
func (pd *ProviderData) ExecuteAll(ctx context.Context, req Pageable) ([]*Response, error) {
	if pd.Conn == nil {
		return nil, fmt.Errorf("%w: LDAP connection is not initialized", ErrInvalidState)
	}

	pd.exec.Lock()
	defer pd.exec.Unlock()

	var pages []*Response
	for resp, err := range pd.Conn.Pages(ctx, req) {
		if err != nil {
			return pages, err
		}
		pages = append(pages, resp)
	}
	return pages, nil
}

// RootDSE reads the server's root DSE on the shared connection.
func (pd *ProviderData) RootDSE(ctx context.Context) (Object, error) {
	if pd.Conn == nil {
		return Object{}, fmt.Errorf("%w: LDAP connection is not initialized", ErrInvalidState)
	}

	pd.exec.Lock()
	defer pd.exec.Unlock()
	return ReadRootDSE(ctx, pd.Conn)
}

// BaseDN returns base when set, else the configured base DN, else the
// naming context advertised by the server. Discovery runs at most once
// successfully.
func (pd *ProviderData) BaseDN(ctx context.Context, base string) (string, error) {
	if base != "" {
		return base, nil
	}
	if pd.Conn == nil {
		return "", fmt.Errorf("%w: LDAP connection is not initialized", ErrInvalidState)
	}

	pd.mu.Lock()
	defer pd.mu.Unlock()

	if pd.baseDN != "" {
		return pd.baseDN, nil
	}

	configured := ""
	if pd.Config != nil {
		configured = pd.Config.BaseDN
	}

	pd.exec.Lock()
	dn, err := DefaultBaseDN(ctx, pd.Conn, configured)
	pd.exec.Unlock()
	if err != nil {
		return "", err
	}

	if configured == "" {
		tflog.SubsystemDebug(ctx, "ldap", "Discovered base DN from root DSE", map[string]any{
			"base_dn": dn,
		})
	}

	pd.baseDN = dn
	return dn, nil
}

// Snapshot returns the connection counters, or zero values when no stats
// module is attached.
func (pd *ProviderData) Snapshot() Stats {
	if pd.Stats == nil {
		return Stats{}
	}
	return pd.Stats.Stats()
}

// Close unbinds and releases the connection.
func (pd *ProviderData) Close() error {
	if pd.Conn == nil {
		return nil
	}
	return pd.Conn.Close()
}
