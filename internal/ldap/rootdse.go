package ldap

import (
	"context"
	"fmt"
)

// RootDSEAttributes are the operational attributes requested by ReadRootDSE.
var RootDSEAttributes = []string{
	"defaultNamingContext",
	"namingContexts",
	"rootDomainNamingContext",
	"configurationNamingContext",
	"schemaNamingContext",
	"dnsHostName",
	"serverName",
	"supportedLDAPVersion",
	"supportedControl",
	"supportedExtension",
	"supportedSASLMechanisms",
	"supportedCapabilities",
	"vendorName",
	"vendorVersion",
}

// ReadRootDSE reads the server's root DSE. A response that is not OK is
// returned as its *LDAPError.
func ReadRootDSE(ctx context.Context, conn *Connection) (Object, error) {
	req := NewReadRequest("").
		Where("(objectClass=*)").
		Select(RootDSEAttributes...)

	resp, err := conn.Execute(ctx, req)
	if err != nil {
		return Object{}, err
	}
	if err := resp.Err(); err != nil {
		return Object{}, err
	}
	if len(resp.Data) == 0 {
		return Object{}, fmt.Errorf("%w: server returned no root DSE", ErrInvalidState)
	}

	return resp.Data[0], nil
}

// DefaultBaseDN returns the configured base DN, falling back to the
// server's default naming context, then to its first naming context.
func DefaultBaseDN(ctx context.Context, conn *Connection, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	dse, err := ReadRootDSE(ctx, conn)
	if err != nil {
		return "", fmt.Errorf("discovering base DN: %w", err)
	}

	if dn := dse.First("defaultNamingContext"); dn != "" {
		return dn, nil
	}
	if dn := dse.First("namingContexts"); dn != "" {
		return dn, nil
	}
	return "", fmt.Errorf("%w: root DSE advertises no naming context", ErrInvalidState)
}
