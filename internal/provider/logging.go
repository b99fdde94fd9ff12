package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
)

// initializeLogging creates the log subsystems used by the provider and the
// LDAP client. Call it at the top of every Configure, Read, Create, Update
// and Delete: the framework hands each RPC a fresh context.
//
// Levels follow TF_LOG_PROVIDER_LDAP_<SUBSYSTEM>.
func initializeLogging(ctx context.Context) context.Context {
	ctx = tflog.NewSubsystem(ctx, ldapclient.SubsystemProvider,
		tflog.WithLevelFromEnv("TF_LOG_PROVIDER_LDAP_PROVIDER"))
	ctx = tflog.NewSubsystem(ctx, ldapclient.SubsystemLDAP,
		tflog.WithLevelFromEnv("TF_LOG_PROVIDER_LDAP_LDAP"),
		tflog.WithRootFields())
	return tflog.NewSubsystem(ctx, ldapclient.SubsystemKerberos,
		tflog.WithLevelFromEnv("TF_LOG_PROVIDER_LDAP_KERBEROS"),
		tflog.WithRootFields())
}
