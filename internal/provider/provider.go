package provider

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/terraform-plugin-framework-validators/int64validator"
	"github.com/hashicorp/terraform-plugin-framework-validators/providervalidator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/function"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/provider/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
	"github.com/isometry/terraform-provider-ldap/internal/provider/validators"
)

// Ensure LDAPProvider satisfies various provider interfaces.
var _ provider.Provider = &LDAPProvider{}
var _ provider.ProviderWithFunctions = &LDAPProvider{}
var _ provider.ProviderWithConfigValidators = &LDAPProvider{}

// LDAPProvider defines the provider implementation.
type LDAPProvider struct {
	// version is set to the provider version on release, "dev" when the
	// provider is built and ran locally, and "test" when running acceptance
	// testing.
	version string
}

// LDAPProviderModel describes the provider data model.
type LDAPProviderModel struct {
	// Server selection - mutually exclusive
	LdapURL types.String `tfsdk:"ldap_url"`
	Host    types.String `tfsdk:"host"`
	Port    types.Int64  `tfsdk:"port"`
	Domain  types.String `tfsdk:"domain"`
	BaseDN  types.String `tfsdk:"base_dn"`

	// Authentication settings
	Username     types.String `tfsdk:"username"`
	Password     types.String `tfsdk:"password"`
	SASLExternal types.Bool   `tfsdk:"sasl_external"`

	// Kerberos settings (optional)
	KerberosRealm  types.String `tfsdk:"kerberos_realm"`
	KerberosKeytab types.String `tfsdk:"kerberos_keytab"`
	KerberosConfig types.String `tfsdk:"kerberos_config"`
	KerberosCCache types.String `tfsdk:"kerberos_ccache"`
	KerberosSPN    types.String `tfsdk:"kerberos_spn"`

	// TLS settings
	UseTLS            types.Bool   `tfsdk:"use_tls"`
	SkipTLSVerify     types.Bool   `tfsdk:"skip_tls_verify"`
	TLSCACertFile     types.String `tfsdk:"tls_ca_cert_file"`
	TLSClientCertFile types.String `tfsdk:"tls_client_cert_file"`
	TLSClientKeyFile  types.String `tfsdk:"tls_client_key_file"`

	// Session settings
	ConnectTimeout types.Int64 `tfsdk:"connect_timeout"`
	PageSize       types.Int64 `tfsdk:"page_size"`
	EnableLogging  types.Bool  `tfsdk:"enable_logging"`
}

func (p *LDAPProvider) Metadata(ctx context.Context, req provider.MetadataRequest, resp *provider.MetadataResponse) {
	resp.TypeName = "ldap"
	resp.Version = p.version
}

func (p *LDAPProvider) Schema(ctx context.Context, req provider.SchemaRequest, resp *provider.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "The LDAP provider reads and manages entries in any LDAPv3 directory, including Active Directory. " +
			"It supports SRV-based server discovery, paged searches, and simple, SASL EXTERNAL and Kerberos (GSSAPI) authentication.",
		Attributes: map[string]schema.Attribute{
			// Server selection - mutually exclusive
			"ldap_url": schema.StringAttribute{
				MarkdownDescription: "Direct LDAP/LDAPS URL (e.g., `ldaps://dc1.example.com:636`). " +
					"Mutually exclusive with `host` and `domain`. Can be set via the `LDAP_URL` environment variable.",
				Optional: true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"host": schema.StringAttribute{
				MarkdownDescription: "Directory server host name. Mutually exclusive with `ldap_url` and `domain`. " +
					"Can be set via the `LDAP_HOST` environment variable.",
				Optional: true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"port": schema.Int64Attribute{
				MarkdownDescription: "Port used with `host`. Defaults to `389`. " +
					"Can be set via the `LDAP_PORT` environment variable.",
				Optional: true,
				Validators: []validator.Int64{
					int64validator.Between(1, 65535),
				},
			},
			"domain": schema.StringAttribute{
				MarkdownDescription: "DNS domain for SRV-based server discovery (e.g., `example.com`). " +
					"Mutually exclusive with `ldap_url` and `host`. Can be set via the `LDAP_DOMAIN` environment variable.",
				Optional: true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"base_dn": schema.StringAttribute{
				MarkdownDescription: "Default base DN for searches (e.g., `dc=example,dc=com`). " +
					"If not specified, it is discovered from the root DSE. " +
					"Can be set via the `LDAP_BASE_DN` environment variable.",
				Optional: true,
				Validators: []validator.String{
					validators.IsValidDN(),
				},
			},

			// Authentication settings
			"username": schema.StringAttribute{
				MarkdownDescription: "Bind identity: a DN, a UPN, or a Kerberos principal. Leave unset for an anonymous session. " +
					"Can be set via the `LDAP_USERNAME` environment variable.",
				Optional: true,
			},
			"password": schema.StringAttribute{
				MarkdownDescription: "Password for simple or Kerberos password authentication. " +
					"Can be set via the `LDAP_PASSWORD` environment variable.",
				Optional:  true,
				Sensitive: true,
			},
			"sasl_external": schema.BoolAttribute{
				MarkdownDescription: "Authenticate with SASL EXTERNAL using the TLS client certificate. Defaults to `false`. " +
					"Can be set via the `LDAP_SASL_EXTERNAL` environment variable.",
				Optional: true,
			},

			// Kerberos settings
			"kerberos_realm": schema.StringAttribute{
				MarkdownDescription: "Kerberos realm for GSSAPI authentication (e.g., `EXAMPLE.COM`). " +
					"Can be set via the `LDAP_KERBEROS_REALM` environment variable.",
				Optional: true,
			},
			"kerberos_keytab": schema.StringAttribute{
				MarkdownDescription: "Path to a Kerberos keytab file. " +
					"Can be set via the `LDAP_KERBEROS_KEYTAB` environment variable.",
				Optional: true,
			},
			"kerberos_config": schema.StringAttribute{
				MarkdownDescription: "Path to the Kerberos configuration file. When the file does not exist a configuration using DNS discovery is generated. " +
					"Can be set via the `LDAP_KERBEROS_CONFIG` environment variable.",
				Optional: true,
			},
			"kerberos_ccache": schema.StringAttribute{
				MarkdownDescription: "Path to a Kerberos credential cache. " +
					"Can be set via the `LDAP_KERBEROS_CCACHE` environment variable.",
				Optional: true,
			},
			"kerberos_spn": schema.StringAttribute{
				MarkdownDescription: "Override the service principal name, e.g. `ldap/dc1.example.com` when connecting by IP address. " +
					"Can be set via the `LDAP_KERBEROS_SPN` environment variable.",
				Optional: true,
			},

			// TLS settings
			"use_tls": schema.BoolAttribute{
				MarkdownDescription: "Use StartTLS on plain `ldap://` connections. `ldaps://` URLs always use TLS. Defaults to `true`. " +
					"Can be set via the `LDAP_USE_TLS` environment variable.",
				Optional: true,
			},
			"skip_tls_verify": schema.BoolAttribute{
				MarkdownDescription: "Skip TLS certificate verification. Not recommended for production. Defaults to `false`. " +
					"Can be set via the `LDAP_SKIP_TLS_VERIFY` environment variable.",
				Optional: true,
			},
			"tls_ca_cert_file": schema.StringAttribute{
				MarkdownDescription: "Path to a PEM CA bundle used to verify the server. " +
					"Can be set via the `LDAP_TLS_CA_CERT_FILE` environment variable.",
				Optional: true,
			},
			"tls_client_cert_file": schema.StringAttribute{
				MarkdownDescription: "Path to a client certificate for mutual TLS. " +
					"Can be set via the `LDAP_TLS_CLIENT_CERT_FILE` environment variable.",
				Optional: true,
			},
			"tls_client_key_file": schema.StringAttribute{
				MarkdownDescription: "Path to the client certificate's private key. " +
					"Can be set via the `LDAP_TLS_CLIENT_KEY_FILE` environment variable.",
				Optional:  true,
				Sensitive: true,
			},

			// Session settings
			"connect_timeout": schema.Int64Attribute{
				MarkdownDescription: "Connection and request timeout in seconds. Defaults to `30`. " +
					"Can be set via the `LDAP_CONNECT_TIMEOUT` environment variable.",
				Optional: true,
				Validators: []validator.Int64{
					int64validator.AtLeast(1),
				},
			},
			"page_size": schema.Int64Attribute{
				MarkdownDescription: "Default page size for paged searches. Defaults to `1000`. " +
					"Can be set via the `LDAP_PAGE_SIZE` environment variable.",
				Optional: true,
				Validators: []validator.Int64{
					int64validator.AtLeast(1),
				},
			},
			"enable_logging": schema.BoolAttribute{
				MarkdownDescription: "Log every request and response on the `ldap` log subsystem. Defaults to `false`. " +
					"Can be set via the `LDAP_ENABLE_LOGGING` environment variable.",
				Optional: true,
			},
		},
	}
}

// ConfigValidators implements provider.ProviderWithConfigValidators.
func (p *LDAPProvider) ConfigValidators(ctx context.Context) []provider.ConfigValidator {
	return []provider.ConfigValidator{
		providervalidator.Conflicting(
			path.MatchRoot("ldap_url"),
			path.MatchRoot("host"),
			path.MatchRoot("domain"),
		),
		providervalidator.Conflicting(
			path.MatchRoot("ldap_url"),
			path.MatchRoot("port"),
		),
		providervalidator.RequiredTogether(
			path.MatchRoot("tls_client_cert_file"),
			path.MatchRoot("tls_client_key_file"),
		),
	}
}

func (p *LDAPProvider) Configure(ctx context.Context, req provider.ConfigureRequest, resp *provider.ConfigureResponse) {
	var data LDAPProviderModel

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	ctx = p.configureLogging(ctx)

	tflog.Info(ctx, "Configuring LDAP provider", map[string]any{
		"version": p.version,
	})

	config := buildConnectionConfig(&data, &resp.Diagnostics)
	if resp.Diagnostics.HasError() {
		return
	}

	start := time.Now()
	link, err := ldapclient.DialLink(ctx, config)
	if err != nil {
		tflog.Error(ctx, "Failed to connect to directory", map[string]any{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		resp.Diagnostics.AddError(
			"Unable to Connect to Directory",
			"The provider could not establish a connection to any directory server. "+
				"Please verify your configuration settings.\n\n"+
				"Connection Error: "+err.Error(),
		)
		return
	}

	tflog.Info(ctx, "Connection established successfully", map[string]any{
		"endpoint":    link.Endpoint().URL(),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	auth := ldapclient.NewAuthModule(config)
	stats := ldapclient.NewStatsModule()

	var modules []ldapclient.Module
	if getBoolValue(data.EnableLogging, "LDAP_ENABLE_LOGGING", false) {
		modules = append(modules, ldapclient.NewLoggingModule())
	}
	modules = append(modules, auth, stats)

	registry, err := ldapclient.NewRegistry(ctx, modules...)
	if err != nil {
		_ = link.Close()
		resp.Diagnostics.AddError(
			"Unable to Initialize Modules",
			"An unexpected error occurred while enabling connection modules. "+
				"Please report this issue to the provider developers.\n\n"+
				"Module Error: "+err.Error(),
		)
		return
	}

	// Binding happens as a subscriber of the connection's "new" event.
	conn, err := ldapclient.NewConnection(ctx, link, registry)
	if err != nil {
		_ = link.Close()
		resp.Diagnostics.AddError(
			"Unable to Create Connection",
			"An unexpected error occurred when creating the LDAP connection.\n\n"+
				"Connection Error: "+err.Error(),
		)
		return
	}

	if err := auth.Err(conn); err != nil {
		_ = conn.Close()
		resp.Diagnostics.AddError(
			"Authentication Failed",
			"The provider could not authenticate with the directory server. "+
				"Please verify your authentication credentials and settings.\n\n"+
				"Authentication Error: "+err.Error(),
		)
		return
	}

	tflog.Info(ctx, "LDAP provider configured successfully", map[string]any{
		"auth_method": config.GetAuthMethod().String(),
		"modules":     len(registry.Modules()),
	})

	providerData := ldapclient.NewProviderData(conn, config, stats)

	resp.DataSourceData = providerData
	resp.ResourceData = providerData
}

// configureLogging adds the provider's persistent log fields.
func (p *LDAPProvider) configureLogging(ctx context.Context) context.Context {
	ctx = tflog.SetField(ctx, "provider", "ldap")
	ctx = tflog.SetField(ctx, "provider_version", p.version)
	ctx = initializeLogging(ctx)

	tflog.Debug(ctx, "LDAP provider logging configured")

	return ctx
}

// buildConnectionConfig resolves the provider configuration, falling back
// to LDAP_* environment variables for unset attributes.
func buildConnectionConfig(data *LDAPProviderModel, diags *diag.Diagnostics) *ldapclient.ConnectionConfig {
	config := ldapclient.DefaultConfig()

	// Server selection, in the order the client tries them.
	if ldapURL := getStringValue(data.LdapURL, "LDAP_URL"); ldapURL != "" {
		config.LDAPURLs = []string{ldapURL}
	} else if host := getStringValue(data.Host, "LDAP_HOST"); host != "" {
		config.Host = host
	} else if domain := getStringValue(data.Domain, "LDAP_DOMAIN"); domain != "" {
		config.Domain = domain
	}

	if port := getInt64Value(data.Port, "LDAP_PORT", int64(config.Port)); port > 0 {
		config.Port = int(port)
	}

	config.BaseDN = getStringValue(data.BaseDN, "LDAP_BASE_DN")

	// Authentication
	config.Username = getStringValue(data.Username, "LDAP_USERNAME")
	config.Password = getStringValue(data.Password, "LDAP_PASSWORD")
	config.External = getBoolValue(data.SASLExternal, "LDAP_SASL_EXTERNAL", false)
	config.KerberosRealm = getStringValue(data.KerberosRealm, "LDAP_KERBEROS_REALM")
	config.KerberosKeytab = getStringValue(data.KerberosKeytab, "LDAP_KERBEROS_KEYTAB")
	config.KerberosCCache = getStringValue(data.KerberosCCache, "LDAP_KERBEROS_CCACHE")
	config.KerberosSPN = getStringValue(data.KerberosSPN, "LDAP_KERBEROS_SPN")
	if krb5conf := getStringValue(data.KerberosConfig, "LDAP_KERBEROS_CONFIG"); krb5conf != "" {
		config.KerberosConfig = krb5conf
	}

	if config.Password != "" && config.Username == "" {
		diags.AddError(
			"Incomplete Authentication Configuration",
			"A password was provided without a username. "+
				"Set 'username' (or LDAP_USERNAME) for simple or Kerberos password authentication, "+
				"or remove the password for an anonymous session.",
		)
		return config
	}

	// TLS
	config.UseTLS = getBoolValue(data.UseTLS, "LDAP_USE_TLS", true)
	config.SkipTLSVerify = getBoolValue(data.SkipTLSVerify, "LDAP_SKIP_TLS_VERIFY", false)
	config.TLSCACertFile = getStringValue(data.TLSCACertFile, "LDAP_TLS_CA_CERT_FILE")
	config.TLSClientCertFile = getStringValue(data.TLSClientCertFile, "LDAP_TLS_CLIENT_CERT_FILE")
	config.TLSClientKeyFile = getStringValue(data.TLSClientKeyFile, "LDAP_TLS_CLIENT_KEY_FILE")

	// Session
	if connectTimeout := getInt64Value(data.ConnectTimeout, "LDAP_CONNECT_TIMEOUT", 30); connectTimeout > 0 {
		config.Timeout = time.Duration(connectTimeout) * time.Second
	}
	if pageSize := getInt64Value(data.PageSize, "LDAP_PAGE_SIZE", int64(config.PageSize)); pageSize > 0 {
		config.PageSize = int(pageSize)
	}

	if err := config.Validate(); err != nil {
		diags.AddError(
			"Invalid LDAP Configuration",
			"The resolved provider configuration cannot be used to reach a directory server. "+
				"Set one of 'ldap_url', 'host' or 'domain' (or LDAP_URL, LDAP_HOST, LDAP_DOMAIN).\n\n"+
				"Configuration Error: "+err.Error(),
		)
	}

	return config
}

// Helper functions for configuration value resolution

func getStringValue(configValue types.String, envVar string) string {
	if !configValue.IsNull() && !configValue.IsUnknown() && configValue.ValueString() != "" {
		return configValue.ValueString()
	}
	return os.Getenv(envVar)
}

func getBoolValue(configValue types.Bool, envVar string, defaultValue bool) bool {
	if !configValue.IsNull() && !configValue.IsUnknown() {
		return configValue.ValueBool()
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := strconv.ParseBool(envValue); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getInt64Value(configValue types.Int64, envVar string, defaultValue int64) int64 {
	if !configValue.IsNull() && !configValue.IsUnknown() {
		return configValue.ValueInt64()
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := strconv.ParseInt(envValue, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (p *LDAPProvider) Resources(ctx context.Context) []func() resource.Resource {
	return []func() resource.Resource{
		NewEntryResource,
		NewPasswordResource,
	}
}

func (p *LDAPProvider) DataSources(ctx context.Context) []func() datasource.DataSource {
	return []func() datasource.DataSource{
		NewSearchDataSource,
		NewRootDSEDataSource,
		NewCompareDataSource,
		NewWhoAmIDataSource,
	}
}

func (p *LDAPProvider) Functions(ctx context.Context) []func() function.Function {
	return []func() function.Function{
		NewCanonicalDNFunction,
		NewParentDNFunction,
		NewParseDNFunction,
		NewIsDescendantDNFunction,
		NewEscapeDNValueFunction,
		NewEscapeFilterValueFunction,
		NewBuildFilterFunction,
	}
}

func New(version string) func() provider.Provider {
	return func() provider.Provider {
		return &LDAPProvider{
			version: version,
		}
	}
}
