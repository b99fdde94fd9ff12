package ldap

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
	krb5config "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/keytab"
)

// kerberosPrincipal splits "user@REALM" when no realm is configured.
func kerberosPrincipal(cfg *ConnectionConfig) (username, realm string) {
	username, realm = cfg.Username, cfg.KerberosRealm
	if user, r, ok := strings.Cut(username, "@"); ok && realm == "" {
		username, realm = user, r
	}
	if realm == "" && cfg.Domain != "" {
		realm = cfg.Domain
	}
	return username, strings.ToUpper(realm)
}

// newKerberosClient builds a GSSAPI client. Credentials are tried in order:
// explicit credential cache, default credential cache, explicit keytab,
// default keytab, password.
func newKerberosClient(ctx context.Context, cfg *ConnectionConfig) (*gssapi.Client, error) {
	username, realm := kerberosPrincipal(cfg)
	if realm == "" {
		return nil, fmt.Errorf("kerberos realm is required (set the realm or use user@REALM)")
	}

	krbConf, err := loadKrb5Config(ctx, cfg, realm)
	if err != nil {
		return nil, err
	}

	settings := krb5client.DisablePAFXFAST(true)

	var client *krb5client.Client
	switch {
	case fileExists(cfg.KerberosCCache):
		client, err = clientFromCCache(cfg.KerberosCCache, krbConf, settings)
		LogLifecycle(ctx, LifecycleCCacheLoaded, map[string]any{"ccache": cfg.KerberosCCache})

	case fileExists(defaultCCachePath()):
		client, err = clientFromCCache(defaultCCachePath(), krbConf, settings)
		LogLifecycle(ctx, LifecycleCCacheLoaded, map[string]any{"ccache": defaultCCachePath()})

	case username != "" && fileExists(cfg.KerberosKeytab):
		client, err = clientFromKeytab(username, realm, cfg.KerberosKeytab, krbConf, settings)
		LogLifecycle(ctx, LifecycleKeytabLoaded, map[string]any{"keytab": cfg.KerberosKeytab})

	case username != "" && cfg.Password == "" && fileExists(defaultKeytabPath()):
		client, err = clientFromKeytab(username, realm, defaultKeytabPath(), krbConf, settings)
		LogLifecycle(ctx, LifecycleKeytabLoaded, map[string]any{"keytab": defaultKeytabPath()})

	case username != "" && cfg.Password != "":
		client = krb5client.NewWithPassword(username, realm, cfg.Password, krbConf, settings)

	default:
		return nil, fmt.Errorf("no suitable Kerberos credentials found: provide a credential cache, keytab, or password")
	}
	if err != nil {
		LogLifecycle(ctx, LifecycleTicketFailed, map[string]any{"error": err.Error()})
		return nil, err
	}

	return &gssapi.Client{Client: client}, nil
}

func clientFromCCache(path string, krbConf *krb5config.Config, settings func(*krb5client.Settings)) (*krb5client.Client, error) {
	ccache, err := credentials.LoadCCache(path)
	if err != nil {
		return nil, fmt.Errorf("loading credential cache %s: %w", path, err)
	}
	return krb5client.NewFromCCache(ccache, krbConf, settings)
}

func clientFromKeytab(username, realm, path string, krbConf *krb5config.Config, settings func(*krb5client.Settings)) (*krb5client.Client, error) {
	kt, err := keytab.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading keytab %s: %w", path, err)
	}
	return krb5client.NewWithKeytab(username, realm, kt, krbConf, settings), nil
}

// loadKrb5Config reads the configured krb5.conf, or builds one that relies
// on DNS to locate the KDCs when the file is absent.
func loadKrb5Config(ctx context.Context, cfg *ConnectionConfig, realm string) (*krb5config.Config, error) {
	if fileExists(cfg.KerberosConfig) {
		return krb5config.Load(cfg.KerberosConfig)
	}

	domain := strings.ToLower(realm)
	if cfg.Domain != "" {
		domain = strings.ToLower(cfg.Domain)
	}

	LogLifecycle(ctx, LifecycleKrb5ConfGenerated, map[string]any{
		"realm":          realm,
		"domain":         domain,
		"missing_config": cfg.KerberosConfig,
	})

	return krb5config.NewFromString(runtimeKrb5Conf(realm, domain))
}

func runtimeKrb5Conf(realm, domain string) string {
	return fmt.Sprintf(`[libdefaults]
    default_realm = %[1]s
    dns_lookup_kdc = true
    dns_lookup_realm = false
    rdns = false

[realms]
    %[1]s = {
    }

[domain_realm]
    .%[2]s = %[1]s
    %[2]s = %[1]s
`, realm, domain)
}

// servicePrincipal returns the LDAP SPN for the endpoint, unless overridden.
func servicePrincipal(cfg *ConnectionConfig, ep Endpoint) (string, error) {
	if cfg.KerberosSPN != "" {
		return cfg.KerberosSPN, nil
	}
	if ep.Host == "" {
		return "", fmt.Errorf("hostname is required for service principal")
	}
	return "ldap/" + ep.Host, nil
}

func defaultCCachePath() string {
	if ccache := os.Getenv("KRB5CCNAME"); ccache != "" {
		return strings.TrimPrefix(ccache, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

func defaultKeytabPath() string {
	if kt := os.Getenv("KRB5_KTNAME"); kt != "" {
		return strings.TrimPrefix(kt, "FILE:")
	}
	return "/etc/krb5.keytab"
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
