package provider

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/providerserver"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/tfsdk"
	"github.com/hashicorp/terraform-plugin-go/tfprotov6"
	"github.com/hashicorp/terraform-plugin-go/tftypes"
	"github.com/stretchr/testify/require"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
	"github.com/isometry/terraform-provider-ldap/internal/ldap/ldaptest"
)

// testAccProtoV6ProviderFactories is used to instantiate a provider during acceptance testing.
// The factory function is called for each Terraform CLI command to create a provider
// server that the CLI can connect to and interact with.
var testAccProtoV6ProviderFactories = map[string]func() (tfprotov6.ProviderServer, error){
	"ldap": providerserver.NewProtocol6WithError(New("test")()),
}

// Test environment configuration. The provider itself reads the LDAP_*
// variables; these select the part of the tree acceptance tests may write.
const (
	EnvTestContainer = "LDAP_TEST_CONTAINER"

	TestEntryPrefix = "tf-test-"
)

// testAccPreCheck skips unless TF_ACC is set and a server is configured.
func testAccPreCheck(t *testing.T) {
	t.Helper()

	if os.Getenv("TF_ACC") == "" {
		t.Skip("Skipping acceptance test - set TF_ACC=1 to run")
	}
	if os.Getenv("LDAP_URL") == "" && os.Getenv("LDAP_HOST") == "" && os.Getenv("LDAP_DOMAIN") == "" {
		t.Skip("Skipping acceptance test: one of LDAP_URL, LDAP_HOST or LDAP_DOMAIN must be set")
	}
}

// testAccContainer returns the DN acceptance tests create entries under.
func testAccContainer(t *testing.T) string {
	t.Helper()

	container := os.Getenv(EnvTestContainer)
	if container == "" {
		t.Skipf("Skipping test: %s must be set to a writable container DN", EnvTestContainer)
	}
	return container
}

// generateTestName returns a unique RDN value for test entries.
func generateTestName() string {
	return fmt.Sprintf("%s%s-%s", TestEntryPrefix, time.Now().Format("20060102-150405"), uuid.New().String()[:8])
}

// newTestProviderData returns provider data over a mock transport with no
// modules attached.
func newTestProviderData(t *testing.T) (*ldapclient.ProviderData, *ldaptest.MockTransport) {
	t.Helper()

	transport := &ldaptest.MockTransport{}
	link, err := ldapclient.NewLink(transport)
	require.NoError(t, err)

	conn, err := ldapclient.NewConnection(t.Context(), link, nil)
	require.NoError(t, err)

	cfg := ldapclient.DefaultConfig()
	cfg.Host = "ldap.example.com"
	cfg.BaseDN = "dc=example,dc=com"

	return ldapclient.NewProviderData(conn, cfg, nil), transport
}

// objectValue builds a value of typ, null for attributes not in values.
func objectValue(t *testing.T, typ tftypes.Type, values map[string]tftypes.Value) tftypes.Value {
	t.Helper()

	obj, ok := typ.(tftypes.Object)
	require.True(t, ok, "expected object type, got %T", typ)

	all := make(map[string]tftypes.Value, len(obj.AttributeTypes))
	for name, attrType := range obj.AttributeTypes {
		if v, ok := values[name]; ok {
			all[name] = v
			continue
		}
		all[name] = tftypes.NewValue(attrType, nil)
	}
	for name := range values {
		_, known := obj.AttributeTypes[name]
		require.True(t, known, "unknown attribute %q", name)
	}
	return tftypes.NewValue(obj, all)
}

func stringValues(values ...string) []tftypes.Value {
	out := make([]tftypes.Value, len(values))
	for i, v := range values {
		out[i] = tftypes.NewValue(tftypes.String, v)
	}
	return out
}

// readDataSource configures ds with pd and reads it with config.
func readDataSource(t *testing.T, ds datasource.DataSource, pd *ldapclient.ProviderData, config map[string]tftypes.Value) *datasource.ReadResponse {
	t.Helper()
	ctx := context.Background()

	if configurable, ok := ds.(datasource.DataSourceWithConfigure); ok && pd != nil {
		configureResp := &datasource.ConfigureResponse{}
		configurable.Configure(ctx, datasource.ConfigureRequest{ProviderData: pd}, configureResp)
		require.False(t, configureResp.Diagnostics.HasError(), "configure: %v", configureResp.Diagnostics)
	}

	schemaResp := &datasource.SchemaResponse{}
	ds.Schema(ctx, datasource.SchemaRequest{}, schemaResp)
	require.False(t, schemaResp.Diagnostics.HasError())

	typ := schemaResp.Schema.Type().TerraformType(ctx)

	req := datasource.ReadRequest{
		Config: tfsdk.Config{Schema: schemaResp.Schema, Raw: objectValue(t, typ, config)},
	}
	resp := &datasource.ReadResponse{
		State: tfsdk.State{Schema: schemaResp.Schema, Raw: tftypes.NewValue(typ, nil)},
	}

	ds.Read(ctx, req, resp)
	return resp
}

// resourceSchema returns r's schema and its Terraform type.
func resourceSchema(t *testing.T, r resource.Resource) (resp *resource.SchemaResponse, typ tftypes.Type) {
	t.Helper()
	ctx := context.Background()

	resp = &resource.SchemaResponse{}
	r.Schema(ctx, resource.SchemaRequest{}, resp)
	require.False(t, resp.Diagnostics.HasError())
	return resp, resp.Schema.Type().TerraformType(ctx)
}
