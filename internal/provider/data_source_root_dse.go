package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/types"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
)

var _ datasource.DataSource = &RootDSEDataSource{}

func NewRootDSEDataSource() datasource.DataSource {
	return &RootDSEDataSource{}
}

// RootDSEDataSource reads the server's root DSE.
type RootDSEDataSource struct {
	providerData *ldapclient.ProviderData
}

type RootDSEDataSourceModel struct {
	ID                         types.String `tfsdk:"id"`
	DefaultNamingContext       types.String `tfsdk:"default_naming_context"`
	NamingContexts             types.List   `tfsdk:"naming_contexts"`
	RootDomainNamingContext    types.String `tfsdk:"root_domain_naming_context"`
	ConfigurationNamingContext types.String `tfsdk:"configuration_naming_context"`
	SchemaNamingContext        types.String `tfsdk:"schema_naming_context"`
	DNSHostName                types.String `tfsdk:"dns_host_name"`
	SupportedLDAPVersions      types.List   `tfsdk:"supported_ldap_versions"`
	SupportedControls          types.List   `tfsdk:"supported_controls"`
	SupportedExtensions        types.List   `tfsdk:"supported_extensions"`
	SupportedSASLMechanisms    types.List   `tfsdk:"supported_sasl_mechanisms"`
	VendorName                 types.String `tfsdk:"vendor_name"`
	VendorVersion              types.String `tfsdk:"vendor_version"`
	Attributes                 types.Map    `tfsdk:"attributes"`
}

func (d *RootDSEDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_root_dse"
}

func (d *RootDSEDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	computedString := func(description string) schema.StringAttribute {
		return schema.StringAttribute{MarkdownDescription: description, Computed: true}
	}
	computedList := func(description string) schema.ListAttribute {
		return schema.ListAttribute{MarkdownDescription: description, ElementType: types.StringType, Computed: true}
	}

	resp.Schema = schema.Schema{
		MarkdownDescription: "Reads the root DSE of the connected server: its naming contexts and advertised capabilities.",

		Attributes: map[string]schema.Attribute{
			"id":                           computedString("The connected server's URL."),
			"default_naming_context":       computedString("`defaultNamingContext`. Active Directory only."),
			"naming_contexts":              computedList("`namingContexts`: the suffixes held by the server."),
			"root_domain_naming_context":   computedString("`rootDomainNamingContext`. Active Directory only."),
			"configuration_naming_context": computedString("`configurationNamingContext`. Active Directory only."),
			"schema_naming_context":        computedString("`schemaNamingContext`. Active Directory only."),
			"dns_host_name":                computedString("`dnsHostName`. Active Directory only."),
			"supported_ldap_versions":      computedList("`supportedLDAPVersion`."),
			"supported_controls":           computedList("`supportedControl`: OIDs of supported controls."),
			"supported_extensions":         computedList("`supportedExtension`: OIDs of supported extended operations."),
			"supported_sasl_mechanisms":    computedList("`supportedSASLMechanisms`."),
			"vendor_name":                  computedString("`vendorName`, when published."),
			"vendor_version":               computedString("`vendorVersion`, when published."),
			"attributes": schema.MapAttribute{
				MarkdownDescription: "Every root DSE attribute returned, keyed by name.",
				ElementType:         types.ListType{ElemType: types.StringType},
				Computed:            true,
			},
		},
	}
}

func (d *RootDSEDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	d.providerData = providerDataFrom(req.ProviderData, "Data Source", &resp.Diagnostics)
}

func (d *RootDSEDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var data RootDSEDataSourceModel

	ctx = initializeLogging(ctx)

	logCompletion := ldapclient.LogOperation(ctx, "ldap_root_dse", "read", nil)
	defer func() {
		logCompletion(errorFromDiagnostics(resp.Diagnostics))
	}()

	if d.providerData == nil {
		resp.Diagnostics.AddError("Provider Not Configured", "The LDAP provider has not been configured.")
		return
	}

	dse, err := d.providerData.RootDSE(ctx)
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Reading Root DSE",
			fmt.Sprintf("Could not read the server's root DSE: %s", err.Error()),
		)
		return
	}

	data.ID = types.StringValue(d.providerData.Conn.Link().Endpoint().URL())
	resp.Diagnostics.Append(mapRootDSEToModel(ctx, dse, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func mapRootDSEToModel(ctx context.Context, dse ldapclient.Object, data *RootDSEDataSourceModel) diag.Diagnostics {
	var diags diag.Diagnostics

	list := func(name string) types.List {
		value, d := types.ListValueFrom(ctx, types.StringType, nonNil(dse.Values(name)))
		diags.Append(d...)
		return value
	}

	data.DefaultNamingContext = optionalString(dse.First("defaultNamingContext"))
	data.NamingContexts = list("namingContexts")
	data.RootDomainNamingContext = optionalString(dse.First("rootDomainNamingContext"))
	data.ConfigurationNamingContext = optionalString(dse.First("configurationNamingContext"))
	data.SchemaNamingContext = optionalString(dse.First("schemaNamingContext"))
	data.DNSHostName = optionalString(dse.First("dnsHostName"))
	data.SupportedLDAPVersions = list("supportedLDAPVersion")
	data.SupportedControls = list("supportedControl")
	data.SupportedExtensions = list("supportedExtension")
	data.SupportedSASLMechanisms = list("supportedSASLMechanisms")
	data.VendorName = optionalString(dse.First("vendorName"))
	data.VendorVersion = optionalString(dse.First("vendorVersion"))

	attributes, d := types.MapValueFrom(ctx, types.ListType{ElemType: types.StringType}, attributeMap(dse))
	diags.Append(d...)
	data.Attributes = attributes

	return diags
}
