package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &WhoAmIDataSource{}

func NewWhoAmIDataSource() datasource.DataSource {
	return &WhoAmIDataSource{}
}

// WhoAmIDataSource reports the authorization identity of the provider's
// session.
type WhoAmIDataSource struct {
	providerData *ldapclient.ProviderData
}

// WhoAmIDataSourceModel describes the data source data model.
type WhoAmIDataSourceModel struct {
	ID                types.String `tfsdk:"id"`
	AuthzID           types.String `tfsdk:"authz_id"`
	DN                types.String `tfsdk:"dn"`
	UserPrincipalName types.String `tfsdk:"upn"`
	SAMAccountName    types.String `tfsdk:"sam_account_name"`
	SID               types.String `tfsdk:"sid"`
	Format            types.String `tfsdk:"format"`
}

func (d *WhoAmIDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_whoami"
}

func (d *WhoAmIDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Returns the authorization identity the server associates with the provider's session, " +
			"using the \"Who Am I?\" extended operation (RFC 4532). Anonymous sessions report an empty identity.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "Same as `authz_id`.",
				Computed:            true,
			},
			"authz_id": schema.StringAttribute{
				MarkdownDescription: "The raw authorization identity, e.g. `dn:cn=admin,dc=example,dc=com` or `u:EXAMPLE\\jdoe`.",
				Computed:            true,
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "Distinguished Name, when the identity is a DN.",
				Computed:            true,
			},
			"upn": schema.StringAttribute{
				MarkdownDescription: "User Principal Name, when the identity has the form `user@realm`.",
				Computed:            true,
			},
			"sam_account_name": schema.StringAttribute{
				MarkdownDescription: "Down-level logon name, when the identity has the form `DOMAIN\\user`.",
				Computed:            true,
			},
			"sid": schema.StringAttribute{
				MarkdownDescription: "Security Identifier, when the identity is a SID.",
				Computed:            true,
			},
			"format": schema.StringAttribute{
				MarkdownDescription: "One of `dn`, `upn`, `sam`, `sid`, `empty` or `unknown`.",
				Computed:            true,
			},
		},
	}
}

func (d *WhoAmIDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	d.providerData = providerDataFrom(req.ProviderData, "Data Source", &resp.Diagnostics)
}

func (d *WhoAmIDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var data WhoAmIDataSourceModel

	ctx = initializeLogging(ctx)

	logCompletion := ldapclient.LogOperation(ctx, "ldap_whoami", "read", nil)
	defer func() {
		logCompletion(errorFromDiagnostics(resp.Diagnostics))
	}()

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if d.providerData == nil {
		resp.Diagnostics.AddError("Provider Not Configured", "The LDAP provider has not been configured.")
		return
	}

	result, err := d.providerData.Execute(ctx, &ldapclient.WhoAmIRequest{})
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Performing WhoAmI Operation",
			fmt.Sprintf("Could not perform LDAP Who Am I? operation: %s", err.Error()),
		)
		return
	}
	if !result.OK() {
		responseDiagnostic(&resp.Diagnostics, "WhoAmI Operation Failed", result)
		return
	}

	authzID, _ := result.Value.(string)
	identity := ldapclient.ParseAuthzID(authzID)

	tflog.Debug(ctx, "Successfully performed WhoAmI operation", map[string]any{
		"authz_id": identity.AuthzID,
		"format":   identity.Format,
	})

	mapIdentityToModel(identity, &data)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func mapIdentityToModel(identity ldapclient.Identity, data *WhoAmIDataSourceModel) {
	data.ID = types.StringValue(identity.AuthzID)
	data.AuthzID = types.StringValue(identity.AuthzID)
	data.Format = types.StringValue(identity.Format)
	data.DN = optionalString(identity.DN)
	data.UserPrincipalName = optionalString(identity.UserPrincipalName)
	data.SAMAccountName = optionalString(identity.SAMAccountName)
	data.SID = optionalString(identity.SID)
}

// optionalString maps "" to null.
func optionalString(s string) types.String {
	if s == "" {
		return types.StringNull()
	}
	return types.StringValue(s)
}
