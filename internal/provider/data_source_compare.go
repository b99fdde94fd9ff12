package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
	customtypes "github.com/isometry/terraform-provider-ldap/internal/provider/types"
	"github.com/isometry/terraform-provider-ldap/internal/provider/validators"
)

var _ datasource.DataSource = &CompareDataSource{}

func NewCompareDataSource() datasource.DataSource {
	return &CompareDataSource{}
}

// CompareDataSource asserts an attribute value on an entry without reading
// the value back, which works for attributes the session cannot read.
type CompareDataSource struct {
	providerData *ldapclient.ProviderData
}

type CompareDataSourceModel struct {
	DN        customtypes.DNStringValue `tfsdk:"dn"`
	Attribute types.String              `tfsdk:"attribute"`
	Value     types.String              `tfsdk:"value"`

	ID      types.String `tfsdk:"id"`
	Result  types.Bool   `tfsdk:"result"`
	Code    types.Int64  `tfsdk:"code"`
	Message types.String `tfsdk:"message"`
}

func (d *CompareDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_compare"
}

func (d *CompareDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Asks the server whether an entry holds an attribute value (RFC 4511 compare). " +
			"A missing entry or undefined attribute is an error; a value that does not match is not.",

		Attributes: map[string]schema.Attribute{
			"dn": schema.StringAttribute{
				MarkdownDescription: "DN of the entry to test.",
				Required:            true,
				CustomType:          customtypes.DNStringType{},
				Validators: []validator.String{
					validators.IsValidDN(),
				},
			},
			"attribute": schema.StringAttribute{
				MarkdownDescription: "Attribute to test, e.g. `memberOf`.",
				Required:            true,
				Validators: []validator.String{
					validators.IsAttributeName(),
				},
			},
			"value": schema.StringAttribute{
				MarkdownDescription: "Value to assert. Matched with the attribute's equality rule.",
				Required:            true,
				Sensitive:           true,
			},
			"id": schema.StringAttribute{
				MarkdownDescription: "`<dn>#<attribute>`.",
				Computed:            true,
			},
			"result": schema.BoolAttribute{
				MarkdownDescription: "Whether the entry holds the value.",
				Computed:            true,
			},
			"code": schema.Int64Attribute{
				MarkdownDescription: "`6` (compareTrue) or `5` (compareFalse).",
				Computed:            true,
			},
			"message": schema.StringAttribute{
				MarkdownDescription: "Canonical message for `code`.",
				Computed:            true,
			},
		},
	}
}

func (d *CompareDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	d.providerData = providerDataFrom(req.ProviderData, "Data Source", &resp.Diagnostics)
}

func (d *CompareDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var data CompareDataSourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	logCompletion := ldapclient.LogOperation(ctx, "ldap_compare", "read", map[string]any{
		"dn":        data.DN.ValueString(),
		"attribute": data.Attribute.ValueString(),
	})
	defer func() {
		logCompletion(errorFromDiagnostics(resp.Diagnostics))
	}()

	if d.providerData == nil {
		resp.Diagnostics.AddError("Provider Not Configured", "The LDAP provider has not been configured.")
		return
	}

	result, err := d.providerData.Execute(ctx, &ldapclient.CompareRequest{
		DN:        data.DN.ValueString(),
		Attribute: data.Attribute.ValueString(),
		Value:     data.Value.ValueString(),
	})
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Executing Compare",
			fmt.Sprintf("Could not compare %s on %q: %s", data.Attribute.ValueString(), data.DN.ValueString(), err.Error()),
		)
		return
	}
	if !result.OK() {
		responseDiagnostic(&resp.Diagnostics, "Compare Failed", result)
		return
	}

	tflog.Debug(ctx, "Compare completed", map[string]any{
		"code": uint16(result.Code),
	})

	data.ID = types.StringValue(data.DN.ValueString() + "#" + data.Attribute.ValueString())
	data.Result = types.BoolValue(result.Code == ldapclient.CodeCompareTrue)
	data.Code = types.Int64Value(int64(result.Code))
	data.Message = types.StringValue(result.Message)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}
