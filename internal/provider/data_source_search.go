package provider

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework-validators/int64validator"
	"github.com/hashicorp/terraform-plugin-framework-validators/listvalidator"
	"github.com/hashicorp/terraform-plugin-framework/attr"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
	customtypes "github.com/isometry/terraform-provider-ldap/internal/provider/types"
	"github.com/isometry/terraform-provider-ldap/internal/provider/validators"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &SearchDataSource{}
var _ datasource.DataSourceWithValidateConfig = &SearchDataSource{}

func NewSearchDataSource() datasource.DataSource {
	return &SearchDataSource{}
}

// SearchDataSource runs one lookup, optionally paged, and exposes the
// normalized entries.
type SearchDataSource struct {
	providerData *ldapclient.ProviderData
}

// SearchDataSourceModel describes the data source data model.
type SearchDataSourceModel struct {
	// Lookup parameters
	Base           customtypes.DNStringValue `tfsdk:"base"`
	Filter         types.String              `tfsdk:"filter"`
	Scope          types.String              `tfsdk:"scope"`
	Attributes     types.List                `tfsdk:"attributes"`
	AttributesOnly types.Bool                `tfsdk:"attributes_only"`
	SizeLimit      types.Int64               `tfsdk:"size_limit"`
	TimeLimit      types.Int64               `tfsdk:"time_limit"`
	Deref          types.String              `tfsdk:"deref"`
	Paged          types.Bool                `tfsdk:"paged"`
	PageSize       types.Int64               `tfsdk:"page_size"`

	// Output
	ID                types.String `tfsdk:"id"`
	Entries           types.List   `tfsdk:"entries"`
	EntryCount        types.Int64  `tfsdk:"entry_count"`
	Pages             types.Int64  `tfsdk:"pages"`
	Code              types.Int64  `tfsdk:"code"`
	Message           types.String `tfsdk:"message"`
	DiagnosticMessage types.String `tfsdk:"diagnostic_message"`
	MatchedDN         types.String `tfsdk:"matched_dn"`
	Referrals         types.List   `tfsdk:"referrals"`
}

// entryObjectType is the element type of the entries list.
var entryObjectType = types.ObjectType{
	AttrTypes: map[string]attr.Type{
		"dn":         types.StringType,
		"attributes": types.MapType{ElemType: types.ListType{ElemType: types.StringType}},
	},
}

func (d *SearchDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_search"
}

func (d *SearchDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Searches the directory. Entries are returned with split attributes " +
			"(e.g. `member;range=0-1499`) merged under their plain name. " +
			"With `paged = true` the search is repeated with the server's paging cookie until every page has been read.",

		Attributes: map[string]schema.Attribute{
			"base": schema.StringAttribute{
				MarkdownDescription: "The DN to search from. Defaults to the provider's `base_dn`, or the naming context advertised by the server.",
				Optional:            true,
				Computed:            true,
				CustomType:          customtypes.DNStringType{},
				Validators: []validator.String{
					validators.IsValidDN(),
				},
			},
			"filter": schema.StringAttribute{
				MarkdownDescription: "RFC 4515 search filter. Defaults to `(objectClass=*)`.",
				Optional:            true,
				Computed:            true,
				Validators: []validator.String{
					validators.IsValidFilter(),
				},
			},
			"scope": schema.StringAttribute{
				MarkdownDescription: "Search scope: `base` (read the base entry), `one` (list its children) or `sub` (whole subtree). Defaults to `sub`.",
				Optional:            true,
				Computed:            true,
				Validators: []validator.String{
					validators.OneOfFold("base", "one", "sub"),
				},
			},
			"attributes": schema.ListAttribute{
				MarkdownDescription: "Attributes to return. Defaults to all user attributes (`*`). Use `+` for operational attributes.",
				ElementType:         types.StringType,
				Optional:            true,
				Validators: []validator.List{
					listvalidator.SizeAtLeast(1),
					listvalidator.UniqueValues(),
				},
			},
			"attributes_only": schema.BoolAttribute{
				MarkdownDescription: "Return attribute names without values. Defaults to `false`.",
				Optional:            true,
			},
			"size_limit": schema.Int64Attribute{
				MarkdownDescription: "Maximum number of entries the server should return. `0` means no client limit. " +
					"A search cut short by this limit still succeeds. Cannot be combined with `paged`.",
				Optional: true,
				Validators: []validator.Int64{
					int64validator.AtLeast(0),
				},
			},
			"time_limit": schema.Int64Attribute{
				MarkdownDescription: "Maximum time in seconds the server should spend on the search. `0` means no limit.",
				Optional:            true,
				Validators: []validator.Int64{
					int64validator.AtLeast(0),
				},
			},
			"deref": schema.StringAttribute{
				MarkdownDescription: "Alias dereferencing: `never`, `searching`, `finding` or `always`. Defaults to the session setting.",
				Optional:            true,
				Validators: []validator.String{
					validators.OneOfFold("never", "searching", "finding", "always"),
				},
			},
			"paged": schema.BoolAttribute{
				MarkdownDescription: "Read the result in pages using the simple paged results control. Defaults to `false`.",
				Optional:            true,
			},
			"page_size": schema.Int64Attribute{
				MarkdownDescription: "Entries per page when `paged` is set. Defaults to the provider's `page_size`.",
				Optional:            true,
				Validators: []validator.Int64{
					int64validator.AtLeast(1),
					int64validator.AlsoRequires(path.MatchRoot("paged")),
				},
			},

			"id": schema.StringAttribute{
				MarkdownDescription: "Identifier derived from the search parameters.",
				Computed:            true,
			},
			"entries": schema.ListNestedAttribute{
				MarkdownDescription: "Entries found, in the order the server returned them.",
				Computed:            true,
				NestedObject: schema.NestedAttributeObject{
					Attributes: map[string]schema.Attribute{
						"dn": schema.StringAttribute{
							MarkdownDescription: "Distinguished name of the entry.",
							Computed:            true,
						},
						"attributes": schema.MapAttribute{
							MarkdownDescription: "Attribute values keyed by attribute name.",
							ElementType:         types.ListType{ElemType: types.StringType},
							Computed:            true,
						},
					},
				},
			},
			"entry_count": schema.Int64Attribute{
				MarkdownDescription: "Number of entries found.",
				Computed:            true,
			},
			"pages": schema.Int64Attribute{
				MarkdownDescription: "Number of requests sent. `1` for unpaged searches.",
				Computed:            true,
			},
			"code": schema.Int64Attribute{
				MarkdownDescription: "Result code of the last response, e.g. `0` (success) or `4` (size limit exceeded).",
				Computed:            true,
			},
			"message": schema.StringAttribute{
				MarkdownDescription: "Canonical message for `code`.",
				Computed:            true,
			},
			"diagnostic_message": schema.StringAttribute{
				MarkdownDescription: "Diagnostic message sent by the server, if any.",
				Computed:            true,
			},
			"matched_dn": schema.StringAttribute{
				MarkdownDescription: "Matched DN reported by the server, if any.",
				Computed:            true,
			},
			"referrals": schema.ListAttribute{
				MarkdownDescription: "Referral URLs returned by the server.",
				ElementType:         types.StringType,
				Computed:            true,
			},
		},
	}
}

// ValidateConfig rejects size_limit combined with paged: paging turns the
// size limit into the page size.
func (d *SearchDataSource) ValidateConfig(ctx context.Context, req datasource.ValidateConfigRequest, resp *datasource.ValidateConfigResponse) {
	var data SearchDataSourceModel

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if data.Paged.ValueBool() && !data.SizeLimit.IsNull() && data.SizeLimit.ValueInt64() > 0 {
		resp.Diagnostics.AddAttributeError(
			path.Root("size_limit"),
			"Conflicting Search Limits",
			"size_limit cannot be combined with paged = true. Use page_size to control the number of entries per request.",
		)
	}
}

func (d *SearchDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	d.providerData = providerDataFrom(req.ProviderData, "Data Source", &resp.Diagnostics)
}

func (d *SearchDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var data SearchDataSourceModel

	ctx = initializeLogging(ctx)

	logCompletion := ldapclient.LogOperation(ctx, "ldap_search", "read", nil)
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

	base, err := d.providerData.BaseDN(ctx, data.Base.ValueString())
	if err != nil {
		resp.Diagnostics.AddAttributeError(
			path.Root("base"),
			"Unable to Determine Search Base",
			"No base was configured and the server did not advertise a naming context: "+err.Error(),
		)
		return
	}

	req2, diags := d.buildRequest(ctx, base, &data)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	tflog.Debug(ctx, "Searching directory", map[string]any{
		"base":   req2.Base(),
		"filter": req2.Filter(),
		"scope":  req2.Scope().String(),
		"paged":  req2.PagedSearchEnabled(),
	})

	pages, err := d.providerData.ExecuteAll(ctx, req2)
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Executing Search",
			fmt.Sprintf("Could not search %q: %s", base, err.Error()),
		)
		return
	}

	last := pages[len(pages)-1]
	if !last.OK() {
		responseDiagnostic(&resp.Diagnostics, "Search Failed", last)
		return
	}

	var objects []ldapclient.Object
	for _, page := range pages {
		objects = append(objects, page.Data...)
		page.Release()
	}

	tflog.Debug(ctx, "Search completed", map[string]any{
		"entries": len(objects),
		"pages":   len(pages),
		"code":    uint16(last.Code),
	})

	resp.Diagnostics.Append(mapSearchResult(ctx, objects, len(pages), last, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	data.Base = customtypes.DNString(base)
	data.Filter = types.StringValue(req2.Filter())
	data.Scope = types.StringValue(req2.Scope().String())
	data.ID = types.StringValue(searchID(req2))

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// buildRequest translates the configuration into a lookup request.
func (d *SearchDataSource) buildRequest(ctx context.Context, base string, data *SearchDataSourceModel) (*ldapclient.LookupRequest, diag.Diagnostics) {
	var diags diag.Diagnostics

	scope := ldapclient.ScopeWholeSubtree
	if !data.Scope.IsNull() && !data.Scope.IsUnknown() && data.Scope.ValueString() != "" {
		parsed, err := ldapclient.ParseSearchScope(strings.ToLower(strings.TrimSpace(data.Scope.ValueString())))
		if err != nil {
			diags.AddAttributeError(path.Root("scope"), "Invalid Search Scope", err.Error())
			return nil, diags
		}
		scope = parsed
	}

	var req *ldapclient.LookupRequest
	switch scope {
	case ldapclient.ScopeBaseObject:
		req = ldapclient.NewReadRequest(base)
	case ldapclient.ScopeSingleLevel:
		req = ldapclient.NewListRequest(base)
	default:
		req = ldapclient.NewSearchRequest(base)
	}

	if filter := data.Filter.ValueString(); filter != "" {
		req.Where(filter)
	}

	if !data.Attributes.IsNull() && !data.Attributes.IsUnknown() {
		var attrs []string
		diags.Append(data.Attributes.ElementsAs(ctx, &attrs, false)...)
		if diags.HasError() {
			return nil, diags
		}
		req.Select(attrs...)
	}

	req.SetAttributesOnly(data.AttributesOnly.ValueBool())
	if !data.TimeLimit.IsNull() && !data.TimeLimit.IsUnknown() {
		req.Within(int(data.TimeLimit.ValueInt64()))
	}

	if deref := data.Deref.ValueString(); deref != "" {
		parsed, err := ldapclient.ParseDerefAliases(strings.ToLower(strings.TrimSpace(deref)))
		if err != nil {
			diags.AddAttributeError(path.Root("deref"), "Invalid Alias Dereferencing Mode", err.Error())
			return nil, diags
		}
		req.SetDereferenceAliases(parsed)
	}

	if !data.Paged.ValueBool() {
		if !data.SizeLimit.IsNull() && !data.SizeLimit.IsUnknown() {
			req.LimitTo(int(data.SizeLimit.ValueInt64()))
		}
		return req, diags
	}

	pageSize := d.providerData.Config.PageSize
	if !data.PageSize.IsNull() && !data.PageSize.IsUnknown() {
		pageSize = int(data.PageSize.ValueInt64())
	}

	if _, err := req.LimitTo(pageSize).EnablePagedMode(); err != nil {
		diags.AddAttributeError(path.Root("page_size"), "Invalid Page Size", err.Error())
		return nil, diags
	}

	return req, diags
}

// mapSearchResult fills the computed attributes from the collected entries
// and the final response.
func mapSearchResult(ctx context.Context, objects []ldapclient.Object, pages int, last *ldapclient.Response, data *SearchDataSourceModel) diag.Diagnostics {
	var diags diag.Diagnostics

	elements := make([]attr.Value, 0, len(objects))
	for _, obj := range objects {
		attributes, d := types.MapValueFrom(ctx, types.ListType{ElemType: types.StringType}, attributeMap(obj))
		diags.Append(d...)
		if diags.HasError() {
			return diags
		}

		element, d := types.ObjectValue(entryObjectType.AttrTypes, map[string]attr.Value{
			"dn":         types.StringValue(obj.DN),
			"attributes": attributes,
		})
		diags.Append(d...)
		if diags.HasError() {
			return diags
		}
		elements = append(elements, element)
	}

	entries, d := types.ListValue(entryObjectType, elements)
	diags.Append(d...)
	if diags.HasError() {
		return diags
	}

	referrals, d := types.ListValueFrom(ctx, types.StringType, nonNil(last.Referrals))
	diags.Append(d...)

	data.Entries = entries
	data.EntryCount = types.Int64Value(int64(len(objects)))
	data.Pages = types.Int64Value(int64(pages))
	data.Code = types.Int64Value(int64(last.Code))
	data.Message = types.StringValue(last.Message)
	data.DiagnosticMessage = types.StringValue(last.DiagnosticMessage)
	data.MatchedDN = types.StringValue(last.MatchedDN)
	data.Referrals = referrals

	return diags
}

// attributeMap copies an object's attributes so every value is non-nil;
// attributes_only searches return names without values.
func attributeMap(obj ldapclient.Object) map[string][]string {
	out := make(map[string][]string, len(obj.Attributes))
	for name, values := range obj.Attributes {
		out[name] = nonNil(values)
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// searchID identifies a search by its parameters.
func searchID(req *ldapclient.LookupRequest) string {
	attrs := req.Attributes()
	slices.Sort(attrs)
	return fmt.Sprintf("%s|%s|%s|%s", req.Scope(), req.Base(), req.Filter(), strings.Join(attrs, ","))
}
