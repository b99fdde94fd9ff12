package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringdefault"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
	customtypes "github.com/isometry/terraform-provider-ldap/internal/provider/types"
	"github.com/isometry/terraform-provider-ldap/internal/provider/validators"
)

// Password modes.
const (
	passwordModeExop       = "exop"
	passwordModeUnicodePwd = "unicode_pwd"
	passwordModeArgon2     = "argon2"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ resource.Resource = &PasswordResource{}

func NewPasswordResource() resource.Resource {
	return &PasswordResource{}
}

// PasswordResource sets the password of an existing entry.
type PasswordResource struct {
	providerData *ldapclient.ProviderData
}

// PasswordResourceModel describes the resource data model.
type PasswordResourceModel struct {
	ID          types.String              `tfsdk:"id"`
	DN          customtypes.DNStringValue `tfsdk:"dn"`
	Password    types.String              `tfsdk:"password"`
	OldPassword types.String              `tfsdk:"old_password"`
	Mode        types.String              `tfsdk:"mode"`
}

func (r *PasswordResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_password"
}

func (r *PasswordResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Sets the password of an existing entry. Destroying the resource leaves the password in place.\n\n" +
			"Modes:\n" +
			"  - `exop`: the RFC 3062 password modify extended operation. The server hashes the password according to its policy.\n" +
			"  - `unicode_pwd`: replaces Active Directory's `unicodePwd`. Requires an encrypted connection.\n" +
			"  - `argon2`: replaces `userPassword` with an `{ARGON2}` hash computed by the provider. " +
			"When the server lets the provider read `userPassword`, changes made outside Terraform are detected.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "The canonical DN of the entry.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "Distinguished name of the entry whose password is set.",
				Required:            true,
				CustomType:          customtypes.DNStringType{},
				Validators: []validator.String{
					validators.IsValidDN(),
				},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
			"password": schema.StringAttribute{
				MarkdownDescription: "The new password.",
				Required:            true,
				Sensitive:           true,
			},
			"old_password": schema.StringAttribute{
				MarkdownDescription: "The current password, for servers that require it when users change their own password. Only used with `exop`.",
				Optional:            true,
				Sensitive:           true,
			},
			"mode": schema.StringAttribute{
				MarkdownDescription: "How the password is written: `exop`, `unicode_pwd` or `argon2`. Defaults to `exop`.",
				Optional:            true,
				Computed:            true,
				Default:             stringdefault.StaticString(passwordModeExop),
				Validators: []validator.String{
					validators.OneOfFold(passwordModeExop, passwordModeUnicodePwd, passwordModeArgon2),
				},
			},
		},
	}
}

func (r *PasswordResource) Configure(ctx context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	r.providerData = providerDataFrom(req.ProviderData, "Resource", &resp.Diagnostics)
}

func (r *PasswordResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data PasswordResourceModel

	ctx = initializeLogging(ctx)

	logCompletion := ldapclient.LogOperation(ctx, "ldap_password", "create", nil)
	defer func() {
		logCompletion(errorFromDiagnostics(resp.Diagnostics))
	}()

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if r.providerData == nil {
		resp.Diagnostics.AddError("Provider Not Configured", "The LDAP provider has not been configured.")
		return
	}

	r.setPassword(ctx, &data, &resp.Diagnostics)
	if resp.Diagnostics.HasError() {
		return
	}

	data.ID = types.StringValue(data.DN.Canonical().ValueString())
	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *PasswordResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data PasswordResourceModel

	ctx = initializeLogging(ctx)

	logCompletion := ldapclient.LogOperation(ctx, "ldap_password", "read", nil)
	defer func() {
		logCompletion(errorFromDiagnostics(resp.Diagnostics))
	}()

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if r.providerData == nil {
		resp.Diagnostics.AddError("Provider Not Configured", "The LDAP provider has not been configured.")
		return
	}

	dn := data.DN.ValueString()
	argon := strings.EqualFold(data.Mode.ValueString(), passwordModeArgon2)

	attrs := []string{"1.1"}
	if argon {
		attrs = []string{"userPassword"}
	}

	result, err := r.providerData.Execute(ctx, ldapclient.NewReadRequest(dn).Select(attrs...))
	if err != nil {
		resp.Diagnostics.AddError("Error Reading Entry", fmt.Sprintf("Could not read %q: %s", dn, err.Error()))
		return
	}
	if result.Code == ldapclient.CodeNoSuchObject || (result.OK() && len(result.Data) == 0) {
		tflog.Warn(ctx, "LDAP entry no longer exists, removing password from state", map[string]any{"dn": dn})
		resp.State.RemoveResource(ctx)
		return
	}
	if !result.OK() {
		responseDiagnostic(&resp.Diagnostics, "Error Reading Entry", result)
		return
	}

	if argon && !passwordMatches(ctx, data.Password.ValueString(), result.Data[0].Values("userPassword")) {
		tflog.Info(ctx, "userPassword no longer matches the managed password", map[string]any{"dn": dn})
		data.Password = types.StringNull()
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *PasswordResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var data PasswordResourceModel

	ctx = initializeLogging(ctx)

	logCompletion := ldapclient.LogOperation(ctx, "ldap_password", "update", nil)
	defer func() {
		logCompletion(errorFromDiagnostics(resp.Diagnostics))
	}()

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if r.providerData == nil {
		resp.Diagnostics.AddError("Provider Not Configured", "The LDAP provider has not been configured.")
		return
	}

	r.setPassword(ctx, &data, &resp.Diagnostics)
	if resp.Diagnostics.HasError() {
		return
	}

	data.ID = types.StringValue(data.DN.Canonical().ValueString())
	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// Delete only forgets the password.
func (r *PasswordResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	ctx = initializeLogging(ctx)
	tflog.Debug(ctx, "Removing LDAP password from state; the directory is left unchanged")
}

// setPassword writes data.Password to the entry using data.Mode.
func (r *PasswordResource) setPassword(ctx context.Context, data *PasswordResourceModel, diags *diag.Diagnostics) {
	dn := data.DN.ValueString()
	mode := strings.ToLower(data.Mode.ValueString())
	if mode == "" {
		mode = passwordModeExop
	}

	var req ldapclient.Request
	switch mode {
	case passwordModeExop:
		req = &ldapclient.PasswordModifyRequest{
			User:        dn,
			OldPassword: data.OldPassword.ValueString(),
			NewPassword: data.Password.ValueString(),
		}
	case passwordModeUnicodePwd:
		encoded, err := ldapclient.EncodeUnicodePwd(data.Password.ValueString())
		if err != nil {
			diags.AddAttributeError(path.Root("password"), "Invalid Password", err.Error())
			return
		}
		req = &ldapclient.ModifyRequest{DN: dn, Mode: ldapclient.ModifyReplace, Attributes: map[string][]string{"unicodePwd": {encoded}}}
	case passwordModeArgon2:
		hashed, err := ldapclient.HashPassword(data.Password.ValueString(), ldapclient.DefaultArgon2Params())
		if err != nil {
			diags.AddError("Error Hashing Password", err.Error())
			return
		}
		req = &ldapclient.ModifyRequest{DN: dn, Mode: ldapclient.ModifyReplace, Attributes: map[string][]string{"userPassword": {hashed}}}
	default:
		diags.AddAttributeError(path.Root("mode"), "Invalid Password Mode", fmt.Sprintf("Unsupported mode %q.", mode))
		return
	}

	tflog.Debug(ctx, "Setting LDAP password", map[string]any{"dn": dn, "mode": mode})

	result, err := r.providerData.Execute(ctx, req)
	if err != nil {
		diags.AddError("Error Setting Password", fmt.Sprintf("Could not set the password of %q: %s", dn, err.Error()))
		return
	}
	if !result.OK() {
		responseDiagnostic(diags, "Error Setting Password", result)
	}
}

// passwordMatches reports whether any {ARGON2} value verifies against
// password. Unreadable or foreign values are treated as a match so that
// servers hiding userPassword do not cause perpetual drift.
func passwordMatches(ctx context.Context, password string, values []string) bool {
	checked := false
	for _, v := range values {
		ok, err := ldapclient.VerifyPassword(password, v)
		if err != nil {
			tflog.Trace(ctx, "Skipping userPassword value", map[string]any{"error": err.Error()})
			continue
		}
		if ok {
			return true
		}
		checked = true
	}
	return !checked
}
