package provider

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework-validators/mapvalidator"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
	customtypes "github.com/isometry/terraform-provider-ldap/internal/provider/types"
	"github.com/isometry/terraform-provider-ldap/internal/provider/validators"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ resource.Resource = &EntryResource{}
var _ resource.ResourceWithImportState = &EntryResource{}
var _ resource.ResourceWithValidateConfig = &EntryResource{}

// identifierAttributes are requested alongside the managed attributes to
// populate uuid.
var identifierAttributes = []string{"entryUUID", "objectGUID"}

func NewEntryResource() resource.Resource {
	return &EntryResource{}
}

// EntryResource manages a single directory entry and the attributes named
// in its configuration. Attributes not named are left alone.
type EntryResource struct {
	providerData *ldapclient.ProviderData
}

// EntryResourceModel describes the resource data model.
type EntryResourceModel struct {
	ID         types.String              `tfsdk:"id"`         // Canonical DN
	DN         customtypes.DNStringValue `tfsdk:"dn"`         // Required
	Attributes types.Map                 `tfsdk:"attributes"` // map(set(string))
	UUID       types.String              `tfsdk:"uuid"`       // entryUUID or objectGUID
}

func (r *EntryResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_entry"
}

func (r *EntryResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Manages a directory entry. Only the attributes listed in `attributes` are managed: " +
			"values the server adds on its own (for example `objectClass: top` or operational attributes) " +
			"show as drift only when the attribute is listed. Changing `dn` renames or moves the entry in place.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "The canonical DN of the entry.",
				Computed:            true,
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "Distinguished name of the entry, e.g. `cn=app,ou=services,dc=example,dc=com`.",
				Required:            true,
				CustomType:          customtypes.DNStringType{},
				Validators: []validator.String{
					validators.IsValidDN(),
				},
			},
			"attributes": schema.MapAttribute{
				MarkdownDescription: "Attribute values keyed by attribute name. Must include `objectClass`. " +
					"Attribute names are matched case-insensitively against the server.",
				ElementType: types.SetType{ElemType: types.StringType},
				Required:    true,
				Validators: []validator.Map{
					mapvalidator.SizeAtLeast(1),
					mapvalidator.KeysAre(validators.IsAttributeName()),
				},
			},
			"uuid": schema.StringAttribute{
				MarkdownDescription: "The entry's `entryUUID` (RFC 4530) or Active Directory `objectGUID`, when the server provides one.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
		},
	}
}

func (r *EntryResource) ValidateConfig(ctx context.Context, req resource.ValidateConfigRequest, resp *resource.ValidateConfigResponse) {
	var data EntryResourceModel

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() || data.Attributes.IsNull() || data.Attributes.IsUnknown() {
		return
	}

	for name := range data.Attributes.Elements() {
		if strings.EqualFold(name, "objectClass") {
			return
		}
	}

	resp.Diagnostics.AddAttributeError(
		path.Root("attributes"),
		"Missing objectClass",
		"attributes must include objectClass so the server can create the entry.",
	)
}

func (r *EntryResource) Configure(ctx context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	r.providerData = providerDataFrom(req.ProviderData, "Resource", &resp.Diagnostics)
}

func (r *EntryResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data EntryResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if r.providerData == nil {
		resp.Diagnostics.AddError("Provider Not Configured", "The LDAP provider has not been configured.")
		return
	}

	attrs, diags := attributeValues(ctx, data.Attributes)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	dn := data.DN.ValueString()
	tflog.Debug(ctx, "Creating LDAP entry", map[string]any{
		"dn":         dn,
		"attributes": slices.Sorted(maps.Keys(attrs)),
	})

	result, err := r.providerData.Execute(ctx, &ldapclient.AddRequest{DN: dn, Attributes: attrs})
	if err != nil {
		resp.Diagnostics.AddError("Error Creating Entry", fmt.Sprintf("Could not add %q: %s", dn, err.Error()))
		return
	}
	if result.Code == ldapclient.CodeEntryAlreadyExists {
		responseDiagnostic(&resp.Diagnostics, "Entry Already Exists", result)
		resp.Diagnostics.AddAttributeWarning(
			path.Root("dn"),
			"Import Existing Entry",
			fmt.Sprintf("To manage the existing entry, import it with: terraform import <address> %q", dn),
		)
		return
	}
	if !result.OK() {
		responseDiagnostic(&resp.Diagnostics, "Error Creating Entry", result)
		return
	}

	obj, found := r.readEntry(ctx, dn, slices.Collect(maps.Keys(attrs)), &resp.Diagnostics)
	if resp.Diagnostics.HasError() {
		return
	}
	if !found {
		resp.Diagnostics.AddError(
			"Entry Not Found After Create",
			fmt.Sprintf("The server accepted the add of %q but the entry could not be read back.", dn),
		)
		return
	}

	tflog.Debug(ctx, "Created LDAP entry", map[string]any{"dn": obj.DN})

	resp.Diagnostics.Append(updateModelFromEntry(ctx, &data, obj, slices.Collect(maps.Keys(attrs)))...)
	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *EntryResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data EntryResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if r.providerData == nil {
		resp.Diagnostics.AddError("Provider Not Configured", "The LDAP provider has not been configured.")
		return
	}

	keys := managedKeys(data.Attributes)

	obj, found := r.readEntry(ctx, data.DN.ValueString(), keys, &resp.Diagnostics)
	if resp.Diagnostics.HasError() {
		return
	}
	if !found {
		tflog.Warn(ctx, "LDAP entry no longer exists, removing from state", map[string]any{
			"dn": data.DN.ValueString(),
		})
		resp.State.RemoveResource(ctx)
		return
	}

	resp.Diagnostics.Append(updateModelFromEntry(ctx, &data, obj, keys)...)
	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *EntryResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var plan, state EntryResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if r.providerData == nil {
		resp.Diagnostics.AddError("Provider Not Configured", "The LDAP provider has not been configured.")
		return
	}

	dn := state.DN.ValueString()
	if !ldapclient.EqualDN(dn, plan.DN.ValueString()) {
		renamed, ok := r.rename(ctx, dn, plan.DN.ValueString(), &resp.Diagnostics)
		if !ok {
			return
		}
		dn = renamed
	}

	planned, diags := attributeValues(ctx, plan.Attributes)
	resp.Diagnostics.Append(diags...)
	current, diags := attributeValues(ctx, state.Attributes)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	replace, remove := attributeChanges(current, planned)

	tflog.Debug(ctx, "Updating LDAP entry", map[string]any{
		"dn":      dn,
		"replace": slices.Sorted(maps.Keys(replace)),
		"remove":  slices.Sorted(maps.Keys(remove)),
	})

	for _, change := range []*ldapclient.ModifyRequest{
		{DN: dn, Mode: ldapclient.ModifyReplace, Attributes: replace},
		{DN: dn, Mode: ldapclient.ModifyDelete, Attributes: remove},
	} {
		if len(change.Attributes) == 0 {
			continue
		}
		result, err := r.providerData.Execute(ctx, change)
		if err != nil {
			resp.Diagnostics.AddError("Error Updating Entry", fmt.Sprintf("Could not modify %q: %s", dn, err.Error()))
			return
		}
		if !result.OK() {
			responseDiagnostic(&resp.Diagnostics, "Error Updating Entry", result)
			return
		}
	}

	keys := slices.Collect(maps.Keys(planned))
	obj, found := r.readEntry(ctx, dn, keys, &resp.Diagnostics)
	if resp.Diagnostics.HasError() {
		return
	}
	if !found {
		resp.Diagnostics.AddError("Entry Not Found After Update", fmt.Sprintf("The entry %q could not be read back.", dn))
		return
	}

	resp.Diagnostics.Append(updateModelFromEntry(ctx, &plan, obj, keys)...)
	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

func (r *EntryResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data EntryResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if r.providerData == nil {
		resp.Diagnostics.AddError("Provider Not Configured", "The LDAP provider has not been configured.")
		return
	}

	dn := data.DN.ValueString()
	tflog.Debug(ctx, "Deleting LDAP entry", map[string]any{"dn": dn})

	result, err := r.providerData.Execute(ctx, &ldapclient.DeleteRequest{DN: dn})
	if err != nil {
		resp.Diagnostics.AddError("Error Deleting Entry", fmt.Sprintf("Could not delete %q: %s", dn, err.Error()))
		return
	}

	switch {
	case result.Code == ldapclient.CodeNoSuchObject:
		tflog.Debug(ctx, "LDAP entry already deleted", map[string]any{"dn": dn})
	case result.Code == ldapclient.CodeNotAllowedOnNonLeaf:
		responseDiagnostic(&resp.Diagnostics, "Error Deleting Entry With Children", result)
	case !result.OK():
		responseDiagnostic(&resp.Diagnostics, "Error Deleting Entry", result)
	}
}

// ImportState imports an entry by DN. Every user attribute the server
// returns becomes managed.
func (r *EntryResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	ctx = initializeLogging(ctx)

	dn := strings.TrimSpace(req.ID)
	if _, err := ldapclient.ParseDN(dn); err != nil {
		resp.Diagnostics.AddError("Invalid Import ID", fmt.Sprintf("The import ID must be the entry's DN: %s", err.Error()))
		return
	}

	if r.providerData == nil {
		resp.Diagnostics.AddError("Provider Not Configured", "The LDAP provider has not been configured.")
		return
	}

	obj, found := r.readEntry(ctx, dn, nil, &resp.Diagnostics)
	if resp.Diagnostics.HasError() {
		return
	}
	if !found {
		resp.Diagnostics.AddError("Entry Not Found", fmt.Sprintf("No entry exists at %q.", dn))
		return
	}

	tflog.Debug(ctx, "Imported LDAP entry", map[string]any{"dn": obj.DN})

	data := EntryResourceModel{DN: customtypes.DNString(dn)}
	resp.Diagnostics.Append(updateModelFromEntry(ctx, &data, obj, slices.Collect(maps.Keys(obj.Attributes)))...)
	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// readEntry reads dn with the given attributes, or all user attributes when
// keys is empty. found is false when the entry does not exist.
func (r *EntryResource) readEntry(ctx context.Context, dn string, keys []string, diags *diag.Diagnostics) (obj ldapclient.Object, found bool) {
	attrs := []string{"*"}
	if len(keys) > 0 {
		attrs = slices.Clone(keys)
	}
	attrs = append(attrs, identifierAttributes...)

	result, err := r.providerData.Execute(ctx, ldapclient.NewReadRequest(dn).Select(attrs...))
	if err != nil {
		diags.AddError("Error Reading Entry", fmt.Sprintf("Could not read %q: %s", dn, err.Error()))
		return obj, false
	}
	if result.Code == ldapclient.CodeNoSuchObject {
		return obj, false
	}
	if !result.OK() {
		responseDiagnostic(diags, "Error Reading Entry", result)
		return obj, false
	}
	if len(result.Data) == 0 {
		return obj, false
	}
	return result.Data[0], true
}

// rename moves the entry at from to to, returning the new DN.
func (r *EntryResource) rename(ctx context.Context, from, to string, diags *diag.Diagnostics) (string, bool) {
	rdn, parent, err := ldapclient.SplitDN(to)
	if err != nil {
		diags.AddAttributeError(path.Root("dn"), "Invalid DN", err.Error())
		return "", false
	}

	req := &ldapclient.RenameRequest{DN: from, NewRDN: rdn, DeleteOldRDN: true}
	if oldParent, err := ldapclient.ParentDN(from); err != nil || !ldapclient.EqualDN(oldParent, parent) {
		req.NewParent = parent
	}

	tflog.Debug(ctx, "Renaming LDAP entry", map[string]any{
		"dn":         from,
		"new_rdn":    req.NewRDN,
		"new_parent": req.NewParent,
	})

	result, err := r.providerData.Execute(ctx, req)
	if err != nil {
		diags.AddError("Error Renaming Entry", fmt.Sprintf("Could not rename %q: %s", from, err.Error()))
		return "", false
	}
	if !result.OK() {
		responseDiagnostic(diags, "Error Renaming Entry", result)
		return "", false
	}
	return to, true
}

// attributeValues converts the attributes map into request form.
func attributeValues(ctx context.Context, m types.Map) (map[string][]string, diag.Diagnostics) {
	out := make(map[string][]string)
	if m.IsNull() || m.IsUnknown() {
		return out, nil
	}
	diags := m.ElementsAs(ctx, &out, false)
	return out, diags
}

func managedKeys(m types.Map) []string {
	if m.IsNull() || m.IsUnknown() {
		return nil
	}
	return slices.Collect(maps.Keys(m.Elements()))
}

// attributeChanges returns the attributes whose values differ between
// current and planned, and the attributes planned no longer names.
// Attribute names compare case-insensitively.
func attributeChanges(current, planned map[string][]string) (replace, remove map[string][]string) {
	replace = make(map[string][]string)
	remove = make(map[string][]string)

	for name, values := range planned {
		if old, ok := lookupFold(current, name); !ok || !sameValues(old, values) {
			replace[name] = values
		}
	}
	for name := range current {
		if _, ok := lookupFold(planned, name); !ok {
			remove[name] = []string{}
		}
	}
	return replace, remove
}

func lookupFold(m map[string][]string, name string) ([]string, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

// sameValues compares two value lists as sets.
func sameValues(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// updateModelFromEntry stores the server's view of keys, under the names
// the configuration uses. Attributes the entry no longer holds are dropped
// so that they show as drift.
func updateModelFromEntry(ctx context.Context, model *EntryResourceModel, obj ldapclient.Object, keys []string) diag.Diagnostics {
	values := make(map[string][]string, len(keys))
	for _, key := range keys {
		if slices.ContainsFunc(identifierAttributes, func(s string) bool { return strings.EqualFold(s, key) }) {
			continue
		}
		if v := obj.Values(key); len(v) > 0 {
			values[key] = slices.Compact(slices.Sorted(slices.Values(v)))
		}
	}

	attributes, diags := types.MapValueFrom(ctx, types.SetType{ElemType: types.StringType}, values)
	if diags.HasError() {
		return diags
	}
	model.Attributes = attributes

	canonical := model.DN.Canonical().ValueString()
	model.ID = types.StringValue(canonical)
	model.UUID = entryUUID(obj)

	return diags
}

// entryUUID returns entryUUID, falling back to a decoded objectGUID.
func entryUUID(obj ldapclient.Object) types.String {
	if id := obj.First("entryUUID"); id != "" {
		return types.StringValue(id)
	}
	if guid, err := obj.GUID(); err == nil {
		return types.StringValue(guid.String())
	}
	return types.StringNull()
}
