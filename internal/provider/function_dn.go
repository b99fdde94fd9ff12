package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-framework/function"
	"github.com/hashicorp/terraform-plugin-framework/types"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
	"github.com/isometry/terraform-provider-ldap/internal/provider/helpers"
)

var (
	_ function.Function = CanonicalDNFunction{}
	_ function.Function = ParentDNFunction{}
	_ function.Function = ParseDNFunction{}
	_ function.Function = IsDescendantDNFunction{}
)

func NewCanonicalDNFunction() function.Function { return CanonicalDNFunction{} }

func NewParentDNFunction() function.Function { return ParentDNFunction{} }

func NewParseDNFunction() function.Function { return ParseDNFunction{} }

func NewIsDescendantDNFunction() function.Function { return IsDescendantDNFunction{} }

func dnParameter(name, description string) function.StringParameter {
	return function.StringParameter{
		Name:                name,
		Description:         description,
		MarkdownDescription: description,
	}
}

// CanonicalDNFunction rewrites a DN with upper-case attribute types and
// minimal escaping.
type CanonicalDNFunction struct{}

func (f CanonicalDNFunction) Metadata(_ context.Context, req function.MetadataRequest, resp *function.MetadataResponse) {
	resp.Name = "canonical_dn"
}

func (f CanonicalDNFunction) Definition(_ context.Context, req function.DefinitionRequest, resp *function.DefinitionResponse) {
	resp.Definition = function.Definition{
		Summary: "Canonicalize a Distinguished Name",
		MarkdownDescription: "Returns the DN with upper-case attribute types, no insignificant whitespace and values re-escaped per RFC 4514. " +
			"Value case is preserved: `canonical_dn(\"cn=Doe\\\\2C John, dc=example\")` returns `CN=Doe\\, John,DC=example`.",
		Parameters: []function.Parameter{
			dnParameter("dn", "The Distinguished Name to canonicalize."),
		},
		Return: function.StringReturn{},
	}
}

func (f CanonicalDNFunction) Run(ctx context.Context, req function.RunRequest, resp *function.RunResponse) {
	var dn string

	resp.Error = function.ConcatFuncErrors(resp.Error, req.Arguments.Get(ctx, &dn))
	if resp.Error != nil {
		return
	}

	canonical, err := ldapclient.CanonicalDN(dn)
	if err != nil {
		resp.Error = function.NewArgumentFuncError(0, err.Error())
		return
	}

	resp.Error = function.ConcatFuncErrors(resp.Error, resp.Result.Set(ctx, canonical))
}

// ParentDNFunction strips the leading RDN.
type ParentDNFunction struct{}

func (f ParentDNFunction) Metadata(_ context.Context, req function.MetadataRequest, resp *function.MetadataResponse) {
	resp.Name = "parent_dn"
}

func (f ParentDNFunction) Definition(_ context.Context, req function.DefinitionRequest, resp *function.DefinitionResponse) {
	resp.Definition = function.Definition{
		Summary:             "Parent of a Distinguished Name",
		MarkdownDescription: "Returns the DN of the entry's parent, in canonical form. A DN with a single RDN has no parent and is an error.",
		Parameters: []function.Parameter{
			dnParameter("dn", "The Distinguished Name of the child entry."),
		},
		Return: function.StringReturn{},
	}
}

func (f ParentDNFunction) Run(ctx context.Context, req function.RunRequest, resp *function.RunResponse) {
	var dn string

	resp.Error = function.ConcatFuncErrors(resp.Error, req.Arguments.Get(ctx, &dn))
	if resp.Error != nil {
		return
	}

	parent, err := ldapclient.ParentDN(dn)
	if err != nil {
		resp.Error = function.NewArgumentFuncError(0, err.Error())
		return
	}

	resp.Error = function.ConcatFuncErrors(resp.Error, resp.Result.Set(ctx, parent))
}

// ParseDNFunction breaks a DN into its RDNs.
type ParseDNFunction struct{}

func (f ParseDNFunction) Metadata(_ context.Context, req function.MetadataRequest, resp *function.MetadataResponse) {
	resp.Name = "parse_dn"
}

func (f ParseDNFunction) Definition(_ context.Context, req function.DefinitionRequest, resp *function.DefinitionResponse) {
	resp.Definition = function.Definition{
		Summary: "Split a Distinguished Name into its components",
		MarkdownDescription: "Returns an object with `rdn` (the leading RDN), `parent` (the rest of the DN, empty for a single RDN) " +
			"and `components`: a tuple with one object per RDN, mapping each attribute type to its unescaped value. " +
			"`parse_dn(\"cn=john+uid=jdoe,dc=example\").components` is `[{cn = \"john\", uid = \"jdoe\"}, {dc = \"example\"}]`.",
		Parameters: []function.Parameter{
			dnParameter("dn", "The Distinguished Name to parse."),
		},
		Return: function.DynamicReturn{},
	}
}

func (f ParseDNFunction) Run(ctx context.Context, req function.RunRequest, resp *function.RunResponse) {
	var dn string

	resp.Error = function.ConcatFuncErrors(resp.Error, req.Arguments.Get(ctx, &dn))
	if resp.Error != nil {
		return
	}

	parsed, err := ldapclient.ParseDN(dn)
	if err != nil {
		resp.Error = function.NewArgumentFuncError(0, err.Error())
		return
	}
	rdn, parent, err := ldapclient.SplitDN(dn)
	if err != nil {
		resp.Error = function.NewArgumentFuncError(0, err.Error())
		return
	}

	components := make([]any, len(parsed.RDNs))
	for i, r := range parsed.RDNs {
		component := make(map[string]any, len(r.Attributes))
		for _, a := range r.Attributes {
			component[a.Type] = a.Value
		}
		components[i] = component
	}

	value, err := helpers.GoValueToTerraform(ctx, map[string]any{
		"rdn":        rdn,
		"parent":     parent,
		"components": components,
	})
	if err != nil {
		resp.Error = function.NewFuncError(err.Error())
		return
	}

	resp.Error = function.ConcatFuncErrors(resp.Error, resp.Result.Set(ctx, types.DynamicValue(value)))
}

// IsDescendantDNFunction tests whether one DN lies below another.
type IsDescendantDNFunction struct{}

func (f IsDescendantDNFunction) Metadata(_ context.Context, req function.MetadataRequest, resp *function.MetadataResponse) {
	resp.Name = "is_descendant_dn"
}

func (f IsDescendantDNFunction) Definition(_ context.Context, req function.DefinitionRequest, resp *function.DefinitionResponse) {
	resp.Definition = function.Definition{
		Summary:             "Test whether a DN lies below another",
		MarkdownDescription: "Returns `true` when `dn` is strictly below `ancestor`, comparing RDNs case-insensitively. A DN is not its own descendant.",
		Parameters: []function.Parameter{
			dnParameter("dn", "The Distinguished Name to test."),
			dnParameter("ancestor", "The Distinguished Name of the candidate ancestor."),
		},
		Return: function.BoolReturn{},
	}
}

func (f IsDescendantDNFunction) Run(ctx context.Context, req function.RunRequest, resp *function.RunResponse) {
	var dn, ancestor string

	resp.Error = function.ConcatFuncErrors(resp.Error, req.Arguments.Get(ctx, &dn, &ancestor))
	if resp.Error != nil {
		return
	}

	below, err := ldapclient.IsDescendantDN(dn, ancestor)
	if err != nil {
		resp.Error = function.NewFuncError(err.Error())
		return
	}

	resp.Error = function.ConcatFuncErrors(resp.Error, resp.Result.Set(ctx, below))
}
