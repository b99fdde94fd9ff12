package provider

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-framework/function"
	"github.com/hashicorp/terraform-plugin-framework/types"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
	"github.com/isometry/terraform-provider-ldap/internal/provider/helpers"
)

var (
	_ function.Function = EscapeDNValueFunction{}
	_ function.Function = EscapeFilterValueFunction{}
	_ function.Function = BuildFilterFunction{}
)

func NewEscapeDNValueFunction() function.Function { return EscapeDNValueFunction{} }

func NewEscapeFilterValueFunction() function.Function { return EscapeFilterValueFunction{} }

func NewBuildFilterFunction() function.Function { return BuildFilterFunction{} }

type EscapeDNValueFunction struct{}

func (f EscapeDNValueFunction) Metadata(_ context.Context, req function.MetadataRequest, resp *function.MetadataResponse) {
	resp.Name = "escape_dn_value"
}

func (f EscapeDNValueFunction) Definition(_ context.Context, req function.DefinitionRequest, resp *function.DefinitionResponse) {
	resp.Definition = function.Definition{
		Summary:             "Escape a value for use in a Distinguished Name",
		MarkdownDescription: "Escapes an attribute value per RFC 4514 so it can be embedded in a DN, e.g. `\"cn=${provider::ldap::escape_dn_value(\"Doe, John\")},ou=people,dc=example\"`.",
		Parameters: []function.Parameter{
			function.StringParameter{
				Name:        "value",
				Description: "The raw attribute value.",
			},
		},
		Return: function.StringReturn{},
	}
}

func (f EscapeDNValueFunction) Run(ctx context.Context, req function.RunRequest, resp *function.RunResponse) {
	var value string

	resp.Error = function.ConcatFuncErrors(resp.Error, req.Arguments.Get(ctx, &value))
	if resp.Error != nil {
		return
	}

	resp.Error = function.ConcatFuncErrors(resp.Error, resp.Result.Set(ctx, ldapclient.EscapeDNValue(value)))
}

type EscapeFilterValueFunction struct{}

func (f EscapeFilterValueFunction) Metadata(_ context.Context, req function.MetadataRequest, resp *function.MetadataResponse) {
	resp.Name = "escape_filter_value"
}

func (f EscapeFilterValueFunction) Definition(_ context.Context, req function.DefinitionRequest, resp *function.DefinitionResponse) {
	resp.Definition = function.Definition{
		Summary:             "Escape a value for use in a search filter",
		MarkdownDescription: "Escapes `*`, `(`, `)`, `\\` and NUL per RFC 4515 so the value matches literally inside a filter.",
		Parameters: []function.Parameter{
			function.StringParameter{
				Name:        "value",
				Description: "The raw assertion value.",
			},
		},
		Return: function.StringReturn{},
	}
}

func (f EscapeFilterValueFunction) Run(ctx context.Context, req function.RunRequest, resp *function.RunResponse) {
	var value string

	resp.Error = function.ConcatFuncErrors(resp.Error, req.Arguments.Get(ctx, &value))
	if resp.Error != nil {
		return
	}

	resp.Error = function.ConcatFuncErrors(resp.Error, resp.Result.Set(ctx, ldap.EscapeFilter(value)))
}

// BuildFilterFunction turns an object of attribute assertions into an
// equality filter.
type BuildFilterFunction struct{}

func (f BuildFilterFunction) Metadata(_ context.Context, req function.MetadataRequest, resp *function.MetadataResponse) {
	resp.Name = "build_filter"
}

func (f BuildFilterFunction) Definition(_ context.Context, req function.DefinitionRequest, resp *function.DefinitionResponse) {
	resp.Definition = function.Definition{
		Summary: "Build an equality search filter",
		MarkdownDescription: "Builds an AND of equality assertions from an object or map, escaping every value. " +
			"A list value matches any of its elements and `null` tests for presence:\n\n" +
			"`build_filter({ objectClass = \"person\", uid = [\"alice\", \"bob\"], mail = null })` returns " +
			"`(&(mail=*)(objectClass=person)(|(uid=alice)(uid=bob)))`.\n\n" +
			"Attributes are emitted in name order. A single assertion is returned without the `&` wrapper.",
		Parameters: []function.Parameter{
			function.DynamicParameter{
				Name:        "assertions",
				Description: "Object or map of attribute name to value, list of values, or null.",
			},
		},
		Return: function.StringReturn{},
	}
}

func (f BuildFilterFunction) Run(ctx context.Context, req function.RunRequest, resp *function.RunResponse) {
	var assertions types.Dynamic

	resp.Error = function.ConcatFuncErrors(resp.Error, req.Arguments.Get(ctx, &assertions))
	if resp.Error != nil {
		return
	}

	values, err := helpers.DynamicValueToMap(ctx, assertions)
	if err != nil {
		resp.Error = function.NewArgumentFuncError(0, err.Error())
		return
	}

	filter, err := buildFilter(values)
	if err != nil {
		resp.Error = function.NewArgumentFuncError(0, err.Error())
		return
	}

	resp.Error = function.ConcatFuncErrors(resp.Error, resp.Result.Set(ctx, filter))
}

func buildFilter(assertions map[string]any) (string, error) {
	if len(assertions) == 0 {
		return "", fmt.Errorf("at least one assertion is required")
	}

	terms := make([]string, 0, len(assertions))
	for _, name := range slices.Sorted(maps.Keys(assertions)) {
		term, err := assertionTerm(name, assertions[name])
		if err != nil {
			return "", fmt.Errorf("%s: %w", name, err)
		}
		terms = append(terms, term)
	}

	if len(terms) == 1 {
		return terms[0], nil
	}
	return "(&" + strings.Join(terms, "") + ")", nil
}

func assertionTerm(name string, value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "(" + name + "=*)", nil
	case []any:
		if len(v) == 0 {
			return "", fmt.Errorf("list must not be empty")
		}
		terms := make([]string, len(v))
		for i, elem := range v {
			if _, ok := elem.([]any); ok || elem == nil {
				return "", fmt.Errorf("list elements must be scalar values")
			}
			term, err := assertionTerm(name, elem)
			if err != nil {
				return "", err
			}
			terms[i] = term
		}
		if len(terms) == 1 {
			return terms[0], nil
		}
		return "(|" + strings.Join(terms, "") + ")", nil
	case string:
		return "(" + name + "=" + ldap.EscapeFilter(v) + ")", nil
	case bool:
		// Boolean syntax (RFC 4517) is upper-case.
		return "(" + name + "=" + strings.ToUpper(fmt.Sprint(v)) + ")", nil
	case int64, float64:
		return "(" + name + "=" + fmt.Sprint(v) + ")", nil
	default:
		return "", fmt.Errorf("unsupported value type %T", value)
	}
}
