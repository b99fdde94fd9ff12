package validators

import (
	"context"
	"fmt"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
)

var _ validator.String = filterValidator{}

// filterValidator checks that a string compiles as an RFC 4515 search filter.
type filterValidator struct{}

func (v filterValidator) Description(_ context.Context) string {
	return "value must be a valid LDAP search filter"
}

func (v filterValidator) MarkdownDescription(ctx context.Context) string {
	return "value must be a valid LDAP search filter, e.g. `(&(objectClass=person)(uid=jdoe))`"
}

func (v filterValidator) ValidateString(ctx context.Context, request validator.StringRequest, response *validator.StringResponse) {
	if request.ConfigValue.IsNull() || request.ConfigValue.IsUnknown() {
		return
	}

	value := request.ConfigValue.ValueString()
	if _, err := ldap.CompileFilter(value); err != nil {
		response.Diagnostics.AddAttributeError(
			request.Path,
			"Invalid Search Filter",
			fmt.Sprintf("The value %q is not a valid LDAP search filter: %s", value, err.Error()),
		)
	}
}

// IsValidFilter returns a validator which ensures that any configured
// attribute value is a valid LDAP search filter.
func IsValidFilter() validator.String {
	return filterValidator{}
}
