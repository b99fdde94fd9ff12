package validators

import (
	"context"
	"fmt"
	"regexp"

	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
)

var _ validator.String = attributeNameValidator{}

// attributeDescription matches an RFC 4512 attribute description: a
// keystring or numeric OID, followed by optional ";option" parts.
var attributeDescription = regexp.MustCompile(`^(?:[A-Za-z][A-Za-z0-9-]*|[0-9]+(?:\.[0-9]+)+)(?:;[A-Za-z0-9-]+)*$`)

type attributeNameValidator struct{}

func (v attributeNameValidator) Description(_ context.Context) string {
	return "value must be an LDAP attribute name or OID"
}

func (v attributeNameValidator) MarkdownDescription(ctx context.Context) string {
	return v.Description(ctx)
}

func (v attributeNameValidator) ValidateString(ctx context.Context, request validator.StringRequest, response *validator.StringResponse) {
	if request.ConfigValue.IsNull() || request.ConfigValue.IsUnknown() {
		return
	}

	value := request.ConfigValue.ValueString()
	if !attributeDescription.MatchString(value) {
		response.Diagnostics.AddAttributeError(
			request.Path,
			"Invalid Attribute Name",
			fmt.Sprintf("The value %q is not a valid LDAP attribute name or OID.", value),
		)
	}
}

// IsAttributeName returns a validator which ensures that any configured
// value is an attribute description such as `cn`, `userCertificate;binary`
// or `2.5.4.3`.
func IsAttributeName() validator.String {
	return attributeNameValidator{}
}
