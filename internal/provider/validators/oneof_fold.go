package validators

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
)

var _ validator.String = oneOfFoldValidator{}

type oneOfFoldValidator struct {
	values []string
}

func (v oneOfFoldValidator) Description(_ context.Context) string {
	return fmt.Sprintf("value must be one of: %s (case-insensitive)", strings.Join(v.values, ", "))
}

func (v oneOfFoldValidator) MarkdownDescription(_ context.Context) string {
	quoted := make([]string, len(v.values))
	for i, value := range v.values {
		quoted[i] = "`" + value + "`"
	}
	return fmt.Sprintf("value must be one of: %s (case-insensitive)", strings.Join(quoted, ", "))
}

func (v oneOfFoldValidator) ValidateString(ctx context.Context, request validator.StringRequest, response *validator.StringResponse) {
	if request.ConfigValue.IsNull() || request.ConfigValue.IsUnknown() {
		return
	}

	value := request.ConfigValue.ValueString()
	trimmed := strings.TrimSpace(value)
	for _, valid := range v.values {
		if strings.EqualFold(trimmed, valid) {
			return
		}
	}

	response.Diagnostics.AddAttributeError(
		request.Path,
		"Invalid Value",
		fmt.Sprintf("The value %q is not valid. Must be one of: %s (case-insensitive)", value, strings.Join(v.values, ", ")),
	)
}

// OneOfFold returns a validator which ensures that any configured value
// matches one of values, ignoring case and surrounding whitespace.
//
// Unknown values and null values are skipped from validation.
func OneOfFold(values ...string) validator.String {
	return oneOfFoldValidator{values: values}
}
