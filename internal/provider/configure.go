package provider

import (
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/diag"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
)

// providerDataFrom unwraps the value passed to a data source or resource
// Configure. It returns nil without diagnostics when the provider has not
// been configured yet.
func providerDataFrom(providerData any, kind string, diags *diag.Diagnostics) *ldapclient.ProviderData {
	if providerData == nil {
		return nil
	}

	pd, ok := providerData.(*ldapclient.ProviderData)
	if !ok {
		diags.AddError(
			fmt.Sprintf("Unexpected %s Configure Type", kind),
			fmt.Sprintf("Expected *ldapclient.ProviderData, got: %T. Please report this issue to the provider developers.", providerData),
		)
		return nil
	}

	return pd
}

// errorFromDiagnostics returns the first error diagnostic as an error, for
// completion logging.
func errorFromDiagnostics(diags diag.Diagnostics) error {
	errs := diags.Errors()
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s: %s", errs[0].Summary(), errs[0].Detail())
}

// responseDiagnostic describes a failed directory response.
func responseDiagnostic(diags *diag.Diagnostics, summary string, resp *ldapclient.Response) {
	detail := fmt.Sprintf("The directory returned %s (%d).", resp.Message, uint16(resp.Code))
	if resp.DiagnosticMessage != "" {
		detail += "\n\nServer Message: " + resp.DiagnosticMessage
	}
	if resp.MatchedDN != "" {
		detail += "\nMatched DN: " + resp.MatchedDN
	}
	if ldapclient.IsRetryableError(resp.Err()) {
		detail += "\n\nThis error is usually transient; retrying the operation may succeed."
	}
	diags.AddError(summary, detail)
}
