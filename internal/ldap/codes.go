package ldap

import (
	"fmt"

	"github.com/go-ldap/ldap/v3"
)

// ResultCode is an LDAP result code, extended with Active Directory
// sub-codes decoded from bind diagnostics.
type ResultCode uint16

// Standard result codes used directly by this package.
const (
	CodeSuccess             ResultCode = ldap.LDAPResultSuccess
	CodeOperationsError     ResultCode = ldap.LDAPResultOperationsError
	CodeProtocolError       ResultCode = ldap.LDAPResultProtocolError
	CodeTimeLimitExceeded   ResultCode = ldap.LDAPResultTimeLimitExceeded
	CodeSizeLimitExceeded   ResultCode = ldap.LDAPResultSizeLimitExceeded
	CodeCompareFalse        ResultCode = ldap.LDAPResultCompareFalse
	CodeCompareTrue         ResultCode = ldap.LDAPResultCompareTrue
	CodeReferral            ResultCode = ldap.LDAPResultReferral
	CodeNoSuchObject        ResultCode = ldap.LDAPResultNoSuchObject
	CodeNotAllowedOnNonLeaf ResultCode = ldap.LDAPResultNotAllowedOnNonLeaf
	CodeEntryAlreadyExists  ResultCode = ldap.LDAPResultEntryAlreadyExists
	CodeInvalidCredentials  ResultCode = ldap.LDAPResultInvalidCredentials
	CodeInsufficientAccess  ResultCode = ldap.LDAPResultInsufficientAccessRights
	CodeBusy                ResultCode = ldap.LDAPResultBusy
	CodeUnavailable         ResultCode = ldap.LDAPResultUnavailable
	CodeServerDown          ResultCode = ldap.LDAPResultServerDown
	CodeOther               ResultCode = ldap.LDAPResultOther
	CodeNetworkError        ResultCode = ldap.ErrorNetwork
)

// Active Directory sub-codes. The directory reports them as hexadecimal
// tokens in the diagnostic message of an invalidCredentials bind, e.g.
// "80090308: LdapErr: DSID-0C09044E, comment: AcceptSecurityContext error, data 52e, v4563".
const (
	CodeUserNotFound                  ResultCode = 0x525
	CodeVendorInvalidCredentials      ResultCode = 0x52e
	CodeNotPermittedToLogonAtThisTime ResultCode = 0x530
	CodeRestrictedToSpecificMachines  ResultCode = 0x531
	CodePasswordExpired               ResultCode = 0x532
	CodeAccountDisabled               ResultCode = 0x533
	CodeAccountExpired                ResultCode = 0x701
	CodeUserMustResetPassword         ResultCode = 0x773
	CodeAccountLockedOut              ResultCode = 0x775
)

var vendorCodeMessages = map[ResultCode]string{
	CodeUserNotFound:                  "User not found",
	CodeVendorInvalidCredentials:      "Invalid credentials",
	CodeNotPermittedToLogonAtThisTime: "Not permitted to logon at this time",
	CodeRestrictedToSpecificMachines:  "Not permitted to logon from this workstation",
	CodePasswordExpired:               "Password expired",
	CodeAccountDisabled:               "Account disabled",
	CodeAccountExpired:                "Account expired",
	CodeUserMustResetPassword:         "User must reset password",
	CodeAccountLockedOut:              "Account locked out",
}

// OK reports whether the code denotes a usable outcome: success, a size
// limit hit with partial data, or either compare verdict.
func (c ResultCode) OK() bool {
	switch c {
	case CodeSuccess, CodeSizeLimitExceeded, CodeCompareFalse, CodeCompareTrue:
		return true
	default:
		return false
	}
}

// IsVendor reports whether c is an Active Directory sub-code.
func (c ResultCode) IsVendor() bool {
	_, ok := vendorCodeMessages[c]
	return ok
}

// String returns the canonical message for the code.
func (c ResultCode) String() string {
	if msg, ok := vendorCodeMessages[c]; ok {
		return msg
	}
	if msg, ok := ldap.LDAPResultCodeMap[uint16(c)]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown error (code %d)", uint16(c))
}
