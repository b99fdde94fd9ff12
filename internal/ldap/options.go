package ldap

import "fmt"

// Option identifies a session option readable or writable through
// Link.GetOption and Link.SetOption. Numbering follows the C LDAP API.
type Option int

const (
	OptionDeref             Option = 0x02
	OptionSizeLimit         Option = 0x03
	OptionTimeLimit         Option = 0x04
	OptionReferrals         Option = 0x08
	OptionRestart           Option = 0x09
	OptionProtocolVersion   Option = 0x11
	OptionServerControls    Option = 0x12
	OptionClientControls    Option = 0x13
	OptionHostName          Option = 0x30
	OptionErrorNumber       Option = 0x31
	OptionDiagnosticMessage Option = 0x32
	OptionMatchedDN         Option = 0x33
	OptionNetworkTimeout    Option = 0x5005
)

var optionNames = map[Option]string{
	OptionDeref:             "deref",
	OptionSizeLimit:         "sizelimit",
	OptionTimeLimit:         "timelimit",
	OptionReferrals:         "referrals",
	OptionRestart:           "restart",
	OptionProtocolVersion:   "protocol_version",
	OptionServerControls:    "server_controls",
	OptionClientControls:    "client_controls",
	OptionHostName:          "host_name",
	OptionErrorNumber:       "error_number",
	OptionDiagnosticMessage: "diagnostic_message",
	OptionMatchedDN:         "matched_dn",
	OptionNetworkTimeout:    "network_timeout",
}

func (o Option) String() string {
	if name, ok := optionNames[o]; ok {
		return name
	}
	return fmt.Sprintf("option(0x%x)", int(o))
}

// readOnly reports whether the option reflects last-operation state.
func (o Option) readOnly() bool {
	switch o {
	case OptionErrorNumber, OptionDiagnosticMessage, OptionMatchedDN, OptionHostName:
		return true
	default:
		return false
	}
}
