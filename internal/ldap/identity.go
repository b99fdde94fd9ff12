package ldap

import (
	"regexp"
	"strings"
)

// AuthzID formats reported by ParseAuthzID.
const (
	AuthzFormatDN      = "dn"
	AuthzFormatUPN     = "upn"
	AuthzFormatSAM     = "sam"
	AuthzFormatSID     = "sid"
	AuthzFormatEmpty   = "empty"
	AuthzFormatUnknown = "unknown"
)

var sidPattern = regexp.MustCompile(`^S-\d+-\d+(-\d+)*$`)

// Identity is a "Who am I?" authorization identity broken into its
// recognised form. At most one of DN, UserPrincipalName, SAMAccountName
// and SID is set.
type Identity struct {
	AuthzID           string
	Format            string
	DN                string
	UserPrincipalName string
	SAMAccountName    string
	SID               string
}

// ParseAuthzID classifies an authorization identity as returned by the
// WhoAmI extended operation. The "dn:" and "u:" prefixes of RFC 4513 are
// stripped before classification.
func ParseAuthzID(authzID string) Identity {
	id := Identity{AuthzID: authzID}

	switch {
	case strings.HasPrefix(authzID, "dn:"):
		id.Format = AuthzFormatDN
		id.DN = strings.TrimPrefix(authzID, "dn:")
		if id.DN == "" {
			id.Format = AuthzFormatEmpty
		}
		return id
	case authzID == "":
		id.Format = AuthzFormatEmpty
		return id
	}

	clean := strings.TrimPrefix(authzID, "u:")

	switch {
	case clean == "":
		id.Format = AuthzFormatEmpty
	case sidPattern.MatchString(clean):
		id.Format = AuthzFormatSID
		id.SID = clean
	case strings.Contains(clean, `\`):
		id.Format = AuthzFormatSAM
		id.SAMAccountName = clean
	case strings.Contains(clean, "@"):
		id.Format = AuthzFormatUPN
		id.UserPrincipalName = clean
	case strings.Contains(clean, "="):
		if _, err := ParseDN(clean); err == nil {
			id.Format = AuthzFormatDN
			id.DN = clean
			break
		}
		id.Format = AuthzFormatUnknown
	default:
		id.Format = AuthzFormatUnknown
	}

	return id
}
