package ldap

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// normalizeEntries converts raw entries into Objects, merging split
// attributes and dropping purely numeric attribute names.
func normalizeEntries(entries []*ldap.Entry) []Object {
	objects := make([]Object, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		attrs, raw := mergeSplitAttributes(entry.Attributes)
		objects = append(objects, Object{DN: entry.DN, Attributes: attrs, Raw: raw})
	}
	return objects
}

type fragment struct {
	rangeLow int
	ranged   bool
	values   []string
	raw      [][]byte
}

// mergeSplitAttributes collapses "name;option" fragments into "name". When
// every fragment of an attribute carries a range option the values are
// joined in range order, otherwise in the order received. Names match
// case-insensitively; the first spelling seen is kept.
func mergeSplitAttributes(attributes []*ldap.EntryAttribute) (map[string][]string, map[string][][]byte) {
	var order []string
	spelling := make(map[string]string)
	fragments := make(map[string][]fragment)

	for _, attr := range attributes {
		if attr == nil {
			continue
		}

		base, options, _ := strings.Cut(attr.Name, ";")
		if base == "" || isNumeric(base) {
			continue
		}

		key := strings.ToLower(base)
		if _, seen := spelling[key]; !seen {
			spelling[key] = base
			order = append(order, key)
		}

		low, ranged := rangeLow(options)
		fragments[key] = append(fragments[key], fragment{
			rangeLow: low,
			ranged:   ranged,
			values:   attr.Values,
			raw:      attr.ByteValues,
		})
	}

	values := make(map[string][]string, len(order))
	raw := make(map[string][][]byte, len(order))

	for _, key := range order {
		frags := fragments[key]
		if len(frags) > 1 && allRanged(frags) {
			slices.SortStableFunc(frags, func(a, b fragment) int {
				return cmp.Compare(a.rangeLow, b.rangeLow)
			})
		}

		name := spelling[key]
		merged := make([]string, 0)
		var mergedRaw [][]byte
		for _, f := range frags {
			merged = append(merged, f.values...)
			mergedRaw = append(mergedRaw, f.raw...)
		}
		values[name] = merged
		raw[name] = mergedRaw
	}

	return values, raw
}

// rangeLow extracts lo from a "range=lo-hi" option.
func rangeLow(options string) (int, bool) {
	for opt := range strings.SplitSeq(options, ";") {
		spec, ok := strings.CutPrefix(strings.ToLower(opt), "range=")
		if !ok {
			continue
		}
		lo, _, ok := strings.Cut(spec, "-")
		if !ok {
			return 0, false
		}
		n, err := strconv.Atoi(lo)
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func allRanged(frags []fragment) bool {
	for _, f := range frags {
		if !f.ranged {
			return false
		}
	}
	return true
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// vendorSubCode decodes the Active Directory sub-code from a bind
// diagnostic such as "...: AcceptSecurityContext error, data 52e, v4563".
// The second-to-last comma separated segment is "data <hex>".
func vendorSubCode(diagnostic string) (ResultCode, bool) {
	segments := strings.Split(diagnostic, ",")
	if len(segments) < 2 {
		return 0, false
	}

	tokens := strings.Split(strings.TrimSpace(segments[len(segments)-2]), " ")
	if len(tokens) < 2 {
		return 0, false
	}

	n, err := strconv.ParseUint(tokens[1], 16, 16)
	if err != nil || n == 0 {
		return 0, false
	}

	code := ResultCode(n)
	if code == CodeVendorInvalidCredentials {
		code = CodeInvalidCredentials
	}
	return code, true
}
