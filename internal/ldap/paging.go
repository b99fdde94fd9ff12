package ldap

import (
	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
)

// pagingControl is an RFC 2696 request control that, unlike
// ldap.ControlPaging, can be marked critical.
type pagingControl struct {
	*ldap.ControlPaging
	Criticality bool
}

func newPagingControl(pageSize int, critical bool, cookie []byte) *pagingControl {
	ctrl := ldap.NewControlPaging(uint32(max(pageSize, 0)))
	ctrl.SetCookie(cookie)
	return &pagingControl{ControlPaging: ctrl, Criticality: critical}
}

// Encode inserts the criticality flag between the control type and value.
func (c *pagingControl) Encode() *ber.Packet {
	inner := c.ControlPaging.Encode()
	if !c.Criticality || len(inner.Children) != 2 {
		return inner
	}

	packet := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Control")
	packet.AppendChild(inner.Children[0])
	packet.AppendChild(ber.NewBoolean(ber.ClassUniversal, ber.TypePrimitive, ber.TagBoolean, true, "Criticality"))
	packet.AppendChild(inner.Children[1])
	return packet
}

// pagingResponse extracts the continuation cookie and the server's size
// estimate from response controls. Both are nil when the server sent no
// paging control.
func pagingResponse(controls []ldap.Control) (cookie []byte, estimate *int) {
	ctrl, ok := ldap.FindControl(controls, ldap.ControlTypePaging).(*ldap.ControlPaging)
	if !ok || ctrl == nil {
		return nil, nil
	}

	size := int(ctrl.PagingSize)
	if len(ctrl.Cookie) > 0 {
		cookie = append([]byte(nil), ctrl.Cookie...)
	}
	return cookie, &size
}
