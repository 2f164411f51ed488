package util

import "strings"

// NormalizePhone strips a leading '+' and every non-digit, so
// "+55 11 98888-7777" becomes "5511988887777".
func NormalizePhone(p string) string {
	p = strings.TrimPrefix(strings.TrimSpace(p), "+")
	var b strings.Builder
	b.Grow(len(p))
	for _, r := range p {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ChannelAddress is the gateway form of a stored contact.
func ChannelAddress(contact string) string {
	return "+" + contact
}
