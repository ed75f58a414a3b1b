package contact

import "strings"

// NormalizePhone reduces a raw number or JID to canonical "+digits"
// form. Anything without digits normalizes to empty.
func NormalizePhone(raw string) string {
	digits := Digits(raw)
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// Digits strips everything but 0-9. A JID server suffix is dropped
// first so "5511999990000@s.whatsapp.net" keeps only the number part.
func Digits(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, '@'); i >= 0 {
		raw = raw[:i]
	}
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
