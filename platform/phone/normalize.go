// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const displayRegion = "US"

// NormalizeE164 reduces a loosely formatted phone number to a North American
// E.164 string. Ten digits get a +1 prefix, eleven digits starting with 1 get
// a + prefix. Any other digit count is rejected rather than guessed.
func NormalizeE164(input string) (string, bool) {
	var b strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 10:
		return "+1" + digits, true
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits, true
	default:
		return "", false
	}
}

// Display formats an E.164 number for humans, e.g. "(416) 555-0000".
// If parsing fails, it returns the input unchanged.
func Display(e164 string) string {
	trimmed := strings.TrimSpace(e164)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, displayRegion)
	if err != nil {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.NATIONAL)
}

// ParseInternational normalizes a number that already carries a country
// code (as Square returns them) and falls back to NormalizeE164 for bare
// North American digits.
func ParseInternational(input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", false
	}
	if !strings.HasPrefix(trimmed, "+") {
		return NormalizeE164(trimmed)
	}

	number, err := phonenumbers.Parse(trimmed, displayRegion)
	if err != nil || !phonenumbers.IsPossibleNumber(number) {
		return "", false
	}

	return NormalizeE164(phonenumbers.Format(number, phonenumbers.E164))
}
