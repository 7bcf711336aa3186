package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"retention_backend/platform/phone"
)

const minNamePartLength = 2

var e164Pattern = regexp.MustCompile(`^\+\d{8,15}$`)

// NormalizePhone strips formatting and returns a +1 E.164 number, or nil when
// the digits do not form a North American number.
func NormalizePhone(raw *string) *string {
	if raw == nil {
		return nil
	}
	normalized, ok := phone.NormalizeE164(*raw)
	if !ok {
		return nil
	}
	return &normalized
}

// NormalizeEmail trims and lowercases. Blank input yields nil.
func NormalizeEmail(raw *string) *string {
	if raw == nil {
		return nil
	}
	normalized := strings.ToLower(strings.TrimSpace(*raw))
	if normalized == "" {
		return nil
	}
	return &normalized
}

// NameKey joins the trimmed, lowercased first and last name with a single
// space. Both halves must be present and at least two characters long.
// Hyphens, suffixes, accents and inner spacing are kept as-is.
func NameKey(first, last *string) (string, bool) {
	if first == nil || last == nil {
		return "", false
	}
	f := strings.ToLower(strings.TrimSpace(*first))
	l := strings.ToLower(strings.TrimSpace(*last))
	if utf8.RuneCountInString(f) < minNamePartLength || utf8.RuneCountInString(l) < minNamePartLength {
		return "", false
	}
	return f + " " + l, true
}

// IdentityKeys are the comparison keys derived from one appointment.
type IdentityKeys struct {
	Phone *string
	Email *string
	Name  string
}

// HasName reports whether a name key was produced.
func (k IdentityKeys) HasName() bool {
	return k.Name != ""
}

// Empty reports whether no key is usable.
func (k IdentityKeys) Empty() bool {
	return k.Phone == nil && k.Email == nil && !k.HasName()
}

// KeysFor computes the identity keys of an appointment. A pre-normalized
// phone supplied by the adapter is trusted only when it is already bare
// E.164; anything else is run through NormalizePhone.
func KeysFor(a NormalizedAppointment) IdentityKeys {
	keys := IdentityKeys{
		Phone: phoneKey(a),
		Email: NormalizeEmail(a.Email),
	}
	if name, ok := NameKey(a.FirstName, a.LastName); ok {
		keys.Name = name
	}
	return keys
}

// IsResolvable reports whether the appointment carries any usable identity signal.
func IsResolvable(a NormalizedAppointment) bool {
	return !KeysFor(a).Empty()
}

func phoneKey(a NormalizedAppointment) *string {
	if a.PhoneNormalized != nil {
		if trimmed := strings.TrimSpace(*a.PhoneNormalized); e164Pattern.MatchString(trimmed) {
			return &trimmed
		}
		if normalized := NormalizePhone(a.PhoneNormalized); normalized != nil {
			return normalized
		}
	}
	return NormalizePhone(a.Phone)
}

// NonBlank returns nil for nil or whitespace-only strings and the trimmed
// value otherwise.
func NonBlank(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
