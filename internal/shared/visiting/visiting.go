// Package visiting holds the visiting-pattern labels shared by the booking
// aggregates (which derive them) and nudge scoring (which consumes them).
package visiting

import "strings"

// Type classifies how regularly a client returns.
type Type string

const (
	New            Type = "new"
	Consistent     Type = "consistent"
	SemiConsistent Type = "semi-consistent"
	EasyGoing      Type = "easy-going"
	Rare           Type = "rare"
	Unknown        Type = "unknown"
)

// Parse maps free-form labels onto a Type. Unrecognised values are Unknown.
func Parse(raw string) Type {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")

	switch Type(normalized) {
	case New, Consistent, SemiConsistent, EasyGoing, Rare:
		return Type(normalized)
	case "semiconsistent":
		return SemiConsistent
	case "easygoing":
		return EasyGoing
	default:
		return Unknown
	}
}

// FallbackIntervalDays is the assumed days between visits when a client has
// no usable weekly-visit average.
func (t Type) FallbackIntervalDays() int {
	switch t {
	case New:
		return 30
	case Consistent:
		return 14
	case SemiConsistent:
		return 30
	case EasyGoing:
		return 45
	case Rare:
		return 90
	default:
		return 45
	}
}
