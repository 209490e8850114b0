package domain

import "fmt"

// Urgency is the escalation tier derived from a feedback score.
type Urgency string

// Urgency tiers, most urgent first.
const (
	UrgencyCritical Urgency = "CRITICAL"
	UrgencyMedium   Urgency = "MEDIUM"
	UrgencyLow      Urgency = "LOW"
)

// Score bounds and classification thresholds.
const (
	MinScore         = 0
	MaxScore         = 10
	CriticalMaxScore = 3
	MediumMaxScore   = 6
)

// Urgencies returns every tier in display order.
func Urgencies() []Urgency {
	return []Urgency{UrgencyCritical, UrgencyMedium, UrgencyLow}
}

func (u Urgency) String() string {
	return string(u)
}

// Valid reports whether u is one of the known tiers.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyCritical, UrgencyMedium, UrgencyLow:
		return true
	default:
		return false
	}
}

// ParseUrgency converts a stored tier name back into an Urgency.
func ParseUrgency(s string) (Urgency, error) {
	u := Urgency(s)
	if !u.Valid() {
		return "", fmt.Errorf("unknown urgency %q", s)
	}
	return u, nil
}

// Classify maps a score to its tier. Out-of-range scores are clamped to the
// nearest tier; callers validate the range before persisting.
func Classify(score int) Urgency {
	switch {
	case score <= CriticalMaxScore:
		return UrgencyCritical
	case score <= MediumMaxScore:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}
