package recurrence

import (
	"errors"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// RRuleEngine evaluates RFC 5545 rules with teambition/rrule-go.
//
// Both a bare rule ("FREQ=WEEKLY;BYDAY=MO") and the multi-line form
// ("DTSTART:...\nRRULE:...", optionally with EXDATE/RDATE lines) are
// accepted.
type RRuleEngine struct{}

// NewRRuleEngine returns the default engine.
func NewRRuleEngine() *RRuleEngine {
	return &RRuleEngine{}
}

func (RRuleEngine) Parse(text string, anchor time.Time) (Rule, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty rule")
	}

	if isRuleSet(text) {
		set, err := rrule.StrToRRuleSet(text)
		if err != nil {
			return nil, err
		}
		if !anchor.IsZero() {
			set.DTStart(anchor)
		}
		return set, nil
	}

	r, err := rrule.StrToRRule(text)
	if err != nil {
		return nil, err
	}
	if !anchor.IsZero() {
		r.DTStart(anchor)
	}
	return r, nil
}

// isRuleSet reports whether text uses property-prefixed lines.
func isRuleSet(text string) bool {
	upper := strings.ToUpper(text)
	return strings.Contains(upper, "RRULE:") ||
		strings.HasPrefix(upper, "DTSTART") ||
		strings.Contains(text, "\n")
}
