// Package recurrence evaluates recurrence rules for feed events.
//
// The Adapter wraps an optional Engine. Without an engine, or when a rule
// cannot be evaluated, every operation returns an empty result; callers
// treat that as "this event has no occurrences" rather than as a failure.
package recurrence

import (
	"time"
)

const defaultMaxOccurrences = 5000

// Rule is a parsed recurrence rule anchored at its first occurrence.
type Rule interface {
	// Between returns occurrences in [after, before] (inc=true) or
	// (after, before) (inc=false).
	Between(after, before time.Time, inc bool) []time.Time
	// After returns the first occurrence after dt (or at dt when inc is
	// true), or the zero time when there is none.
	After(dt time.Time, inc bool) time.Time
}

// Engine parses rule text. A zero anchor means "use whatever start the
// rule text itself carries".
type Engine interface {
	Parse(rule string, anchor time.Time) (Rule, error)
}

// Adapter is the entry point used by the event pipeline.
type Adapter struct {
	engine         Engine
	maxOccurrences int
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithMaxOccurrences caps ExpandWindow results per rule. Values <= 0 keep
// the default.
func WithMaxOccurrences(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.maxOccurrences = n
		}
	}
}

// New builds an Adapter. A nil engine yields an adapter that is not
// Available and never produces occurrences.
func New(engine Engine, opts ...Option) *Adapter {
	a := &Adapter{
		engine:         engine,
		maxOccurrences: defaultMaxOccurrences,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Disabled returns an adapter with no engine.
func Disabled() *Adapter {
	return New(nil)
}

// Available reports whether an engine is configured.
func (a *Adapter) Available() bool {
	return a != nil && a.engine != nil
}

// ExpandWindow returns the occurrences of rule within [rangeStart, rangeEnd],
// capped at the configured maximum. truncated reports whether the cap cut
// the result short.
func (a *Adapter) ExpandWindow(rule string, anchor, rangeStart, rangeEnd time.Time) (occ []time.Time, truncated bool) {
	if !a.Available() || rangeEnd.Before(rangeStart) {
		return nil, false
	}
	r, ok := a.parse(rule, anchor)
	if !ok {
		return nil, false
	}

	defer func() {
		if recover() != nil {
			occ, truncated = nil, false
		}
	}()

	occ = r.Between(rangeStart, rangeEnd, true)
	if len(occ) > a.maxOccurrences {
		return occ[:a.maxOccurrences], true
	}
	return occ, false
}

// NextOccurrence returns the first occurrence of rule at or after ref.
func (a *Adapter) NextOccurrence(rule string, anchor, ref time.Time) (next time.Time, ok bool) {
	if !a.Available() {
		return time.Time{}, false
	}
	r, parsed := a.parse(rule, anchor)
	if !parsed {
		return time.Time{}, false
	}

	defer func() {
		if recover() != nil {
			next, ok = time.Time{}, false
		}
	}()

	next = r.After(ref, true)
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

func (a *Adapter) parse(rule string, anchor time.Time) (r Rule, ok bool) {
	defer func() {
		if recover() != nil {
			r, ok = nil, false
		}
	}()

	r, err := a.engine.Parse(rule, anchor)
	if err != nil || r == nil {
		return nil, false
	}
	return r, true
}
