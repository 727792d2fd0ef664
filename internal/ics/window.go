package ics

import (
	"time"

	"github.com/teambition/rrule-go"
)

// Window is the time range a sync run operates on. The zero window means
// all time.
type Window struct {
	Start time.Time
	End   time.Time
}

// From returns a window covering everything from t forward.
func From(t time.Time) Window {
	return Window{Start: t}
}

// IsZero reports whether the window covers all time.
func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Contains reports whether the event overlaps the window. Recurring events
// count as contained when any occurrence falls at or after the window
// start; an unparseable recurrence rule counts as contained, since an event
// that cannot be evaluated must never be dropped from reconciliation.
func (w Window) Contains(e *Event) bool {
	if w.IsZero() {
		return true
	}
	if !w.End.IsZero() && e.Start.After(w.End) {
		return false
	}
	if w.Start.IsZero() {
		return true
	}

	end := e.End
	if end.IsZero() {
		end = e.Start
	}
	if !end.Before(w.Start) {
		return true
	}

	if e.RRule == "" {
		return false
	}
	opt, err := rrule.StrToROption(e.RRule)
	if err != nil {
		return true
	}
	opt.Dtstart = e.Start
	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return true
	}
	return !rule.After(w.Start, true).IsZero()
}

// Filter returns the events contained in the window, preserving order.
func (w Window) Filter(events []Event) []Event {
	if w.IsZero() {
		return events
	}
	var out []Event
	for i := range events {
		if w.Contains(&events[i]) {
			out = append(out, events[i])
		}
	}
	return out
}
