package ics

import (
	"fmt"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
)

// Event is the reconciliation unit exchanged between the feed codec and the
// calendar-access client. The underlying VEVENT component is retained so
// properties the engine does not interpret survive round-trips unchanged.
type Event struct {
	UID          string
	Summary      string
	Description  string
	Location     string
	Start        time.Time
	End          time.Time
	AllDay       bool
	RRule        string
	LastModified time.Time

	// Path is the event's resource location on the calendar server,
	// captured during listing. Empty for events parsed from a feed.
	Path string

	comp *ical.Component
}

// EventFromComponent builds an Event from a VEVENT component. An event
// without a parseable DTSTART is rejected; the caller decides whether that
// is fatal or skippable.
func EventFromComponent(comp *ical.Component) (Event, error) {
	ev := Event{comp: comp}

	if prop := comp.Props.Get(ical.PropUID); prop != nil {
		ev.UID = prop.Value
	}
	if prop := comp.Props.Get(ical.PropSummary); prop != nil {
		ev.Summary = prop.Value
	}
	if prop := comp.Props.Get(ical.PropDescription); prop != nil {
		ev.Description = prop.Value
	}
	if prop := comp.Props.Get(ical.PropLocation); prop != nil {
		ev.Location = prop.Value
	}

	prop := comp.Props.Get(ical.PropDateTimeStart)
	if prop == nil {
		return ev, fmt.Errorf("event %q has no DTSTART", ev.UID)
	}
	start, err := prop.DateTime(time.UTC)
	if err != nil {
		return ev, fmt.Errorf("event %q: parse DTSTART: %w", ev.UID, err)
	}
	ev.Start = start
	if prop.Params.Get(ical.ParamValue) == string(ical.ValueDate) {
		ev.AllDay = true
	}

	if prop := comp.Props.Get(ical.PropDateTimeEnd); prop != nil {
		if t, err := prop.DateTime(time.UTC); err == nil {
			ev.End = t
		} else {
			return ev, fmt.Errorf("event %q: parse DTEND: %w", ev.UID, err)
		}
	}
	if prop := comp.Props.Get(ical.PropRecurrenceRule); prop != nil {
		ev.RRule = prop.Value
	}
	if prop := comp.Props.Get(ical.PropLastModified); prop != nil {
		if t, err := prop.DateTime(time.UTC); err == nil {
			ev.LastModified = t
		}
	}

	return ev, nil
}

// Component returns the VEVENT component for this event, synthesizing one
// from the struct fields when the event did not come from a parsed feed.
// The returned component always carries UID and DTSTAMP.
func (e *Event) Component() *ical.Component {
	if e.UID == "" {
		e.UID = uuid.New().String()
	}

	comp := e.comp
	if comp == nil {
		vevent := ical.NewEvent()
		vevent.Props.SetText(ical.PropSummary, e.Summary)
		if e.Description != "" {
			vevent.Props.SetText(ical.PropDescription, e.Description)
		}
		if e.Location != "" {
			vevent.Props.SetText(ical.PropLocation, e.Location)
		}
		if e.AllDay {
			vevent.Props.SetDate(ical.PropDateTimeStart, e.Start)
			if !e.End.IsZero() {
				vevent.Props.SetDate(ical.PropDateTimeEnd, e.End)
			}
		} else {
			vevent.Props.SetDateTime(ical.PropDateTimeStart, e.Start.UTC())
			if !e.End.IsZero() {
				vevent.Props.SetDateTime(ical.PropDateTimeEnd, e.End.UTC())
			}
		}
		if e.RRule != "" {
			vevent.Props.SetText(ical.PropRecurrenceRule, e.RRule)
		}
		if !e.LastModified.IsZero() {
			vevent.Props.SetDateTime(ical.PropLastModified, e.LastModified.UTC())
		}
		comp = vevent.Component
		e.comp = comp
	}

	if comp.Props.Get(ical.PropUID) == nil {
		comp.Props.SetText(ical.PropUID, e.UID)
	}
	if comp.Props.Get(ical.PropDateTimeStamp) == nil {
		comp.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	}
	return comp
}
