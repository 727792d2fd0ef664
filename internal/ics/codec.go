// Package ics parses and serializes iCalendar feeds and carries the event
// model shared by the sync engine and the CalDAV client.
package ics

import (
	"fmt"
	"io"
	"log"

	"github.com/emersion/go-ical"
)

// DefaultProdID identifies feeds generated by this service.
const DefaultProdID = "-//calsync//CalDAV-ICS Sync//EN"

// MalformedFeedError reports a feed that could not be parsed at the
// container level (missing VCALENDAR markers, unterminated blocks).
type MalformedFeedError struct {
	Err error
}

func (e *MalformedFeedError) Error() string {
	return fmt.Sprintf("malformed feed: %v", e.Err)
}

func (e *MalformedFeedError) Unwrap() error { return e.Err }

// Feed is a parsed iCalendar document: the container identity plus its
// events in file order.
type Feed struct {
	ProdID  string
	Version string
	Events  []Event
}

// Decode parses an iCalendar document. Container-level problems are fatal
// and returned as *MalformedFeedError. Events with unparseable dates are
// skipped with a warning rather than failing the whole feed. When the same
// UID appears more than once the later occurrence wins, keeping the
// original position.
func Decode(r io.Reader) (*Feed, error) {
	cal, err := ical.NewDecoder(r).Decode()
	if err != nil {
		return nil, &MalformedFeedError{Err: err}
	}

	feed := &Feed{}
	if prop := cal.Props.Get(ical.PropProductID); prop != nil {
		feed.ProdID = prop.Value
	}
	if prop := cal.Props.Get(ical.PropVersion); prop != nil {
		feed.Version = prop.Value
	}

	seen := make(map[string]int)
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		ev, err := EventFromComponent(comp)
		if err != nil {
			log.Printf("Skipping unparseable event: %v", err)
			continue
		}
		if idx, ok := seen[ev.UID]; ok && ev.UID != "" {
			feed.Events[idx] = ev
			continue
		}
		seen[ev.UID] = len(feed.Events)
		feed.Events = append(feed.Events, ev)
	}

	return feed, nil
}

// Encode serializes the feed. The container identity is passed through when
// the feed carries one; otherwise this service's defaults are used. Every
// event is guaranteed a UID line.
func Encode(w io.Writer, feed *Feed) error {
	cal := ical.NewCalendar()

	prodID := feed.ProdID
	if prodID == "" {
		prodID = DefaultProdID
	}
	version := feed.Version
	if version == "" {
		version = "2.0"
	}
	cal.Props.SetText(ical.PropProductID, prodID)
	cal.Props.SetText(ical.PropVersion, version)

	for i := range feed.Events {
		cal.Children = append(cal.Children, feed.Events[i].Component())
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode feed: %w", err)
	}
	return nil
}
