// Package sync runs the two mirror jobs: CalDAV calendars into published
// ICS feeds, and remote ICS feeds into CalDAV calendars.
package sync

import (
	"context"
	"fmt"

	"github.com/tazhate/calsync/internal/clients/caldav"
	"github.com/tazhate/calsync/internal/ics"
)

// CalendarClient is the calendar-access surface the jobs need. Implemented
// by clients/caldav.Client; faked in tests.
type CalendarClient interface {
	ListCalendars(ctx context.Context) ([]caldav.Calendar, error)
	FindCalendar(ctx context.Context, name string) (string, error)
	ListEvents(ctx context.Context, calendar string, window ics.Window) ([]ics.Event, error)
	PutEvent(ctx context.Context, calendar string, event *ics.Event) error
	DeleteEvent(ctx context.Context, calendar string, event *ics.Event) error
}

// ClientFactory builds a calendar client for one account.
type ClientFactory func(baseURL, username, password string) CalendarClient

// Plan is the set of writes that makes the local calendar mirror the feed.
// Updates and deletes carry the resource path the local event was listed
// under, so they target the server's own resource names.
type Plan struct {
	Creates []ics.Event
	Updates []ics.Event
	Deletes []ics.Event // local events absent from the feed
}

// Empty reports whether applying the plan would touch nothing.
func (p *Plan) Empty() bool {
	return len(p.Creates) == 0 && len(p.Updates) == 0 && len(p.Deletes) == 0
}

// BuildPlan diffs the authoritative remote events against the local ones.
// Identifiers carry through unchanged between feed and calendar, so UIDs are
// comparable across the two sets. Updates happen only on a fingerprint
// mismatch, which keeps repeated runs free of needless writes. Deletions are
// planned only when keepLocal is false, and only for events the caller
// actually listed; the sync window already scoped localEvents, so nothing
// outside it can be deleted.
func BuildPlan(remoteEvents, localEvents []ics.Event, keepLocal bool) *Plan {
	local := make(map[string]*ics.Event, len(localEvents))
	for i := range localEvents {
		local[localEvents[i].UID] = &localEvents[i]
	}

	plan := &Plan{}
	remote := make(map[string]bool, len(remoteEvents))
	for i := range remoteEvents {
		ev := remoteEvents[i]
		remote[ev.UID] = true
		existing, ok := local[ev.UID]
		if !ok {
			plan.Creates = append(plan.Creates, ev)
			continue
		}
		if existing.Fingerprint() != ev.Fingerprint() {
			ev.Path = existing.Path
			plan.Updates = append(plan.Updates, ev)
		}
	}

	if !keepLocal {
		for i := range localEvents {
			if !remote[localEvents[i].UID] {
				plan.Deletes = append(plan.Deletes, localEvents[i])
			}
		}
	}

	return plan
}

// Apply executes the plan against the calendar. Per-event failures are
// collected, never aborting the remaining events; the caller receives a
// *PartialSyncError when any event failed.
func (p *Plan) Apply(ctx context.Context, client CalendarClient, calendar string) (*Stats, error) {
	stats := &Stats{Total: len(p.Creates) + len(p.Updates) + len(p.Deletes)}
	var failures []error

	for i := range p.Creates {
		if err := client.PutEvent(ctx, calendar, &p.Creates[i]); err != nil {
			failures = append(failures, fmt.Errorf("create %s: %w", p.Creates[i].UID, err))
			continue
		}
		stats.Created++
	}
	for i := range p.Updates {
		if err := client.PutEvent(ctx, calendar, &p.Updates[i]); err != nil {
			failures = append(failures, fmt.Errorf("update %s: %w", p.Updates[i].UID, err))
			continue
		}
		stats.Updated++
	}
	for i := range p.Deletes {
		if err := client.DeleteEvent(ctx, calendar, &p.Deletes[i]); err != nil {
			failures = append(failures, fmt.Errorf("delete %s: %w", p.Deletes[i].UID, err))
			continue
		}
		stats.Deleted++
	}

	if len(failures) > 0 {
		return stats, &PartialSyncError{Failed: len(failures), Total: stats.Total, First: failures[0]}
	}
	return stats, nil
}

// Stats counts the writes a destination run performed.
type Stats struct {
	Total   int
	Created int
	Updated int
	Deleted int
}

func (s *Stats) String() string {
	return fmt.Sprintf("%d created, %d updated, %d deleted", s.Created, s.Updated, s.Deleted)
}
