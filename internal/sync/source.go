package sync

import (
	"context"
	"fmt"
	"strings"

	"github.com/tazhate/calsync/internal/domain"
	"github.com/tazhate/calsync/internal/ics"
)

// SourceRun is the outcome of one CalDAV→feed run.
type SourceRun struct {
	Events    int
	Calendars int
}

func (r *SourceRun) String() string {
	return fmt.Sprintf("published %d events from %d calendars", r.Events, r.Calendars)
}

// runSource pulls every calendar of the source account over the full window
// and serializes the merged event set into one feed document. A published
// feed mirrors the whole calendar, so no window filtering applies here.
// Any listing failure is fatal to the run and leaves the previously
// published artifact untouched.
func runSource(ctx context.Context, client CalendarClient, src *domain.Source) (string, *SourceRun, error) {
	calendars, err := client.ListCalendars(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("list calendars: %w", err)
	}
	if len(calendars) == 0 {
		return "", nil, fmt.Errorf("no calendars found at %s", src.CalDAVURL)
	}

	feed := &ics.Feed{}
	seen := make(map[string]int)
	for _, cal := range calendars {
		events, err := client.ListEvents(ctx, cal.Path, ics.Window{})
		if err != nil {
			return "", nil, fmt.Errorf("list events in %s: %w", cal.Path, err)
		}
		for _, ev := range events {
			if idx, ok := seen[ev.UID]; ok && ev.UID != "" {
				feed.Events[idx] = ev
				continue
			}
			seen[ev.UID] = len(feed.Events)
			feed.Events = append(feed.Events, ev)
		}
	}

	var buf strings.Builder
	if err := ics.Encode(&buf, feed); err != nil {
		return "", nil, err
	}

	return buf.String(), &SourceRun{Events: len(feed.Events), Calendars: len(calendars)}, nil
}
