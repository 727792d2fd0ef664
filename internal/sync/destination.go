package sync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tazhate/calsync/internal/clients/caldav"
	"github.com/tazhate/calsync/internal/domain"
	"github.com/tazhate/calsync/internal/ics"
)

// fetchFeed downloads a remote ICS document. Server-side failures are
// transient; authentication failures and other unexpected statuses are not.
func fetchFeed(ctx context.Context, client *http.Client, url string) (*ics.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &caldav.TransientError{Err: fmt.Errorf("fetch feed: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &caldav.AuthError{Status: resp.StatusCode}
	case resp.StatusCode >= 500:
		return nil, &caldav.TransientError{Status: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return nil, &caldav.ProtocolError{Err: fmt.Errorf("feed fetch returned HTTP %d", resp.StatusCode)}
	}

	body := io.LimitReader(resp.Body, 32<<20)
	return ics.Decode(body)
}

// runDestination mirrors the remote feed into the target calendar. The feed
// is authoritative; keep_local decides whether local-only events survive,
// and sync_all decides whether past events take part at all.
func runDestination(ctx context.Context, httpClient *http.Client, client CalendarClient, dst *domain.Destination) (*Stats, error) {
	feed, err := fetchFeed(ctx, httpClient, dst.ICSURL)
	if err != nil {
		return nil, err
	}

	window := ics.Window{}
	if !dst.SyncAll {
		window = ics.From(time.Now().UTC())
	}
	remote := window.Filter(feed.Events)

	calendar, err := client.FindCalendar(ctx, dst.CalendarName)
	if err != nil {
		return nil, fmt.Errorf("resolve calendar %q: %w", dst.CalendarName, err)
	}

	local, err := client.ListEvents(ctx, calendar, window)
	if err != nil {
		return nil, fmt.Errorf("list local events: %w", err)
	}

	plan := BuildPlan(remote, local, dst.KeepLocal)
	return plan.Apply(ctx, client, calendar)
}
