package sync

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/calsync/internal/clients/caldav"
	"github.com/tazhate/calsync/internal/ics"
)

// fakeCalendar implements CalendarClient against an in-memory event map.
type fakeCalendar struct {
	calendars   []caldav.Calendar
	events      map[string]ics.Event   // by UID
	eventsByCal map[string][]ics.Event // per calendar path; overrides events when set
	putErr      map[string]error
	deleteErr   map[string]error

	puts        []string
	putPaths    []string
	deletes     []string
	deletePaths []string
	listErr     error
}

func newFakeCalendar(events ...ics.Event) *fakeCalendar {
	f := &fakeCalendar{
		calendars: []caldav.Calendar{{Path: "/cal/work/", DisplayName: "work"}},
		events:    make(map[string]ics.Event),
		putErr:    make(map[string]error),
		deleteErr: make(map[string]error),
	}
	for _, ev := range events {
		f.events[ev.UID] = ev
	}
	return f
}

func (f *fakeCalendar) ListCalendars(ctx context.Context) ([]caldav.Calendar, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.calendars, nil
}

func (f *fakeCalendar) FindCalendar(ctx context.Context, name string) (string, error) {
	return f.calendars[0].Path, nil
}

func (f *fakeCalendar) ListEvents(ctx context.Context, calendar string, window ics.Window) ([]ics.Event, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.eventsByCal != nil {
		return f.eventsByCal[calendar], nil
	}
	var out []ics.Event
	for _, ev := range f.events {
		ev := ev
		if window.Contains(&ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeCalendar) PutEvent(ctx context.Context, calendar string, event *ics.Event) error {
	if err := f.putErr[event.UID]; err != nil {
		return err
	}
	f.events[event.UID] = *event
	f.puts = append(f.puts, event.UID)
	f.putPaths = append(f.putPaths, event.Path)
	return nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, calendar string, event *ics.Event) error {
	if err := f.deleteErr[event.UID]; err != nil {
		return err
	}
	delete(f.events, event.UID)
	f.deletes = append(f.deletes, event.UID)
	f.deletePaths = append(f.deletePaths, event.Path)
	return nil
}

// eventsFromFeed parses a raw feed so fingerprints are derived from real
// components, the same way both sync directions see them.
func eventsFromFeed(t *testing.T, body string) []ics.Event {
	t.Helper()
	feed, err := ics.Decode(strings.NewReader(body))
	require.NoError(t, err)
	return feed.Events
}

func veventBlock(uid, summary, dtstart string) string {
	return strings.Join([]string{
		"BEGIN:VEVENT",
		"UID:" + uid,
		"DTSTAMP:20260101T000000Z",
		"DTSTART:" + dtstart,
		"SUMMARY:" + summary,
		"END:VEVENT",
	}, "\r\n")
}

func feedWith(blocks ...string) string {
	parts := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN"}, blocks...)
	parts = append(parts, "END:VCALENDAR")
	return strings.Join(parts, "\r\n") + "\r\n"
}

func TestBuildPlanCreatesUpdatesDeletes(t *testing.T) {
	remote := eventsFromFeed(t, feedWith(
		veventBlock("a", "unchanged", "20260110T100000Z"),
		veventBlock("b", "brand new", "20260111T100000Z"),
		veventBlock("c", "edited remotely", "20260112T100000Z"),
	))
	local := eventsFromFeed(t, feedWith(
		veventBlock("a", "unchanged", "20260110T100000Z"),
		veventBlock("c", "stale local copy", "20260112T100000Z"),
		veventBlock("d", "local only", "20260113T100000Z"),
	))

	plan := BuildPlan(remote, local, false)

	require.Len(t, plan.Creates, 1)
	assert.Equal(t, "b", plan.Creates[0].UID)
	require.Len(t, plan.Updates, 1)
	assert.Equal(t, "c", plan.Updates[0].UID)
	require.Len(t, plan.Deletes, 1)
	assert.Equal(t, "d", plan.Deletes[0].UID)
}

func TestBuildPlanKeepLocalPreservesLocalOnlyEvents(t *testing.T) {
	remote := eventsFromFeed(t, feedWith(veventBlock("a", "x", "20260110T100000Z")))
	local := eventsFromFeed(t, feedWith(
		veventBlock("a", "x", "20260110T100000Z"),
		veventBlock("keeper", "manually added", "20260111T100000Z"),
	))

	plan := BuildPlan(remote, local, true)
	assert.Empty(t, plan.Deletes)
	assert.True(t, plan.Empty())
}

func TestBuildPlanIdempotent(t *testing.T) {
	body := feedWith(
		veventBlock("a", "one", "20260110T100000Z"),
		veventBlock("b", "two", "20260111T100000Z"),
	)
	remote := eventsFromFeed(t, body)
	local := eventsFromFeed(t, body)

	plan := BuildPlan(remote, local, false)
	assert.True(t, plan.Empty(), "identical sets must produce an empty plan")
}

func TestBuildPlanIgnoresVolatilePropChanges(t *testing.T) {
	remote := eventsFromFeed(t, feedWith(strings.Join([]string{
		"BEGIN:VEVENT",
		"UID:v",
		"DTSTAMP:20260601T000000Z",
		"SEQUENCE:7",
		"DTSTART:20260110T100000Z",
		"SUMMARY:same",
		"END:VEVENT",
	}, "\r\n")))
	local := eventsFromFeed(t, feedWith(strings.Join([]string{
		"BEGIN:VEVENT",
		"UID:v",
		"DTSTAMP:20260101T000000Z",
		"SEQUENCE:1",
		"DTSTART:20260110T100000Z",
		"SUMMARY:same",
		"END:VEVENT",
	}, "\r\n")))

	plan := BuildPlan(remote, local, false)
	assert.True(t, plan.Empty())
}

func TestApplyTargetsListedResourcePaths(t *testing.T) {
	// Servers name event resources arbitrarily. Updates and deletes of
	// events that were listed must go to the listed path, never to a name
	// reconstructed from the UID.
	remote := eventsFromFeed(t, feedWith(
		veventBlock("changed", "new summary", "20260112T100000Z"),
	))
	local := eventsFromFeed(t, feedWith(
		veventBlock("changed", "old summary", "20260112T100000Z"),
		veventBlock("gone", "dropped from feed", "20260113T100000Z"),
	))
	local[0].Path = "/cal/work/8f3a91.ics"
	local[1].Path = "/cal/work/b72c04.ics"

	fake := newFakeCalendar()
	plan := BuildPlan(remote, local, false)
	_, err := plan.Apply(context.Background(), fake, "/cal/work/")
	require.NoError(t, err)

	assert.Equal(t, []string{"/cal/work/8f3a91.ics"}, fake.putPaths)
	assert.Equal(t, []string{"/cal/work/b72c04.ics"}, fake.deletePaths)
}

func TestApplyCollectsPerEventFailures(t *testing.T) {
	remote := eventsFromFeed(t, feedWith(
		veventBlock("ok-1", "fine", "20260110T100000Z"),
		veventBlock("boom", "fails", "20260111T100000Z"),
		veventBlock("ok-2", "also fine", "20260112T100000Z"),
	))

	fake := newFakeCalendar()
	fake.putErr["boom"] = &caldav.TransientError{Status: 503}

	plan := BuildPlan(remote, nil, false)
	stats, err := plan.Apply(context.Background(), fake, "/cal/work/")

	var partial *PartialSyncError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, 1, partial.Failed)
	assert.Equal(t, 3, partial.Total)
	assert.Equal(t, 2, stats.Created, "failures must not abort the remaining events")
	assert.ElementsMatch(t, []string{"ok-1", "ok-2"}, fake.puts)
}
