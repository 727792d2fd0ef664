package sync

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/calsync/internal/clients/caldav"
	"github.com/tazhate/calsync/internal/domain"
	"github.com/tazhate/calsync/internal/ics"
)

func TestRunSourcePublishesAllCalendars(t *testing.T) {
	work := eventsFromFeed(t, feedWith(veventBlock("w-1", "standup", "20300110T100000Z")))[0]
	home := eventsFromFeed(t, feedWith(veventBlock("h-1", "dentist", "20300111T100000Z")))[0]

	fake := newFakeCalendar()
	fake.calendars = []caldav.Calendar{
		{Path: "/cal/work/", DisplayName: "work"},
		{Path: "/cal/home/", DisplayName: "home"},
	}
	fake.eventsByCal = map[string][]ics.Event{
		"/cal/work/": {work},
		"/cal/home/": {home},
	}

	content, run, err := runSource(context.Background(), fake, &domain.Source{Name: "me"})
	require.NoError(t, err)

	assert.Equal(t, 2, run.Events)
	assert.Equal(t, 2, run.Calendars)
	assert.Equal(t, "published 2 events from 2 calendars", run.String())

	feed, err := ics.Decode(strings.NewReader(content))
	require.NoError(t, err)
	require.Len(t, feed.Events, 2)
	assert.Contains(t, content, "PRODID:"+ics.DefaultProdID)
}

func TestRunSourceMergesDuplicateUIDsAcrossCalendars(t *testing.T) {
	first := eventsFromFeed(t, feedWith(veventBlock("dup", "older copy", "20300110T100000Z")))[0]
	second := eventsFromFeed(t, feedWith(veventBlock("dup", "newer copy", "20300110T100000Z")))[0]

	fake := newFakeCalendar()
	fake.calendars = []caldav.Calendar{
		{Path: "/cal/a/", DisplayName: "a"},
		{Path: "/cal/b/", DisplayName: "b"},
	}
	fake.eventsByCal = map[string][]ics.Event{
		"/cal/a/": {first},
		"/cal/b/": {second},
	}

	content, run, err := runSource(context.Background(), fake, &domain.Source{Name: "me"})
	require.NoError(t, err)

	assert.Equal(t, 1, run.Events)
	assert.Contains(t, content, "SUMMARY:newer copy")
	assert.NotContains(t, content, "SUMMARY:older copy")
}

func TestRunSourceFailsWithoutCalendars(t *testing.T) {
	fake := newFakeCalendar()
	fake.calendars = nil

	_, _, err := runSource(context.Background(), fake, &domain.Source{
		Name:      "me",
		CalDAVURL: "https://dav.example.com/",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no calendars found")
}

func TestRunSourceListingFailureIsFatal(t *testing.T) {
	fake := newFakeCalendar()
	fake.listErr = &caldav.TransientError{Status: 503}

	_, _, err := runSource(context.Background(), fake, &domain.Source{Name: "me"})
	require.Error(t, err)
	assert.True(t, caldav.IsTransient(err))
}
