package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/calsync/internal/domain"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testSource(name, icsPath string) *domain.Source {
	return &domain.Source{
		Name:             name,
		CalDAVURL:        "https://dav.example.com/",
		Username:         "me",
		Password:         "secret",
		ICSPath:          icsPath,
		SyncIntervalSecs: 3600,
	}
}

func testDestination(name string) *domain.Destination {
	return &domain.Destination{
		Name:             name,
		ICSURL:           "https://feeds.example.com/team.ics",
		CalDAVURL:        "https://dav.example.com/",
		CalendarName:     "work",
		Username:         "me",
		Password:         "secret",
		SyncIntervalSecs: 1800,
	}
}

func strPtr(s string) *string { return &s }
func i64Ptr(n int64) *int64   { return &n }
func boolPtr(b bool) *bool    { return &b }

func TestSourceCRUD(t *testing.T) {
	store := newTestStorage(t)

	src := testSource("personal", "personal.ics")
	require.NoError(t, store.CreateSource(src))
	require.NotZero(t, src.ID)

	got, err := store.GetSource(src.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "personal", got.Name)
	assert.Equal(t, "personal.ics", got.ICSPath)
	assert.Equal(t, domain.StatusNone, got.LastSyncStatus)
	assert.Nil(t, got.LastSynced)

	list, err := store.ListSources()
	require.NoError(t, err)
	require.Len(t, list, 1)

	updated, err := store.UpdateSource(src.ID, &domain.SourceUpdate{
		Name:             strPtr("renamed"),
		SyncIntervalSecs: i64Ptr(60),
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, int64(60), updated.SyncIntervalSecs)
	assert.Equal(t, "secret", updated.Password, "untouched fields keep their value")

	deleted, err := store.DeleteSource(src.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err = store.GetSource(src.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	deleted, err = store.DeleteSource(src.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestCreateSourceRejectsDuplicateFeedPath(t *testing.T) {
	store := newTestStorage(t)
	require.NoError(t, store.CreateSource(testSource("one", "shared.ics")))

	err := store.CreateSource(testSource("two", "shared.ics"))
	var cfgErr *domain.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "ics_path", cfgErr.Field)
}

func TestFeedPathValidation(t *testing.T) {
	store := newTestStorage(t)

	tests := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"absolute", "/etc/passwd"},
		{"traversal", "../secrets.ics"},
		{"reserved prefix", "public/sneaky.ics"},
		{"reserved exact", "public"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := store.CreateSource(testSource("bad", tc.path))
			var cfgErr *domain.ConfigError
			require.True(t, errors.As(err, &cfgErr), "path %q must be rejected", tc.path)
			assert.Equal(t, "ics_path", cfgErr.Field)
		})
	}
}

func TestUpdateSourceEmptyPasswordKeepsStored(t *testing.T) {
	store := newTestStorage(t)
	src := testSource("personal", "personal.ics")
	require.NoError(t, store.CreateSource(src))

	updated, err := store.UpdateSource(src.ID, &domain.SourceUpdate{Password: strPtr("")})
	require.NoError(t, err)
	assert.Equal(t, "secret", updated.Password)

	updated, err = store.UpdateSource(src.ID, &domain.SourceUpdate{Password: strPtr("rotated")})
	require.NoError(t, err)
	assert.Equal(t, "rotated", updated.Password)
}

func TestUpdateSourceMissingRow(t *testing.T) {
	store := newTestStorage(t)

	updated, err := store.UpdateSource(42, &domain.SourceUpdate{Name: strPtr("ghost")})
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestSourceSyncStatusLifecycle(t *testing.T) {
	store := newTestStorage(t)
	src := testSource("personal", "personal.ics")
	require.NoError(t, store.CreateSource(src))

	require.NoError(t, store.UpdateSourceSyncStatus(src.ID, domain.StatusError, "connection refused"))
	got, err := store.GetSource(src.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, got.LastSyncStatus)
	assert.Equal(t, "connection refused", got.LastSyncError)
	assert.NotNil(t, got.LastSynced)

	require.NoError(t, store.UpdateSourceSyncStatus(src.ID, domain.StatusOK, ""))
	got, err = store.GetSource(src.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOK, got.LastSyncStatus)
	assert.Empty(t, got.LastSyncError)
}

func TestSyncStatusAfterDeleteIsDropped(t *testing.T) {
	store := newTestStorage(t)
	src := testSource("personal", "personal.ics")
	require.NoError(t, store.CreateSource(src))

	_, err := store.DeleteSource(src.ID)
	require.NoError(t, err)

	// A run finishing after the delete must not resurrect or error.
	require.NoError(t, store.UpdateSourceSyncStatus(src.ID, domain.StatusOK, ""))

	got, err := store.GetSource(src.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDestinationCRUD(t *testing.T) {
	store := newTestStorage(t)

	dst := testDestination("team")
	require.NoError(t, store.CreateDestination(dst))
	require.NotZero(t, dst.ID)

	got, err := store.GetDestination(dst.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "work", got.CalendarName)
	assert.False(t, got.SyncAll)
	assert.False(t, got.KeepLocal)

	updated, err := store.UpdateDestination(dst.ID, &domain.DestinationUpdate{
		SyncAll:   boolPtr(true),
		KeepLocal: boolPtr(true),
		Password:  strPtr(""),
	})
	require.NoError(t, err)
	assert.True(t, updated.SyncAll)
	assert.True(t, updated.KeepLocal)
	assert.Equal(t, "secret", updated.Password)

	list, err := store.ListDestinations()
	require.NoError(t, err)
	require.Len(t, list, 1)

	deleted, err := store.DeleteDestination(dst.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestDestinationValidation(t *testing.T) {
	store := newTestStorage(t)

	dst := testDestination("team")
	dst.ICSURL = ""
	err := store.CreateDestination(dst)
	var cfgErr *domain.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "ics_url", cfgErr.Field)

	dst = testDestination("team")
	dst.SyncIntervalSecs = -1
	err = store.CreateDestination(dst)
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "sync_interval_secs", cfgErr.Field)
}

func TestFeedArtifactRoundTrip(t *testing.T) {
	store := newTestStorage(t)
	src := testSource("personal", "personal.ics")
	require.NoError(t, store.CreateSource(src))

	_, found, err := store.FeedArtifactByPath("personal.ics")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.SaveFeedArtifact(src.ID, "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))

	content, found, err := store.FeedArtifactByPath("personal.ics")
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, content, "BEGIN:VCALENDAR")

	// A later run replaces the artifact in place.
	require.NoError(t, store.SaveFeedArtifact(src.ID, "BEGIN:VCALENDAR\r\nPRODID:v2\r\nEND:VCALENDAR\r\n"))
	content, found, err = store.FeedArtifactByPath("personal.ics")
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, content, "PRODID:v2")
}

func TestFeedArtifactDeletedWithSource(t *testing.T) {
	store := newTestStorage(t)
	src := testSource("personal", "personal.ics")
	require.NoError(t, store.CreateSource(src))
	require.NoError(t, store.SaveFeedArtifact(src.ID, "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))

	_, err := store.DeleteSource(src.ID)
	require.NoError(t, err)

	_, found, err := store.FeedArtifactByPath("personal.ics")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSourcePathCRUD(t *testing.T) {
	store := newTestStorage(t)
	src := testSource("personal", "personal.ics")
	require.NoError(t, store.CreateSource(src))

	sp := &domain.SourcePath{SourceID: src.ID, Path: "alias.ics"}
	require.NoError(t, store.CreateSourcePath(sp))
	require.NotZero(t, sp.ID)

	got, err := store.GetSourcePath(sp.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, src.ID, got.SourceID)
	assert.Equal(t, "alias.ics", got.Path)
	assert.False(t, got.IsPublic)

	second := &domain.SourcePath{SourceID: src.ID, Path: "other.ics", IsPublic: true}
	require.NoError(t, store.CreateSourcePath(second))

	paths, err := store.ListSourcePaths(src.ID)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, "alias.ics", paths[0].Path)
	assert.Equal(t, "other.ics", paths[1].Path)

	updated, err := store.UpdateSourcePath(sp.ID, &domain.SourcePathUpdate{Path: strPtr("renamed.ics")})
	require.NoError(t, err)
	assert.Equal(t, "renamed.ics", updated.Path)
	assert.False(t, updated.IsPublic, "untouched fields keep their value")

	updated, err = store.UpdateSourcePath(9999, &domain.SourcePathUpdate{Path: strPtr("x.ics")})
	require.NoError(t, err)
	assert.Nil(t, updated)

	deleted, err := store.DeleteSourcePath(sp.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.DeleteSourcePath(sp.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestSourcePathValidation(t *testing.T) {
	store := newTestStorage(t)
	src := testSource("personal", "personal.ics")
	require.NoError(t, store.CreateSource(src))

	var cfgErr *domain.ConfigError
	err := store.CreateSourcePath(&domain.SourcePath{SourceID: src.ID, Path: "public/foo"})
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "path", cfgErr.Field)
	assert.Contains(t, cfgErr.Error(), "public")

	require.NoError(t, store.CreateSourcePath(&domain.SourcePath{SourceID: src.ID, Path: "taken.ics"}))
	err = store.CreateSourcePath(&domain.SourcePath{SourceID: src.ID, Path: "taken.ics"})
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "already in use", cfgErr.Reason)
}

func TestSourcePathsDeletedWithSource(t *testing.T) {
	store := newTestStorage(t)
	src := testSource("personal", "personal.ics")
	require.NoError(t, store.CreateSource(src))
	require.NoError(t, store.CreateSourcePath(&domain.SourcePath{SourceID: src.ID, Path: "alias.ics"}))

	_, err := store.DeleteSource(src.ID)
	require.NoError(t, err)

	paths, err := store.ListSourcePaths(src.ID)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestFeedArtifactServedThroughAliases(t *testing.T) {
	store := newTestStorage(t)
	src := testSource("personal", "personal.ics")
	require.NoError(t, store.CreateSource(src))
	require.NoError(t, store.SaveFeedArtifact(src.ID, "the feed"))

	require.NoError(t, store.CreateSourcePath(&domain.SourcePath{SourceID: src.ID, Path: "alias.ics"}))
	require.NoError(t, store.CreateSourcePath(&domain.SourcePath{SourceID: src.ID, Path: "pub-alias.ics", IsPublic: true}))

	content, found, err := store.FeedArtifactByPath("alias.ics")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "the feed", content)

	// A public alias serves unauthenticated even though the source itself
	// is not publicly exposed; a private alias does not.
	content, found, err = store.FeedArtifactByPublicPath("pub-alias.ics")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "the feed", content)

	_, found, err = store.FeedArtifactByPublicPath("alias.ics")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFeedArtifactByPublicPath(t *testing.T) {
	store := newTestStorage(t)

	private := testSource("private", "private.ics")
	require.NoError(t, store.CreateSource(private))
	require.NoError(t, store.SaveFeedArtifact(private.ID, "private feed"))

	custom := testSource("custom", "custom.ics")
	custom.PublicICS = true
	custom.PublicICSPath = "custom-ab12cd34.ics"
	require.NoError(t, store.CreateSource(custom))
	require.NoError(t, store.SaveFeedArtifact(custom.ID, "custom feed"))

	fallback := testSource("fallback", "fallback.ics")
	fallback.PublicICS = true
	require.NoError(t, store.CreateSource(fallback))
	require.NoError(t, store.SaveFeedArtifact(fallback.ID, "fallback feed"))

	_, found, err := store.FeedArtifactByPublicPath("private.ics")
	require.NoError(t, err)
	assert.False(t, found, "non-public sources are never served publicly")

	content, found, err := store.FeedArtifactByPublicPath("custom-ab12cd34.ics")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "custom feed", content)

	_, found, err = store.FeedArtifactByPublicPath("custom.ics")
	require.NoError(t, err)
	assert.False(t, found, "a custom public path hides the standard path")

	content, found, err = store.FeedArtifactByPublicPath("fallback.ics")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "fallback feed", content)
}
