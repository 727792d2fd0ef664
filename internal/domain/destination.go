package domain

import "time"

// Destination mirrors a remote ICS feed into a CalDAV calendar.
type Destination struct {
	ID               int64
	Name             string
	ICSURL           string
	CalDAVURL        string
	CalendarName     string
	Username         string
	Password         string
	SyncIntervalSecs int64 // 0 = manual sync only
	SyncAll          bool  // include past events, not just future ones
	KeepLocal        bool  // preserve calendar events absent from the feed
	LastSynced       *time.Time
	LastSyncStatus   SyncStatus
	LastSyncError    string
	CreatedAt        time.Time
}

// DestinationUpdate is a partial update; nil fields keep the stored value.
// An empty Password keeps the stored password.
type DestinationUpdate struct {
	Name             *string
	ICSURL           *string
	CalDAVURL        *string
	CalendarName     *string
	Username         *string
	Password         *string
	SyncIntervalSecs *int64
	SyncAll          *bool
	KeepLocal        *bool
}
