package domain

import "time"

// SyncStatus is the outcome of the most recent sync run for an entity.
type SyncStatus string

const (
	StatusNone  SyncStatus = ""
	StatusOK    SyncStatus = "ok"
	StatusError SyncStatus = "error"
)

// Source mirrors a CalDAV account into a published ICS feed.
type Source struct {
	ID               int64
	Name             string
	CalDAVURL        string
	Username         string
	Password         string
	ICSPath          string // unique path segment under /ics/
	SyncIntervalSecs int64  // 0 = manual sync only
	PublicICS        bool
	PublicICSPath    string // optional unguessable path under /ics/public/
	LastSynced       *time.Time
	LastSyncStatus   SyncStatus
	LastSyncError    string
	CreatedAt        time.Time
}

// SourcePath is an additional serving path for a source's published feed.
// Each alias carries its own public-exposure flag, independent of the
// source's.
type SourcePath struct {
	ID        int64
	SourceID  int64
	Path      string
	IsPublic  bool
	CreatedAt time.Time
}

// SourcePathUpdate is a partial update; nil fields keep the stored value.
type SourcePathUpdate struct {
	Path     *string
	IsPublic *bool
}

// SourceUpdate is a partial update; nil fields keep the stored value.
// An empty Password keeps the stored password.
type SourceUpdate struct {
	Name             *string
	CalDAVURL        *string
	Username         *string
	Password         *string
	ICSPath          *string
	SyncIntervalSecs *int64
	PublicICS        *bool
	PublicICSPath    *string
}
