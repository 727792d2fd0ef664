// Package storage persists sync entities, their run status, and published
// feed artifacts in SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tazhate/calsync/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sources (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			caldav_url TEXT NOT NULL,
			username TEXT NOT NULL,
			password TEXT NOT NULL,
			ics_path TEXT NOT NULL UNIQUE,
			sync_interval_secs INTEGER NOT NULL DEFAULT 3600,
			public_ics INTEGER NOT NULL DEFAULT 0,
			public_ics_path TEXT DEFAULT '',
			last_synced DATETIME,
			last_sync_status TEXT DEFAULT '',
			last_sync_error TEXT DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS destinations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			ics_url TEXT NOT NULL,
			caldav_url TEXT NOT NULL,
			calendar_name TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL,
			password TEXT NOT NULL,
			sync_interval_secs INTEGER NOT NULL DEFAULT 3600,
			sync_all INTEGER NOT NULL DEFAULT 0,
			keep_local INTEGER NOT NULL DEFAULT 0,
			last_synced DATETIME,
			last_sync_status TEXT DEFAULT '',
			last_sync_error TEXT DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS feed_artifacts (
			source_id INTEGER PRIMARY KEY REFERENCES sources(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS source_paths (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
			path TEXT NOT NULL UNIQUE,
			is_public INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sources_ics_path ON sources(ics_path)`,
		`CREATE INDEX IF NOT EXISTS idx_source_paths_source_id ON source_paths(source_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// --- validation ---

func validateFeedPath(field, path string) error {
	if path == "" {
		return &domain.ConfigError{Field: field, Reason: "must not be empty"}
	}
	if strings.HasPrefix(path, "/") {
		return &domain.ConfigError{Field: field, Reason: "must not start with /"}
	}
	if strings.Contains(path, "..") {
		return &domain.ConfigError{Field: field, Reason: "must not contain .."}
	}
	if path == "public" || strings.HasPrefix(path, "public/") {
		return &domain.ConfigError{Field: field, Reason: "the public prefix is reserved"}
	}
	return nil
}

func validateSource(src *domain.Source) error {
	if src.Name == "" {
		return &domain.ConfigError{Field: "name", Reason: "must not be empty"}
	}
	if src.CalDAVURL == "" {
		return &domain.ConfigError{Field: "caldav_url", Reason: "must not be empty"}
	}
	if src.SyncIntervalSecs < 0 {
		return &domain.ConfigError{Field: "sync_interval_secs", Reason: "must not be negative"}
	}
	if err := validateFeedPath("ics_path", src.ICSPath); err != nil {
		return err
	}
	if src.PublicICSPath != "" {
		if err := validateFeedPath("public_ics_path", src.PublicICSPath); err != nil {
			return err
		}
	}
	return nil
}

func validateDestination(dst *domain.Destination) error {
	if dst.Name == "" {
		return &domain.ConfigError{Field: "name", Reason: "must not be empty"}
	}
	if dst.ICSURL == "" {
		return &domain.ConfigError{Field: "ics_url", Reason: "must not be empty"}
	}
	if dst.CalDAVURL == "" {
		return &domain.ConfigError{Field: "caldav_url", Reason: "must not be empty"}
	}
	if dst.SyncIntervalSecs < 0 {
		return &domain.ConfigError{Field: "sync_interval_secs", Reason: "must not be negative"}
	}
	return nil
}

// --- sources ---

const sourceColumns = `id, name, caldav_url, username, password, ics_path, sync_interval_secs,
	public_ics, public_ics_path, last_synced, last_sync_status, last_sync_error, created_at`

func scanSource(row interface{ Scan(...any) error }) (*domain.Source, error) {
	var src domain.Source
	var lastSynced sql.NullTime
	var status, syncErr, publicPath sql.NullString
	err := row.Scan(&src.ID, &src.Name, &src.CalDAVURL, &src.Username, &src.Password,
		&src.ICSPath, &src.SyncIntervalSecs, &src.PublicICS, &publicPath,
		&lastSynced, &status, &syncErr, &src.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastSynced.Valid {
		t := lastSynced.Time
		src.LastSynced = &t
	}
	src.PublicICSPath = publicPath.String
	src.LastSyncStatus = domain.SyncStatus(status.String)
	src.LastSyncError = syncErr.String
	return &src, nil
}

func (s *Storage) CreateSource(src *domain.Source) error {
	if err := validateSource(src); err != nil {
		return err
	}
	res, err := s.db.Exec(
		`INSERT INTO sources (name, caldav_url, username, password, ics_path, sync_interval_secs, public_ics, public_ics_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		src.Name, src.CalDAVURL, src.Username, src.Password, src.ICSPath,
		src.SyncIntervalSecs, src.PublicICS, src.PublicICSPath,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return &domain.ConfigError{Field: "ics_path", Reason: "already in use"}
		}
		return fmt.Errorf("create source: %w", err)
	}
	src.ID, _ = res.LastInsertId()
	src.CreatedAt = time.Now().UTC()
	return nil
}

func (s *Storage) GetSource(id int64) (*domain.Source, error) {
	row := s.db.QueryRow(`SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return src, nil
}

func (s *Storage) ListSources() ([]*domain.Source, error) {
	rows, err := s.db.Query(`SELECT ` + sourceColumns + ` FROM sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []*domain.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// UpdateSource applies the non-nil fields of upd. It returns the updated row,
// or nil when the source does not exist.
func (s *Storage) UpdateSource(id int64, upd *domain.SourceUpdate) (*domain.Source, error) {
	existing, err := s.GetSource(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	merged := *existing
	if upd.Name != nil {
		merged.Name = *upd.Name
	}
	if upd.CalDAVURL != nil {
		merged.CalDAVURL = *upd.CalDAVURL
	}
	if upd.Username != nil {
		merged.Username = *upd.Username
	}
	if upd.Password != nil && *upd.Password != "" {
		merged.Password = *upd.Password
	}
	if upd.ICSPath != nil {
		merged.ICSPath = *upd.ICSPath
	}
	if upd.SyncIntervalSecs != nil {
		merged.SyncIntervalSecs = *upd.SyncIntervalSecs
	}
	if upd.PublicICS != nil {
		merged.PublicICS = *upd.PublicICS
	}
	if upd.PublicICSPath != nil {
		merged.PublicICSPath = *upd.PublicICSPath
	}

	if err := validateSource(&merged); err != nil {
		return nil, err
	}

	_, err = s.db.Exec(
		`UPDATE sources SET name = ?, caldav_url = ?, username = ?, password = ?, ics_path = ?,
		 sync_interval_secs = ?, public_ics = ?, public_ics_path = ? WHERE id = ?`,
		merged.Name, merged.CalDAVURL, merged.Username, merged.Password, merged.ICSPath,
		merged.SyncIntervalSecs, merged.PublicICS, merged.PublicICSPath, id,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, &domain.ConfigError{Field: "ics_path", Reason: "already in use"}
		}
		return nil, fmt.Errorf("update source: %w", err)
	}
	return &merged, nil
}

func (s *Storage) DeleteSource(id int64) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete source: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpdateSourceSyncStatus records the outcome of a run. The UPDATE is a
// silent no-op when the row was deleted while the run was in flight.
func (s *Storage) UpdateSourceSyncStatus(id int64, status domain.SyncStatus, errText string) error {
	_, err := s.db.Exec(
		`UPDATE sources SET last_synced = ?, last_sync_status = ?, last_sync_error = ? WHERE id = ?`,
		time.Now().UTC(), string(status), errText, id,
	)
	if err != nil {
		return fmt.Errorf("update source sync status: %w", err)
	}
	return nil
}

// --- source paths ---

const sourcePathColumns = `id, source_id, path, is_public, created_at`

func scanSourcePath(row interface{ Scan(...any) error }) (*domain.SourcePath, error) {
	var sp domain.SourcePath
	if err := row.Scan(&sp.ID, &sp.SourceID, &sp.Path, &sp.IsPublic, &sp.CreatedAt); err != nil {
		return nil, err
	}
	return &sp, nil
}

// CreateSourcePath adds a serving alias for a source's feed.
func (s *Storage) CreateSourcePath(sp *domain.SourcePath) error {
	if err := validateFeedPath("path", sp.Path); err != nil {
		return err
	}
	res, err := s.db.Exec(
		`INSERT INTO source_paths (source_id, path, is_public) VALUES (?, ?, ?)`,
		sp.SourceID, sp.Path, sp.IsPublic,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return &domain.ConfigError{Field: "path", Reason: "already in use"}
		}
		return fmt.Errorf("create source path: %w", err)
	}
	sp.ID, _ = res.LastInsertId()
	sp.CreatedAt = time.Now().UTC()
	return nil
}

func (s *Storage) GetSourcePath(id int64) (*domain.SourcePath, error) {
	row := s.db.QueryRow(`SELECT `+sourcePathColumns+` FROM source_paths WHERE id = ?`, id)
	sp, err := scanSourcePath(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source path: %w", err)
	}
	return sp, nil
}

func (s *Storage) ListSourcePaths(sourceID int64) ([]*domain.SourcePath, error) {
	rows, err := s.db.Query(
		`SELECT `+sourcePathColumns+` FROM source_paths WHERE source_id = ? ORDER BY id`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list source paths: %w", err)
	}
	defer rows.Close()

	var paths []*domain.SourcePath
	for rows.Next() {
		sp, err := scanSourcePath(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source path: %w", err)
		}
		paths = append(paths, sp)
	}
	return paths, rows.Err()
}

// UpdateSourcePath applies the non-nil fields of upd. It returns the updated
// row, or nil when the alias does not exist.
func (s *Storage) UpdateSourcePath(id int64, upd *domain.SourcePathUpdate) (*domain.SourcePath, error) {
	existing, err := s.GetSourcePath(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	merged := *existing
	if upd.Path != nil {
		merged.Path = *upd.Path
	}
	if upd.IsPublic != nil {
		merged.IsPublic = *upd.IsPublic
	}

	if err := validateFeedPath("path", merged.Path); err != nil {
		return nil, err
	}

	_, err = s.db.Exec(
		`UPDATE source_paths SET path = ?, is_public = ? WHERE id = ?`,
		merged.Path, merged.IsPublic, id,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, &domain.ConfigError{Field: "path", Reason: "already in use"}
		}
		return nil, fmt.Errorf("update source path: %w", err)
	}
	return &merged, nil
}

func (s *Storage) DeleteSourcePath(id int64) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM source_paths WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete source path: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// --- destinations ---

const destinationColumns = `id, name, ics_url, caldav_url, calendar_name, username, password,
	sync_interval_secs, sync_all, keep_local, last_synced, last_sync_status, last_sync_error, created_at`

func scanDestination(row interface{ Scan(...any) error }) (*domain.Destination, error) {
	var dst domain.Destination
	var lastSynced sql.NullTime
	var status, syncErr sql.NullString
	err := row.Scan(&dst.ID, &dst.Name, &dst.ICSURL, &dst.CalDAVURL, &dst.CalendarName,
		&dst.Username, &dst.Password, &dst.SyncIntervalSecs, &dst.SyncAll, &dst.KeepLocal,
		&lastSynced, &status, &syncErr, &dst.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastSynced.Valid {
		t := lastSynced.Time
		dst.LastSynced = &t
	}
	dst.LastSyncStatus = domain.SyncStatus(status.String)
	dst.LastSyncError = syncErr.String
	return &dst, nil
}

func (s *Storage) CreateDestination(dst *domain.Destination) error {
	if err := validateDestination(dst); err != nil {
		return err
	}
	res, err := s.db.Exec(
		`INSERT INTO destinations (name, ics_url, caldav_url, calendar_name, username, password, sync_interval_secs, sync_all, keep_local)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dst.Name, dst.ICSURL, dst.CalDAVURL, dst.CalendarName, dst.Username, dst.Password,
		dst.SyncIntervalSecs, dst.SyncAll, dst.KeepLocal,
	)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	dst.ID, _ = res.LastInsertId()
	dst.CreatedAt = time.Now().UTC()
	return nil
}

func (s *Storage) GetDestination(id int64) (*domain.Destination, error) {
	row := s.db.QueryRow(`SELECT `+destinationColumns+` FROM destinations WHERE id = ?`, id)
	dst, err := scanDestination(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get destination: %w", err)
	}
	return dst, nil
}

func (s *Storage) ListDestinations() ([]*domain.Destination, error) {
	rows, err := s.db.Query(`SELECT ` + destinationColumns + ` FROM destinations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}
	defer rows.Close()

	var destinations []*domain.Destination
	for rows.Next() {
		dst, err := scanDestination(rows)
		if err != nil {
			return nil, fmt.Errorf("scan destination: %w", err)
		}
		destinations = append(destinations, dst)
	}
	return destinations, rows.Err()
}

// UpdateDestination applies the non-nil fields of upd. It returns the updated
// row, or nil when the destination does not exist.
func (s *Storage) UpdateDestination(id int64, upd *domain.DestinationUpdate) (*domain.Destination, error) {
	existing, err := s.GetDestination(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	merged := *existing
	if upd.Name != nil {
		merged.Name = *upd.Name
	}
	if upd.ICSURL != nil {
		merged.ICSURL = *upd.ICSURL
	}
	if upd.CalDAVURL != nil {
		merged.CalDAVURL = *upd.CalDAVURL
	}
	if upd.CalendarName != nil {
		merged.CalendarName = *upd.CalendarName
	}
	if upd.Username != nil {
		merged.Username = *upd.Username
	}
	if upd.Password != nil && *upd.Password != "" {
		merged.Password = *upd.Password
	}
	if upd.SyncIntervalSecs != nil {
		merged.SyncIntervalSecs = *upd.SyncIntervalSecs
	}
	if upd.SyncAll != nil {
		merged.SyncAll = *upd.SyncAll
	}
	if upd.KeepLocal != nil {
		merged.KeepLocal = *upd.KeepLocal
	}

	if err := validateDestination(&merged); err != nil {
		return nil, err
	}

	_, err = s.db.Exec(
		`UPDATE destinations SET name = ?, ics_url = ?, caldav_url = ?, calendar_name = ?, username = ?,
		 password = ?, sync_interval_secs = ?, sync_all = ?, keep_local = ? WHERE id = ?`,
		merged.Name, merged.ICSURL, merged.CalDAVURL, merged.CalendarName, merged.Username,
		merged.Password, merged.SyncIntervalSecs, merged.SyncAll, merged.KeepLocal, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update destination: %w", err)
	}
	return &merged, nil
}

func (s *Storage) DeleteDestination(id int64) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM destinations WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete destination: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpdateDestinationSyncStatus records the outcome of a run; a silent no-op
// for deleted rows.
func (s *Storage) UpdateDestinationSyncStatus(id int64, status domain.SyncStatus, errText string) error {
	_, err := s.db.Exec(
		`UPDATE destinations SET last_synced = ?, last_sync_status = ?, last_sync_error = ? WHERE id = ?`,
		time.Now().UTC(), string(status), errText, id,
	)
	if err != nil {
		return fmt.Errorf("update destination sync status: %w", err)
	}
	return nil
}

// --- feed artifacts ---

// SaveFeedArtifact replaces the published feed for a source. The upsert is a
// single statement, so readers never observe a partially written feed.
func (s *Storage) SaveFeedArtifact(sourceID int64, content string) error {
	_, err := s.db.Exec(
		`INSERT INTO feed_artifacts (source_id, content, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(source_id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		sourceID, content, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save feed artifact: %w", err)
	}
	return nil
}

// FeedArtifactByPath returns the published feed for a source's ics_path or
// any of its serving aliases, or "" with found=false when nothing has been
// published there.
func (s *Storage) FeedArtifactByPath(path string) (string, bool, error) {
	var content string
	err := s.db.QueryRow(
		`SELECT f.content FROM feed_artifacts f JOIN sources s ON f.source_id = s.id WHERE s.ics_path = ?1
		 UNION
		 SELECT f.content FROM feed_artifacts f JOIN source_paths p ON f.source_id = p.source_id WHERE p.path = ?1
		 LIMIT 1`,
		path,
	).Scan(&content)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("feed artifact by path: %w", err)
	}
	return content, true, nil
}

// FeedArtifactByPublicPath resolves an unauthenticated feed request. A
// source with a custom public path is matched on it; a public source
// without one is served at its standard feed path; a public alias serves
// its source's feed regardless of the source's own exposure.
func (s *Storage) FeedArtifactByPublicPath(path string) (string, bool, error) {
	var content string
	err := s.db.QueryRow(
		`SELECT f.content FROM feed_artifacts f JOIN sources s ON f.source_id = s.id
		 WHERE s.public_ics = 1 AND (
			(s.public_ics_path != '' AND s.public_ics_path = ?1)
			OR (s.public_ics_path = '' AND s.ics_path = ?1)
		 )
		 UNION
		 SELECT f.content FROM feed_artifacts f JOIN source_paths p ON f.source_id = p.source_id
		 WHERE p.is_public = 1 AND p.path = ?1
		 LIMIT 1`,
		path,
	).Scan(&content)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("feed artifact by public path: %w", err)
	}
	return content, true, nil
}
