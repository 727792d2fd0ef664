package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/tazhate/calsync/internal/clients/caldav"
	"github.com/tazhate/calsync/internal/domain"
	"github.com/tazhate/calsync/internal/storage"
)

// ErrEntityNotFound means the source or destination row is gone.
var ErrEntityNotFound = errors.New("entity not found")

// Engine executes sync runs and keeps each entity's status fields current.
// Runs for different entities are independent; run exclusivity per entity is
// the scheduler's job.
type Engine struct {
	store      *storage.Storage
	clients    ClientFactory
	httpClient *http.Client
}

// NewEngine wires the engine. A nil factory builds real CalDAV clients with
// the given network timeout.
func NewEngine(store *storage.Storage, clients ClientFactory, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if clients == nil {
		clients = func(baseURL, username, password string) CalendarClient {
			return caldav.NewClient(baseURL, username, password, timeout)
		}
	}
	return &Engine{
		store:      store,
		clients:    clients,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SyncSource runs one CalDAV→feed job and records its outcome. The status
// update is a no-op if the row was deleted while the run was in flight.
func (e *Engine) SyncSource(ctx context.Context, id int64) (string, error) {
	src, err := e.store.GetSource(id)
	if err != nil {
		return "", err
	}
	if src == nil {
		return "", fmt.Errorf("source %d: %w", id, ErrEntityNotFound)
	}

	client := e.clients(src.CalDAVURL, src.Username, src.Password)

	var content string
	var run *SourceRun
	err = withRetry(ctx, func() error {
		var runErr error
		content, run, runErr = runSource(ctx, client, src)
		return runErr
	})
	if err != nil {
		log.Printf("Source %d (%s) sync failed: %v", id, src.Name, err)
		if serr := e.store.UpdateSourceSyncStatus(id, domain.StatusError, err.Error()); serr != nil {
			log.Printf("Failed to record error status for source %d: %v", id, serr)
		}
		return "", err
	}

	if err := e.store.SaveFeedArtifact(id, content); err != nil {
		_ = e.store.UpdateSourceSyncStatus(id, domain.StatusError, err.Error())
		return "", err
	}
	if err := e.store.UpdateSourceSyncStatus(id, domain.StatusOK, ""); err != nil {
		log.Printf("Failed to record ok status for source %d: %v", id, err)
	}

	log.Printf("Source %d (%s): %s", id, src.Name, run)
	return run.String(), nil
}

// SyncDestination runs one feed→CalDAV job and records its outcome.
func (e *Engine) SyncDestination(ctx context.Context, id int64) (string, error) {
	dst, err := e.store.GetDestination(id)
	if err != nil {
		return "", err
	}
	if dst == nil {
		return "", fmt.Errorf("destination %d: %w", id, ErrEntityNotFound)
	}

	client := e.clients(dst.CalDAVURL, dst.Username, dst.Password)

	var stats *Stats
	err = withRetry(ctx, func() error {
		var runErr error
		stats, runErr = runDestination(ctx, e.httpClient, client, dst)
		return runErr
	})
	if err != nil {
		log.Printf("Destination %d (%s) sync failed: %v", id, dst.Name, err)
		if serr := e.store.UpdateDestinationSyncStatus(id, domain.StatusError, err.Error()); serr != nil {
			log.Printf("Failed to record error status for destination %d: %v", id, serr)
		}
		return "", err
	}

	if err := e.store.UpdateDestinationSyncStatus(id, domain.StatusOK, ""); err != nil {
		log.Printf("Failed to record ok status for destination %d: %v", id, err)
	}

	log.Printf("Destination %d (%s): %s", id, dst.Name, stats)
	return stats.String(), nil
}
