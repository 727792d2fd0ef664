// Package scheduler owns one recurring timer per configured entity and
// guarantees at most one concurrent run per entity.
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tazhate/calsync/internal/domain"
)

// ErrAlreadyRunning rejects a trigger for an entity whose run is in flight.
var ErrAlreadyRunning = errors.New("sync already running")

// ErrNotRegistered rejects a trigger for an entity the scheduler does not know.
var ErrNotRegistered = errors.New("entity not registered")

// Kind separates the two entity namespaces sharing the scheduler.
type Kind string

const (
	KindSource      Kind = "source"
	KindDestination Kind = "destination"
)

// Key identifies one scheduled entity.
type Key struct {
	Kind Kind
	ID   int64
}

// Runner executes sync runs; implemented by sync.Engine.
type Runner interface {
	SyncSource(ctx context.Context, id int64) (string, error)
	SyncDestination(ctx context.Context, id int64) (string, error)
}

// task is the per-entity schedule state. The run mutex makes timer-driven
// and manual runs mutually exclusive without serializing other entities.
type task struct {
	run   sync.Mutex
	entry cron.EntryID // 0 when the entity is manual-only
	name  string
}

type Scheduler struct {
	cron   *cron.Cron
	runner Runner

	mu    sync.Mutex
	tasks map[Key]*task
}

func New(runner Runner) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		tasks:  make(map[Key]*task),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("Scheduler started")
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Scheduler stopped")
}

// UpsertSource registers or re-arms the timer for a source. An interval
// change replaces the timer without touching a run already in progress.
func (s *Scheduler) UpsertSource(src *domain.Source) {
	s.upsert(Key{KindSource, src.ID}, src.Name, src.SyncIntervalSecs)
}

// UpsertDestination registers or re-arms the timer for a destination.
func (s *Scheduler) UpsertDestination(dst *domain.Destination) {
	s.upsert(Key{KindDestination, dst.ID}, dst.Name, dst.SyncIntervalSecs)
}

func (s *Scheduler) upsert(key Key, name string, intervalSecs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[key]
	if !ok {
		t = &task{}
		s.tasks[key] = t
	}
	t.name = name

	if t.entry != 0 {
		s.cron.Remove(t.entry)
		t.entry = 0
	}
	if intervalSecs <= 0 {
		log.Printf("Scheduled %s %d (%s): manual sync only", key.Kind, key.ID, name)
		return
	}

	interval := time.Duration(intervalSecs) * time.Second
	t.entry = s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		s.runScheduled(key)
	}))
	log.Printf("Scheduled %s %d (%s): every %s", key.Kind, key.ID, name, interval)
}

// Remove cancels the entity's timer. An in-flight run is not aborted; its
// status write lands on a deleted row and is silently dropped by storage.
func (s *Scheduler) Remove(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[key]
	if !ok {
		return
	}
	if t.entry != 0 {
		s.cron.Remove(t.entry)
	}
	delete(s.tasks, key)
	log.Printf("Cancelled schedule for %s %d", key.Kind, key.ID)
}

// TriggerNow runs the entity synchronously, independent of the timer's
// remaining period. It fails with ErrAlreadyRunning instead of queueing.
func (s *Scheduler) TriggerNow(ctx context.Context, key Key) (string, error) {
	s.mu.Lock()
	t, ok := s.tasks[key]
	s.mu.Unlock()
	if !ok {
		return "", ErrNotRegistered
	}

	if !t.run.TryLock() {
		return "", ErrAlreadyRunning
	}
	defer t.run.Unlock()

	return s.execute(ctx, key)
}

// runScheduled is the timer callback. A fire that overlaps a run still in
// progress is skipped; the interval resumes from the running entry.
func (s *Scheduler) runScheduled(key Key) {
	s.mu.Lock()
	t, ok := s.tasks[key]
	s.mu.Unlock()
	if !ok {
		return
	}

	if !t.run.TryLock() {
		log.Printf("Skipping scheduled run for %s %d: previous run still in progress", key.Kind, key.ID)
		return
	}
	defer t.run.Unlock()

	if _, err := s.execute(context.Background(), key); err != nil {
		log.Printf("Scheduled run for %s %d failed: %v", key.Kind, key.ID, err)
	}
}

func (s *Scheduler) execute(ctx context.Context, key Key) (string, error) {
	switch key.Kind {
	case KindSource:
		return s.runner.SyncSource(ctx, key.ID)
	case KindDestination:
		return s.runner.SyncDestination(ctx, key.ID)
	default:
		return "", errors.New("unknown entity kind")
	}
}
