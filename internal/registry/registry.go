// Package registry tracks live and finished runs. Active runs live in
// memory and are mutated by exactly one writer, the owning run's
// goroutine; arbitrary pollers read them concurrently. Finished runs
// are flushed to SQLite and evicted from memory after a TTL by a
// cron-scheduled sweeper.
package registry

import (
	"database/sql"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hochfrequenz/ci-heal-orchestrator/internal/config"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/domain"
)

// ErrNotFound is returned when a run is neither in memory nor
// persisted.
var ErrNotFound = errors.New("run not found")

type Registry struct {
	mu    sync.RWMutex
	runs  map[string]*domain.Run
	store *Store
	ttl   time.Duration
	cron  *cron.Cron
}

// New creates a registry backed by the given store. store may be nil
// in tests; persistence and fallback lookups are then disabled.
func New(cfg config.RegistryConfig, store *Store) *Registry {
	ttl := time.Duration(cfg.TTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Registry{
		runs:  make(map[string]*domain.Run),
		store: store,
		ttl:   ttl,
	}
}

// Add registers an active run.
func (r *Registry) Add(run *domain.Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
}

// Get returns a run by ID, checking memory first and falling back to
// the persisted store for evicted runs.
func (r *Registry) Get(id string) (*domain.Run, error) {
	r.mu.RLock()
	run, ok := r.runs[id]
	r.mu.RUnlock()
	if ok {
		return run, nil
	}

	if r.store == nil {
		return nil, ErrNotFound
	}
	run, err := r.store.GetRun(id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Len returns the number of runs currently held in memory.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

// Flush persists the run's current state. Called by the owning
// goroutine at terminal transitions.
func (r *Registry) Flush(run *domain.Run) {
	if r.store == nil {
		return
	}
	if err := r.store.UpsertRun(run); err != nil {
		log.Printf("[registry] persisting run %s: %v", run.ID, err)
	}
}

// Sweep evicts finished runs older than the TTL from memory. Their
// persisted rows remain available through Get.
func (r *Registry) Sweep() int {
	cutoff := time.Now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, run := range r.runs {
		st := run.State()
		if st.FinishedAt == nil || st.FinishedAt.After(cutoff) {
			continue
		}
		delete(r.runs, id)
		evicted++
	}
	if evicted > 0 {
		log.Printf("[registry] evicted %d finished runs from memory", evicted)
	}
	return evicted
}

// StartSweeper schedules Sweep on the given cron expression.
func (r *Registry) StartSweeper(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { r.Sweep() }); err != nil {
		return err
	}
	c.Start()
	r.cron = c
	log.Printf("[registry] sweeper scheduled (%s, ttl %s)", spec, r.ttl)
	return nil
}

// StopSweeper stops the sweep schedule, waiting for an in-flight sweep.
func (r *Registry) StopSweeper() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}
