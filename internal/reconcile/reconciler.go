// Package reconcile merges normalized candidates into the store without
// disturbing manually overridden releases.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/release-tracker/internal/metrics"
	"github.com/JakeFAU/release-tracker/internal/tracker"
)

// Outcome describes what Upsert did with one candidate.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Summary tallies the outcomes of one Apply call.
type Summary struct {
	Source    string `json:"source"`
	Created   int    `json:"created"`
	Updated   int    `json:"updated"`
	Unchanged int    `json:"unchanged"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// Total is the number of candidates seen.
func (s Summary) Total() int {
	return s.Created + s.Updated + s.Unchanged + s.Skipped + s.Failed
}

func (s *Summary) add(o Outcome) {
	switch o {
	case OutcomeCreated:
		s.Created++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeUnchanged:
		s.Unchanged++
	case OutcomeSkipped:
		s.Skipped++
	default:
		s.Failed++
	}
}

const defaultConcurrency = 4

// Reconciler owns every write to releases and settings.
type Reconciler struct {
	store       tracker.Store
	clock       tracker.Clock
	logger      *zap.Logger
	concurrency int
	locks       *keyedMutex
}

// New builds a Reconciler. concurrency bounds Apply.
func New(store tracker.Store, clock tracker.Clock, concurrency int, logger *zap.Logger) *Reconciler {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:       store,
		clock:       clock,
		logger:      logger,
		concurrency: concurrency,
		locks:       newKeyedMutex(),
	}
}

// StorageKind reports which backend is in use.
func (r *Reconciler) StorageKind() string { return r.store.Kind() }

// Ping checks the backend when it supports a liveness probe.
func (r *Reconciler) Ping(ctx context.Context) error {
	if p, ok := r.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Get returns one release.
func (r *Reconciler) Get(ctx context.Context, id string) (tracker.Release, error) {
	return r.store.GetRelease(ctx, id)
}

// List returns releases ordered by date, then id.
func (r *Reconciler) List(ctx context.Context, filter tracker.ReleaseFilter) ([]tracker.Release, error) {
	return r.store.ListReleases(ctx, filter)
}

// Upsert merges one candidate. Overridden releases are returned untouched.
// When only timestamps would change nothing is written.
func (r *Reconciler) Upsert(ctx context.Context, candidate tracker.Release) (tracker.Release, Outcome, error) {
	if err := candidate.Validate(); err != nil {
		return tracker.Release{}, OutcomeFailed, err
	}
	unlock := r.locks.Lock(candidate.ID)
	defer unlock()

	existing, err := r.store.GetRelease(ctx, candidate.ID)
	switch {
	case errors.Is(err, tracker.ErrNotFound):
		now := r.clock.Now()
		fresh := candidate
		fresh.CreatedAt = now
		fresh.UpdatedAt = now
		return r.write(ctx, fresh, OutcomeCreated)
	case err != nil:
		return tracker.Release{}, OutcomeFailed, fmt.Errorf("load release %q: %w", candidate.ID, err)
	}

	if existing.IsManualOverride {
		return existing, OutcomeSkipped, nil
	}

	merged := existing
	merged.Name = candidate.Name
	merged.Date = candidate.Date
	merged.Type = candidate.Type
	merged.Project = candidate.Project
	if merged.SameContent(existing) {
		return existing, OutcomeUnchanged, nil
	}
	merged.UpdatedAt = r.clock.Now()
	return r.write(ctx, merged, OutcomeUpdated)
}

// write performs the guarded save. A refused write means an override landed
// after the read; the stored row is returned as skipped.
func (r *Reconciler) write(ctx context.Context, rel tracker.Release, outcome Outcome) (tracker.Release, Outcome, error) {
	applied, err := r.store.SaveRelease(ctx, rel, tracker.WriteUnlessOverridden)
	if err != nil {
		return tracker.Release{}, OutcomeFailed, err
	}
	if !applied {
		current, err := r.store.GetRelease(ctx, rel.ID)
		if err != nil {
			return tracker.Release{}, OutcomeFailed, fmt.Errorf("reload release %q: %w", rel.ID, err)
		}
		return current, OutcomeSkipped, nil
	}
	return rel, outcome, nil
}

// Apply reconciles a batch with bounded parallelism. Failing records are
// logged and counted; they never stop the rest of the batch.
func (r *Reconciler) Apply(ctx context.Context, source string, candidates []tracker.Release) Summary {
	summary := Summary{Source: source}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, c := range candidates {
		g.Go(func() error {
			_, outcome, err := r.Upsert(ctx, c)
			if err != nil {
				r.logger.Warn("reconcile release failed",
					zap.String("source", source),
					zap.String("release_id", c.ID),
					zap.Error(err),
				)
				outcome = OutcomeFailed
			}
			metrics.ObserveReconcile(source, string(outcome))
			mu.Lock()
			summary.add(outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return summary
}

// Override is the administrative write: the flag is forced on, the
// original CreatedAt is kept, and the merge rules do not apply.
func (r *Reconciler) Override(ctx context.Context, rel tracker.Release) (tracker.Release, error) {
	rel.IsManualOverride = true
	if err := rel.Validate(); err != nil {
		return tracker.Release{}, err
	}
	unlock := r.locks.Lock(rel.ID)
	defer unlock()

	now := r.clock.Now()
	existing, err := r.store.GetRelease(ctx, rel.ID)
	switch {
	case err == nil:
		rel.CreatedAt = existing.CreatedAt
	case errors.Is(err, tracker.ErrNotFound):
		rel.CreatedAt = now
	default:
		return tracker.Release{}, fmt.Errorf("load release %q: %w", rel.ID, err)
	}
	rel.UpdatedAt = now
	if _, err := r.store.SaveRelease(ctx, rel, tracker.WriteAlways); err != nil {
		return tracker.Release{}, err
	}
	return rel, nil
}

// Delete removes a release regardless of its override flag.
func (r *Reconciler) Delete(ctx context.Context, id string) error {
	unlock := r.locks.Lock(id)
	defer unlock()
	return r.store.DeleteRelease(ctx, id)
}

// Settings returns the stored settings row.
func (r *Reconciler) Settings(ctx context.Context) (tracker.Settings, error) {
	return r.store.GetSettings(ctx)
}

// EnsureSettings writes defaults when no settings row exists yet.
func (r *Reconciler) EnsureSettings(ctx context.Context, defaults tracker.Settings) (tracker.Settings, error) {
	current, err := r.store.GetSettings(ctx)
	if err == nil {
		return current, nil
	}
	if !errors.Is(err, tracker.ErrNotFound) {
		return tracker.Settings{}, err
	}
	now := r.clock.Now()
	defaults.ID = tracker.SettingsID
	defaults.CreatedAt = now
	defaults.UpdatedAt = now
	if err := r.store.SaveSettings(ctx, defaults); err != nil {
		return tracker.Settings{}, fmt.Errorf("save default settings: %w", err)
	}
	return defaults, nil
}

// MarkRefreshed records the completion time of a refresh.
func (r *Reconciler) MarkRefreshed(ctx context.Context, at time.Time) error {
	unlock := r.locks.Lock(tracker.SettingsID)
	defer unlock()

	settings, err := r.store.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	settings.LastRefreshed = &at
	settings.UpdatedAt = r.clock.Now()
	if err := r.store.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
