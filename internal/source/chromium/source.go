package chromium

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/release-tracker/internal/fetcher/colly"
	"github.com/JakeFAU/release-tracker/internal/metrics"
	"github.com/JakeFAU/release-tracker/internal/source"
	"github.com/JakeFAU/release-tracker/internal/tracker"
)

// Config controls the schedule source.
type Config struct {
	URL string
	// SnapshotPath is the blob path of the last good payload. Empty disables snapshots.
	SnapshotPath string
	// Timeout bounds one Fetch, retries included.
	Timeout time.Duration
}

// Source fetches the milestone schedule. It never fails: when the upstream
// is unreachable or malformed it serves the last good snapshot, and failing
// that the static schedule, and marks the batch degraded.
type Source struct {
	cfg       Config
	fetcher   source.HTTPFetcher
	snapshots tracker.BlobStore
	hasher    tracker.Hasher
	logger    *zap.Logger

	mu       sync.Mutex
	lastHash string
}

// New builds a Source. snapshots and hasher may be nil.
func New(
	cfg Config,
	fetcher source.HTTPFetcher,
	snapshots tracker.BlobStore,
	hasher tracker.Hasher,
	logger *zap.Logger,
) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		cfg:       cfg,
		fetcher:   fetcher,
		snapshots: snapshots,
		hasher:    hasher,
		logger:    logger,
	}
}

// Name implements tracker.Source.
func (s *Source) Name() string { return SourceName }

// Fetch implements tracker.Source. The returned error is always nil; the
// batch status carries the outcome.
func (s *Source) Fetch(ctx context.Context) (tracker.Batch, error) {
	fetchCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	body, milestones, err := s.fetchLive(fetchCtx)
	if err == nil {
		s.saveSnapshot(ctx, body)
		return tracker.Batch{
			Source:   SourceName,
			Releases: Normalize(milestones),
			Status:   tracker.SourceOK,
		}, nil
	}

	s.logger.Warn("chromium schedule unavailable, using fallback data", zap.Error(err))
	return s.fallback(ctx, err), nil
}

func (s *Source) fetchLive(ctx context.Context) ([]byte, []Milestone, error) {
	resp, err := s.fetcher.Fetch(ctx, collyfetcher.Request{
		URL:     s.cfg.URL,
		Headers: http.Header{"Accept": {"application/json"}},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("fetch chromium schedule: %w", err)
	}
	milestones, err := Decode(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp.Body, milestones, nil
}

func (s *Source) fallback(ctx context.Context, cause error) tracker.Batch {
	if milestones, ok := s.loadSnapshot(ctx); ok {
		s.logger.Info("serving chromium schedule from snapshot",
			zap.String("path", s.cfg.SnapshotPath),
			zap.Int("milestones", len(milestones)),
		)
		return tracker.Batch{
			Source:   SourceName,
			Releases: Normalize(milestones),
			Status:   tracker.SourceDegraded,
			Err:      cause,
		}
	}
	s.logger.Info("serving static chromium schedule")
	return tracker.Batch{
		Source:   SourceName,
		Releases: Normalize(StaticMilestones()),
		Status:   tracker.SourceDegraded,
		Err:      cause,
	}
}

func (s *Source) loadSnapshot(ctx context.Context) ([]Milestone, bool) {
	if s.snapshots == nil || s.cfg.SnapshotPath == "" {
		return nil, false
	}
	body, err := s.snapshots.GetObject(ctx, s.cfg.SnapshotPath)
	if err != nil {
		if !errors.Is(err, tracker.ErrNotFound) {
			s.logger.Warn("read chromium snapshot failed", zap.Error(err))
		}
		return nil, false
	}
	milestones, err := Decode(body)
	if err != nil {
		s.logger.Warn("stored chromium snapshot is invalid", zap.Error(err))
		return nil, false
	}
	return milestones, true
}

// saveSnapshot persists body when it differs from the last payload written.
// Failures are logged only.
func (s *Source) saveSnapshot(ctx context.Context, body []byte) {
	if s.snapshots == nil || s.cfg.SnapshotPath == "" {
		return
	}
	hash := ""
	if s.hasher != nil {
		h, err := s.hasher.Hash(body)
		if err != nil {
			s.logger.Warn("hash chromium payload failed", zap.Error(err))
		}
		hash = h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if hash != "" && hash == s.lastHash {
		metrics.ObserveSnapshotWrite("unchanged")
		return
	}
	uri, err := s.snapshots.PutObject(ctx, s.cfg.SnapshotPath, "application/json", bytes.NewReader(body))
	if err != nil {
		metrics.ObserveSnapshotWrite("failed")
		s.logger.Warn("write chromium snapshot failed", zap.Error(err))
		return
	}
	s.lastHash = hash
	metrics.ObserveSnapshotWrite("written")
	s.logger.Debug("chromium snapshot written", zap.String("uri", uri), zap.String("sha256", hash))
}
