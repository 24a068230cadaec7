// Package refresh runs one fetch, reconcile, and notify cycle.
package refresh

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/release-tracker/internal/metrics"
	"github.com/JakeFAU/release-tracker/internal/notify"
	"github.com/JakeFAU/release-tracker/internal/reconcile"
	"github.com/JakeFAU/release-tracker/internal/telemetry"
	"github.com/JakeFAU/release-tracker/internal/tracker"
)

// Reconciler is the slice of reconcile.Reconciler a run needs.
type Reconciler interface {
	Apply(ctx context.Context, source string, candidates []tracker.Release) reconcile.Summary
	MarkRefreshed(ctx context.Context, at time.Time) error
}

// Notifier delivers the completion message.
type Notifier interface {
	Notify(ctx context.Context, message string, event tracker.EventKind) (notify.Report, error)
}

// Config names the publish topic.
type Config struct {
	Topic string
}

// Orchestrator runs refresh cycles. Runs may overlap; per-release
// serialization lives in the reconciler.
type Orchestrator struct {
	sources    []tracker.Source
	reconciler Reconciler
	notifier   Notifier
	publisher  tracker.Publisher
	clock      tracker.Clock
	ids        tracker.IDGenerator
	cfg        Config
	tracer     trace.Tracer
	logger     *zap.Logger
}

// New builds an Orchestrator. publisher may be nil.
func New(
	sources []tracker.Source,
	reconciler Reconciler,
	notifier Notifier,
	publisher tracker.Publisher,
	clock tracker.Clock,
	ids tracker.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		sources:    sources,
		reconciler: reconciler,
		notifier:   notifier,
		publisher:  publisher,
		clock:      clock,
		ids:        ids,
		cfg:        cfg,
		tracer:     telemetry.Tracer(),
		logger:     logger,
	}
}

// Run executes one cycle. It always returns a Result; failures along the
// way are logged and reflected in the per-source status.
func (o *Orchestrator) Run(ctx context.Context) Result {
	runID, err := o.ids.NewID()
	if err != nil {
		o.logger.Warn("generate run id failed", zap.Error(err))
	}
	res := Result{RunID: runID, StartedAt: o.clock.Now()}
	logger := o.logger.With(zap.String("run_id", runID))

	ctx, span := o.tracer.Start(ctx, "refresh.run", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()
	metrics.IncRefreshInFlight()
	defer metrics.DecRefreshInFlight()

	o.enter(logger, PhaseFetching)
	batches := o.fetchAll(ctx, logger)

	o.enter(logger, PhaseReconciling)
	for _, b := range batches {
		summary := o.reconciler.Apply(ctx, b.Source, b.Releases)
		sr := SourceResult{
			Source:  b.Source,
			Count:   len(b.Releases),
			Status:  b.Status,
			Summary: summary,
		}
		if b.Err != nil {
			sr.Error = b.Err.Error()
		}
		res.Sources = append(res.Sources, sr)
		logger.Info("source reconciled",
			zap.String("source", b.Source),
			zap.String("status", string(b.Status)),
			zap.Int("candidates", sr.Count),
			zap.Int("created", summary.Created),
			zap.Int("updated", summary.Updated),
			zap.Int("unchanged", summary.Unchanged),
			zap.Int("skipped", summary.Skipped),
			zap.Int("failed", summary.Failed),
		)
	}

	o.enter(logger, PhasePersistingTimestamp)
	if err := o.reconciler.MarkRefreshed(ctx, o.clock.Now()); err != nil {
		logger.Warn("record last refresh failed", zap.Error(err))
	}

	o.enter(logger, PhaseNotifying)
	chromium, electron := res.Counts()
	message := fmt.Sprintf("Release data refreshed: %d Chromium releases and %d Electron releases updated.", chromium, electron)
	if o.notifier != nil {
		report, err := o.notifier.Notify(ctx, message, tracker.EventRefresh)
		if err != nil {
			logger.Warn("refresh notification failed", zap.Error(err))
		}
		res.Notification = report
	}

	res.FinishedAt = o.clock.Now()
	o.publish(ctx, logger, res)

	o.enter(logger, PhaseIdle)
	status := res.Status()
	metrics.ObserveRefresh(status, res.FinishedAt.Sub(res.StartedAt))
	span.SetAttributes(
		attribute.String("status", status),
		attribute.Int("chromium", chromium),
		attribute.Int("electron", electron),
	)
	logger.Info("refresh finished",
		zap.String("status", status),
		zap.Int("chromium", chromium),
		zap.Int("electron", electron),
		zap.Duration("duration", res.FinishedAt.Sub(res.StartedAt)),
	)
	return res
}

// fetchAll queries every source concurrently. A source error becomes an
// empty failed batch.
func (o *Orchestrator) fetchAll(ctx context.Context, logger *zap.Logger) []tracker.Batch {
	batches := make([]tracker.Batch, len(o.sources))
	var g errgroup.Group
	for i, src := range o.sources {
		g.Go(func() error {
			batches[i] = o.fetchOne(ctx, logger, src)
			return nil
		})
	}
	_ = g.Wait()
	return batches
}

func (o *Orchestrator) fetchOne(ctx context.Context, logger *zap.Logger, src tracker.Source) tracker.Batch {
	ctx, span := o.tracer.Start(ctx, "refresh.fetch", trace.WithAttributes(attribute.String("source", src.Name())))
	defer span.End()

	batch, err := src.Fetch(ctx)
	if err != nil {
		logger.Error("source fetch failed", zap.String("source", src.Name()), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		batch = tracker.Batch{Source: src.Name(), Status: tracker.SourceFailed, Err: err}
	}
	if batch.Source == "" {
		batch.Source = src.Name()
	}
	if batch.Status == "" {
		batch.Status = tracker.SourceOK
	}
	if batch.Status == tracker.SourceDegraded {
		logger.Warn("source degraded", zap.String("source", batch.Source), zap.Error(batch.Err))
	}
	span.SetAttributes(
		attribute.String("status", string(batch.Status)),
		attribute.Int("releases", len(batch.Releases)),
	)
	metrics.ObserveSourceFetch(batch.Source, string(batch.Status), len(batch.Releases))
	return batch
}

func (o *Orchestrator) publish(ctx context.Context, logger *zap.Logger, res Result) {
	if o.publisher == nil {
		return
	}
	id, err := o.publisher.Publish(ctx, o.cfg.Topic, newEvent(res))
	if err != nil {
		logger.Warn("publish refresh event failed", zap.Error(err))
		return
	}
	logger.Debug("refresh event published", zap.String("message_id", id))
}

func (o *Orchestrator) enter(logger *zap.Logger, phase Phase) {
	metrics.ObservePhase(string(phase))
	logger.Debug("refresh phase", zap.String("phase", string(phase)))
}
