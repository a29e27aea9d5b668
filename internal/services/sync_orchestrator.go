package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/photosync/photosync/internal/clock"
	"github.com/photosync/photosync/internal/models"
	"github.com/photosync/photosync/internal/observability"
	"github.com/photosync/photosync/internal/repository"
)

// OrchestratorState is the running state of the sync engine
type OrchestratorState int32

const (
	StateIdle OrchestratorState = iota
	StateRunning
	StateFailed
)

func (s OrchestratorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// advanceTimeout bounds the watermark write, which runs even after the
// pass context is done so that completed uploads are not re-offered.
const advanceTimeout = 10 * time.Second

// SyncReporter observes sync passes. Calls happen on the pass goroutine.
type SyncReporter interface {
	SyncStarted(ctx context.Context, trigger models.Trigger, watermark int64, pending int)
	AssetProcessed(ctx context.Context, asset *models.Asset, outcome models.UploadOutcome)
	SyncFinished(ctx context.Context, result models.SyncResult)
}

// SyncRunner runs one sync pass
type SyncRunner interface {
	Run(ctx context.Context, trigger models.Trigger) models.SyncResult
}

// SyncOrchestrator uploads assets newer than the watermark and advances it
type SyncOrchestrator struct {
	source    AssetSource
	client    UploadClient
	watermark repository.WatermarkRepo
	metrics   *observability.SyncMetrics
	reporters []SyncReporter
	clock     clock.Clock

	state atomic.Int32
}

// OrchestratorOption configures a SyncOrchestrator
type OrchestratorOption func(*SyncOrchestrator)

// WithSyncMetrics records pass and upload metrics
func WithSyncMetrics(m *observability.SyncMetrics) OrchestratorOption {
	return func(o *SyncOrchestrator) { o.metrics = m }
}

// WithReporters adds pass observers
func WithReporters(reporters ...SyncReporter) OrchestratorOption {
	return func(o *SyncOrchestrator) { o.reporters = append(o.reporters, reporters...) }
}

// WithClock overrides the time source
func WithClock(c clock.Clock) OrchestratorOption {
	return func(o *SyncOrchestrator) { o.clock = c }
}

// NewSyncOrchestrator creates a new SyncOrchestrator
func NewSyncOrchestrator(source AssetSource, client UploadClient, watermark repository.WatermarkRepo, opts ...OrchestratorOption) *SyncOrchestrator {
	o := &SyncOrchestrator{
		source:    source,
		client:    client,
		watermark: watermark,
		clock:     clock.RealClock{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current running state
func (o *SyncOrchestrator) State() OrchestratorState {
	return OrchestratorState(o.state.Load())
}

// IsRunning reports whether a pass is in progress
func (o *SyncOrchestrator) IsRunning() bool {
	return o.State() == StateRunning
}

// tryStart moves Idle or Failed to Running. It returns false when another
// pass already holds the running state.
func (o *SyncOrchestrator) tryStart() bool {
	for {
		cur := o.state.Load()
		if OrchestratorState(cur) == StateRunning {
			return false
		}
		if o.state.CompareAndSwap(cur, int32(StateRunning)) {
			return true
		}
	}
}

// Run executes one sync pass. A pass that finds another one in progress
// returns a skipped result immediately.
func (o *SyncOrchestrator) Run(ctx context.Context, trigger models.Trigger) models.SyncResult {
	if !o.tryStart() {
		o.log(ctx).WithField("trigger", string(trigger)).Debugf("sync already in progress, skipping")
		o.metrics.RecordRun(ctx, string(trigger), string(models.RunSkipped))
		return models.SkippedResult(trigger)
	}

	ctx, span := observability.StartServiceSpan(ctx, "SyncOrchestrator", "Run")
	defer span.End()
	span.SetAttributes(observability.TriggerName(string(trigger)))

	result := o.run(ctx, trigger)

	switch result.Status {
	case models.RunFailed:
		o.state.Store(int32(StateFailed))
		observability.RecordError(span, result.Err)
	case models.RunInterrupted:
		o.state.Store(int32(StateIdle))
		observability.RecordError(span, result.Err)
	default:
		o.state.Store(int32(StateIdle))
		observability.SetSuccess(span)
	}
	span.SetAttributes(observability.Watermark(result.Watermark))

	o.metrics.RecordRun(ctx, string(trigger), string(result.Status))
	o.metrics.RecordWatermark(ctx, result.Watermark)
	o.logResult(ctx, result)

	for _, r := range o.reporters {
		r.SyncFinished(ctx, result)
	}
	return result
}

func (o *SyncOrchestrator) run(ctx context.Context, trigger models.Trigger) models.SyncResult {
	start := o.clock.Now()
	result := models.SyncResult{
		Trigger:   trigger,
		StartedAt: start.UTC(),
	}
	finish := func(status models.RunStatus) models.SyncResult {
		result.Status = status
		result.Duration = o.clock.Now().Sub(start)
		return result
	}

	current, err := o.watermark.Read(ctx)
	if err != nil {
		result.Err = fmt.Errorf("failed to read watermark: %w", err)
		return finish(models.RunFailed)
	}
	result.PreviousWatermark = current
	result.Watermark = current

	candidates, err := o.source.QueryNewerThan(ctx, current)
	if err != nil {
		result.Err = sourceUnavailable(err)
		return finish(models.RunFailed)
	}
	result.Seen = len(candidates)

	for _, r := range o.reporters {
		r.SyncStarted(ctx, trigger, current, len(candidates))
	}

	hwm, blocked := current, false
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			// Nothing at or after c was attempted.
			if !blocked {
				hwm = min(hwm, c.AddedAt-1)
				blocked = true
			}
			result.Unattempted = len(candidates) - i
			result.Err = err
			break
		}

		outcome := o.upload(ctx, c)
		for _, r := range o.reporters {
			r.AssetProcessed(ctx, c, outcome)
		}

		switch {
		case outcome.Success:
			result.Succeeded++
			result.LastUploaded = c.Name
			if !blocked {
				hwm = max(hwm, c.AddedAt)
			}
		case outcome.Kind == models.FailurePermanent:
			result.RecordFailure(c, outcome)
			if !blocked {
				hwm = max(hwm, c.AddedAt)
			}
		default:
			result.RecordFailure(c, outcome)
			if !blocked {
				hwm = min(hwm, c.AddedAt-1)
				blocked = true
			}
		}
	}

	if hwm > current {
		if err := o.advance(ctx, hwm); err != nil {
			if errors.Is(err, models.ErrRegressionRejected) {
				o.log(ctx).WithError(err).Errorf("watermark regression from %d to %d", current, hwm)
			}
			result.Err = fmt.Errorf("failed to persist watermark: %w", err)
			return finish(models.RunFailed)
		}
		result.Watermark = hwm
	}

	switch {
	case result.Unattempted > 0:
		return finish(models.RunInterrupted)
	case result.Failed > 0:
		return finish(models.RunCompletedWithFailures)
	}
	return finish(models.RunCompleted)
}

func (o *SyncOrchestrator) upload(ctx context.Context, asset *models.Asset) models.UploadOutcome {
	ctx, span := observability.StartServiceSpan(ctx, "SyncOrchestrator", "UploadAsset")
	defer span.End()
	span.SetAttributes(observability.AssetID(asset.ID))

	outcome := o.client.Upload(ctx, asset)
	o.metrics.RecordUpload(ctx, outcomeLabel(outcome))

	log := o.log(ctx).WithFields(map[string]interface{}{
		"asset":    asset.Name,
		"added_at": asset.AddedAt,
	})
	if outcome.Success {
		observability.SetSuccess(span)
		if outcome.Duplicate {
			log.Debugf("already on server as %s", outcome.RemoteID)
		} else {
			log.Debugf("uploaded as %s", outcome.RemoteID)
		}
		return outcome
	}

	observability.RecordError(span, outcome.Err)
	if outcome.Kind == models.FailurePermanent {
		log.WithError(outcome.Err).Warn("asset cannot be uploaded and will not be retried")
	} else {
		log.WithError(outcome.Err).Warn("upload failed, will retry on next sync")
	}
	return outcome
}

func (o *SyncOrchestrator) advance(ctx context.Context, value int64) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), advanceTimeout)
	defer cancel()
	return o.watermark.Advance(ctx, value)
}

func (o *SyncOrchestrator) log(ctx context.Context) *observability.Logger {
	return observability.WithContext(ctx).WithField("component", "sync")
}

func (o *SyncOrchestrator) logResult(ctx context.Context, result models.SyncResult) {
	log := o.log(ctx).WithFields(map[string]interface{}{
		"trigger":   string(result.Trigger),
		"status":    string(result.Status),
		"watermark": result.Watermark,
		"duration":  result.Duration.String(),
	})
	switch result.Status {
	case models.RunFailed:
		log.Errorf("%s", result.Summary())
	case models.RunCompletedWithFailures, models.RunInterrupted:
		log.Warn(result.Summary())
	default:
		log.Info(result.Summary())
	}
}

func outcomeLabel(outcome models.UploadOutcome) string {
	switch {
	case outcome.Success && outcome.Duplicate:
		return "duplicate"
	case outcome.Success:
		return "success"
	default:
		return outcome.Kind.String()
	}
}
