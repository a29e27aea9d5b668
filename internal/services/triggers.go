package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/photosync/photosync/internal/models"
	"github.com/photosync/photosync/internal/observability"
)

// ManualTrigger runs a pass on explicit request and reports the result back
type ManualTrigger struct {
	runner SyncRunner
}

// NewManualTrigger creates a new ManualTrigger
func NewManualTrigger(runner SyncRunner) *ManualTrigger {
	return &ManualTrigger{runner: runner}
}

// Request starts a pass on a worker goroutine. The channel receives exactly
// one result and is never closed before it.
func (t *ManualTrigger) Request(ctx context.Context) <-chan models.SyncResult {
	out := make(chan models.SyncResult, 1)
	go func() {
		out <- t.runner.Run(ctx, models.TriggerManual)
		close(out)
	}()
	return out
}

// ChangeTrigger coalesces bursts of change notifications into single passes
type ChangeTrigger struct {
	runner SyncRunner
	quiet  time.Duration
	notify chan struct{}
}

// NewChangeTrigger creates a ChangeTrigger that runs once notifications
// have been quiet for the given period
func NewChangeTrigger(runner SyncRunner, quiet time.Duration) *ChangeTrigger {
	if quiet <= 0 {
		quiet = 2 * time.Second
	}
	return &ChangeTrigger{
		runner: runner,
		quiet:  quiet,
		notify: make(chan struct{}, 1),
	}
}

// Notify marks the store dirty. It never blocks.
func (t *ChangeTrigger) Notify() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// OnIndexed lets the trigger listen to the media indexer
func (t *ChangeTrigger) OnIndexed(*models.Asset) {
	t.Notify()
}

// Start consumes notifications until ctx is done
func (t *ChangeTrigger) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.notify:
		}

		if !t.waitQuiet(ctx) {
			return nil
		}

		result := t.runner.Run(ctx, models.TriggerChange)
		if result.Status == models.RunSkipped {
			// Another pass may have queried the store before this change landed.
			t.Notify()
		}
	}
}

// waitQuiet returns once no notification arrived for the quiet period
func (t *ChangeTrigger) waitQuiet(ctx context.Context) bool {
	timer := time.NewTimer(t.quiet)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-t.notify:
			timer.Reset(t.quiet)
		case <-timer.C:
			return true
		}
	}
}

// ResourceGate decides whether background work may run now
type ResourceGate interface {
	Allow(ctx context.Context) (bool, string)
}

// AllowAll is a gate without constraints
type AllowAll struct{}

func (AllowAll) Allow(context.Context) (bool, string) { return true, "" }

// DeviceConditions is the state reported by the platform in the conditions file
type DeviceConditions struct {
	Unmetered bool `json:"unmetered"`
	Charging  bool `json:"charging"`
}

// ConditionsGate enforces network and power requirements reported by the
// platform through a small JSON file. A missing or unreadable file allows
// work, since the platform is then not enforcing anything.
type ConditionsGate struct {
	path             string
	requireUnmetered bool
	requireCharging  bool
}

// NewConditionsGate creates a new ConditionsGate
func NewConditionsGate(path string, requireUnmetered, requireCharging bool) *ConditionsGate {
	return &ConditionsGate{
		path:             path,
		requireUnmetered: requireUnmetered,
		requireCharging:  requireCharging,
	}
}

// Allow reports whether the requirements are met, with a reason when not
func (g *ConditionsGate) Allow(ctx context.Context) (bool, string) {
	if !g.requireUnmetered && !g.requireCharging {
		return true, ""
	}
	if g.path == "" {
		return true, ""
	}

	conditions, err := readConditions(g.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			observability.WithContext(ctx).WithError(err).Warn("ignoring unreadable conditions file")
		}
		return true, ""
	}

	if g.requireUnmetered && !conditions.Unmetered {
		return false, "waiting for an unmetered network"
	}
	if g.requireCharging && !conditions.Charging {
		return false, "waiting for the device to charge"
	}
	return true, ""
}

func readConditions(path string) (DeviceConditions, error) {
	var c DeviceConditions
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("invalid conditions file %s: %w", path, err)
	}
	return c, nil
}

// PeriodicTrigger runs a pass at a fixed interval when the gate allows it
type PeriodicTrigger struct {
	runner     SyncRunner
	interval   time.Duration
	gate       ResourceGate
	runTimeout time.Duration
}

// NewPeriodicTrigger creates a new PeriodicTrigger. A zero runTimeout lets
// passes run without a deadline.
func NewPeriodicTrigger(runner SyncRunner, interval time.Duration, gate ResourceGate, runTimeout time.Duration) *PeriodicTrigger {
	if gate == nil {
		gate = AllowAll{}
	}
	return &PeriodicTrigger{
		runner:     runner,
		interval:   interval,
		gate:       gate,
		runTimeout: runTimeout,
	}
}

// Start ticks until ctx is done
func (t *PeriodicTrigger) Start(ctx context.Context) error {
	if t.interval <= 0 {
		return fmt.Errorf("periodic sync interval must be positive, got %s", t.interval)
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *PeriodicTrigger) tick(ctx context.Context) models.SyncResult {
	if ok, reason := t.gate.Allow(ctx); !ok {
		observability.WithContext(ctx).WithField("reason", reason).Info("periodic sync deferred")
		return models.SyncResult{Trigger: models.TriggerPeriodic, Status: models.RunSkipped}
	}

	if t.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.runTimeout)
		defer cancel()
	}
	return t.runner.Run(ctx, models.TriggerPeriodic)
}
