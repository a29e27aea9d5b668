package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/photosync/photosync/internal/clock"
	"github.com/photosync/photosync/internal/models"
	"github.com/photosync/photosync/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transient() models.UploadOutcome {
	return models.UploadTransientFailure(503, errors.New("service unavailable"))
}

func permanent() models.UploadOutcome {
	return models.UploadPermanentFailure(errors.New("source file no longer exists"))
}

func TestSyncOrchestrator_AllSuccess(t *testing.T) {
	ctx := context.Background()
	source := newMemSource(testAsset("a", 110), testAsset("b", 120), testAsset("c", 130))
	client := newScriptedClient()
	wm := &memWatermark{value: 100}
	o := NewSyncOrchestrator(source, client, wm)

	result := o.Run(ctx, models.TriggerManual)

	assert.Equal(t, models.RunCompleted, result.Status)
	assert.Equal(t, 3, result.Seen)
	assert.Equal(t, 3, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, int64(100), result.PreviousWatermark)
	assert.Equal(t, int64(130), result.Watermark)
	assert.Equal(t, int64(130), wm.get())
	assert.Equal(t, "c.jpg", result.LastUploaded)
	assert.Equal(t, []string{"a", "b", "c"}, client.uploaded())
	assert.Equal(t, StateIdle, o.State())

	t.Run("second run uploads nothing", func(t *testing.T) {
		client.reset()
		again := o.Run(ctx, models.TriggerManual)

		assert.Equal(t, models.RunCompleted, again.Status)
		assert.Empty(t, client.uploaded())
		assert.Equal(t, int64(130), wm.get())
		assert.Equal(t, 1, wm.writes)
	})
}

func TestSyncOrchestrator_NoCandidatesSkipsWrite(t *testing.T) {
	wm := &memWatermark{value: 500}
	o := NewSyncOrchestrator(newMemSource(testAsset("old", 400)), newScriptedClient(), wm)

	result := o.Run(context.Background(), models.TriggerPeriodic)

	assert.Equal(t, models.RunCompleted, result.Status)
	assert.Equal(t, 0, result.Seen)
	assert.Equal(t, 0, wm.writes)
	assert.Equal(t, "sync complete: 0 uploaded", result.Summary())
}

func TestSyncOrchestrator_TransientFailureStopsShort(t *testing.T) {
	ctx := context.Background()
	assets := []*models.Asset{
		testAsset("a", 110), testAsset("b", 120), testAsset("c", 130), testAsset("d", 140),
	}

	for k := range assets {
		t.Run(assets[k].ID, func(t *testing.T) {
			client := newScriptedClient()
			client.fail(assets[k].ID, transient())
			wm := &memWatermark{value: 100}
			o := NewSyncOrchestrator(newMemSource(assets...), client, wm)

			result := o.Run(ctx, models.TriggerChange)

			want := int64(100)
			if k > 0 {
				want = assets[k-1].AddedAt
			}
			assert.Equal(t, models.RunCompletedWithFailures, result.Status)
			assert.Equal(t, want, wm.get())
			assert.Equal(t, len(assets)-1, result.Succeeded)
			assert.Equal(t, 1, result.TransientFailures)

			client.reset()
			client.heal(assets[k].ID)
			o.Run(ctx, models.TriggerChange)

			var reoffered []string
			for _, a := range assets[k:] {
				reoffered = append(reoffered, a.ID)
			}
			assert.Equal(t, reoffered, client.uploaded())
			assert.Equal(t, int64(140), wm.get())
		})
	}
}

func TestSyncOrchestrator_PermanentFailureAdvances(t *testing.T) {
	ctx := context.Background()
	client := newScriptedClient()
	client.fail("b", permanent())
	wm := &memWatermark{value: 100}
	o := NewSyncOrchestrator(newMemSource(testAsset("a", 110), testAsset("b", 120), testAsset("c", 130)), client, wm)

	result := o.Run(ctx, models.TriggerManual)

	assert.Equal(t, models.RunCompletedWithFailures, result.Status)
	assert.Equal(t, int64(130), wm.get())
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.PermanentFailures)
	assert.Equal(t, 0, result.TransientFailures)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "b", result.Failures[0].AssetID)
	assert.Contains(t, result.Summary(), "1 lost: cannot be uploaded")

	client.reset()
	o.Run(ctx, models.TriggerManual)
	assert.Empty(t, client.uploaded())
}

func TestSyncOrchestrator_PermanentAfterTransientDoesNotAdvance(t *testing.T) {
	client := newScriptedClient()
	client.fail("b", transient())
	client.fail("c", permanent())
	wm := &memWatermark{value: 100}
	o := NewSyncOrchestrator(newMemSource(testAsset("a", 110), testAsset("b", 120), testAsset("c", 130)), client, wm)

	result := o.Run(context.Background(), models.TriggerManual)

	assert.Equal(t, int64(110), wm.get())
	assert.Equal(t, 1, result.TransientFailures)
	assert.Equal(t, 1, result.PermanentFailures)
}

func TestSyncOrchestrator_EndToEndExample(t *testing.T) {
	ctx := context.Background()
	client := newScriptedClient()
	client.fail("120", transient())
	wm := &memWatermark{value: 100}
	o := NewSyncOrchestrator(newMemSource(testAsset("110", 110), testAsset("120", 120), testAsset("130", 130)), client, wm)

	result := o.Run(ctx, models.TriggerManual)

	assert.Equal(t, int64(110), wm.get())
	assert.Equal(t, int64(110), result.Watermark)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, "sync completed with 1 failures (1 pending retry)", result.Summary())

	client.reset()
	o.Run(ctx, models.TriggerManual)
	assert.Equal(t, []string{"120", "130"}, client.uploaded())
}

func TestSyncOrchestrator_SharedTimestampIsRetried(t *testing.T) {
	ctx := context.Background()
	client := newScriptedClient()
	client.fail("y", transient())
	wm := &memWatermark{value: 100}
	o := NewSyncOrchestrator(newMemSource(testAsset("x", 110), testAsset("y", 110)), client, wm)

	o.Run(ctx, models.TriggerManual)
	assert.Equal(t, int64(109), wm.get())

	client.reset()
	client.heal("y")
	o.Run(ctx, models.TriggerManual)
	assert.Equal(t, []string{"x", "y"}, client.uploaded())
	assert.Equal(t, int64(110), wm.get())
}

func TestSyncOrchestrator_SourceUnavailable(t *testing.T) {
	ctx := context.Background()
	source := newMemSource(testAsset("a", 110))
	source.setErr(errStoreDown)
	client := newScriptedClient()
	wm := &memWatermark{value: 100}
	o := NewSyncOrchestrator(source, client, wm)

	result := o.Run(ctx, models.TriggerManual)

	assert.Equal(t, models.RunFailed, result.Status)
	assert.ErrorIs(t, result.Err, models.ErrSourceUnavailable)
	assert.Contains(t, result.Summary(), "sync failed")
	assert.Equal(t, int64(100), wm.get())
	assert.Empty(t, client.uploaded())
	assert.Equal(t, StateFailed, o.State())

	t.Run("next trigger recovers", func(t *testing.T) {
		source.setErr(nil)
		result := o.Run(ctx, models.TriggerManual)

		assert.Equal(t, models.RunCompleted, result.Status)
		assert.Equal(t, int64(110), wm.get())
		assert.Equal(t, StateIdle, o.State())
	})
}

func TestSyncOrchestrator_WatermarkReadFailure(t *testing.T) {
	wm := &memWatermark{readErr: errors.New("disk I/O error")}
	client := newScriptedClient()
	o := NewSyncOrchestrator(newMemSource(testAsset("a", 1)), client, wm)

	result := o.Run(context.Background(), models.TriggerManual)

	assert.Equal(t, models.RunFailed, result.Status)
	assert.Empty(t, client.uploaded())
	assert.Equal(t, StateFailed, o.State())
}

func TestSyncOrchestrator_RegressionRejected(t *testing.T) {
	wm := &memWatermark{
		value:    100,
		writeErr: models.ErrRegressionRejected,
	}
	o := NewSyncOrchestrator(newMemSource(testAsset("a", 110)), newScriptedClient(), wm)

	result := o.Run(context.Background(), models.TriggerManual)

	assert.Equal(t, models.RunFailed, result.Status)
	assert.ErrorIs(t, result.Err, models.ErrRegressionRejected)
	assert.Equal(t, int64(100), result.Watermark)
	assert.Equal(t, StateFailed, o.State())
}

func TestSyncOrchestrator_ConcurrentRunsSkip(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	client := newScriptedClient()
	client.before = func(context.Context, *models.Asset) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}
	wm := &memWatermark{value: 100}
	o := NewSyncOrchestrator(newMemSource(testAsset("a", 110), testAsset("b", 120)), client, wm)

	first := make(chan models.SyncResult, 1)
	go func() { first <- o.Run(ctx, models.TriggerPeriodic) }()

	<-entered
	assert.True(t, o.IsRunning())

	second := o.Run(ctx, models.TriggerChange)
	assert.Equal(t, models.RunSkipped, second.Status)
	assert.Equal(t, models.TriggerChange, second.Trigger)

	close(release)
	result := <-first

	assert.Equal(t, models.RunCompleted, result.Status)
	assert.Equal(t, []string{"a", "b"}, client.uploaded())
	assert.Equal(t, int64(120), wm.get())
	assert.False(t, o.IsRunning())
}

func TestSyncOrchestrator_ManyConcurrentTriggers(t *testing.T) {
	ctx := context.Background()
	source := newMemSource()
	for i := int64(1); i <= 20; i++ {
		source.add(testAsset(time.Unix(i, 0).UTC().Format("150405"), i))
	}
	client := newScriptedClient()
	wm := &memWatermark{}
	o := NewSyncOrchestrator(source, client, wm)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Run(ctx, models.TriggerChange)
		}()
	}
	wg.Wait()

	seen := make(map[string]int)
	for _, id := range client.uploaded() {
		seen[id]++
	}
	assert.Len(t, seen, 20)
	for id, n := range seen {
		assert.Equal(t, 1, n, "asset %s uploaded more than once", id)
	}
	assert.Equal(t, int64(20), wm.get())
}

func TestSyncOrchestrator_CancelledMidPass(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newScriptedClient()
	client.before = func(_ context.Context, a *models.Asset) {
		if a.ID == "b" {
			cancel()
		}
	}
	client.fail("b", models.UploadTransientFailure(0, context.Canceled))
	wm := &memWatermark{value: 100}
	o := NewSyncOrchestrator(newMemSource(testAsset("a", 110), testAsset("b", 120), testAsset("c", 130)), client, wm)

	result := o.Run(ctx, models.TriggerPeriodic)

	assert.Equal(t, []string{"a", "b"}, client.uploaded())
	assert.Equal(t, int64(110), wm.get())
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.TransientFailures)
	assert.Equal(t, 1, result.Unattempted)
	assert.Equal(t, models.RunInterrupted, result.Status)
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Equal(t, StateIdle, o.State())
}

func TestSyncOrchestrator_CancelledAfterSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newScriptedClient()
	client.before = func(_ context.Context, a *models.Asset) {
		if a.ID == "a" {
			cancel()
		}
	}
	wm := &memWatermark{value: 100}
	o := NewSyncOrchestrator(newMemSource(testAsset("a", 110), testAsset("b", 120), testAsset("c", 130)), client, wm)

	result := o.Run(ctx, models.TriggerPeriodic)

	assert.Equal(t, []string{"a"}, client.uploaded())
	assert.Equal(t, int64(110), wm.get())
	assert.Equal(t, models.RunInterrupted, result.Status)
	assert.Equal(t, 3, result.Seen)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 2, result.Unattempted)
	assert.Equal(t, "sync interrupted: 1 uploaded, 0 failed, 2 not attempted (context canceled)", result.Summary())
	assert.Equal(t, StateIdle, o.State())
}

func TestSyncOrchestrator_CancelledBeforeFirstUpload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newScriptedClient()
	wm := &memWatermark{value: 100}
	o := NewSyncOrchestrator(newMemSource(testAsset("a", 110)), client, wm)

	result := o.Run(ctx, models.TriggerPeriodic)

	assert.Empty(t, client.uploaded())
	assert.Equal(t, int64(100), wm.get())
	assert.Equal(t, 0, wm.writes)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 1, result.Unattempted)
	assert.Equal(t, models.RunInterrupted, result.Status)
	assert.Equal(t, "sync interrupted: 0 uploaded, 0 failed, 1 not attempted (context canceled)", result.Summary())
}

func TestSyncOrchestrator_Reporters(t *testing.T) {
	client := newScriptedClient()
	client.fail("b", transient())
	reporter := &recordingReporter{}
	fake := clock.NewFakeClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	client.before = func(context.Context, *models.Asset) { fake.Advance(time.Second) }

	o := NewSyncOrchestrator(
		newMemSource(testAsset("a", 110), testAsset("b", 120)),
		client,
		&memWatermark{value: 100},
		WithReporters(reporter),
		WithClock(fake),
	)

	result := o.Run(context.Background(), models.TriggerManual)

	assert.Equal(t, []int{2}, reporter.started)
	assert.Equal(t, []string{"a", "b"}, reporter.processed)
	require.Len(t, reporter.finished, 1)
	assert.Equal(t, result.Status, reporter.finished[0].Status)
	assert.Equal(t, 2*time.Second, result.Duration)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), result.StartedAt)

	t.Run("skipped runs only report finish", func(t *testing.T) {
		o.state.Store(int32(StateRunning))
		defer o.state.Store(int32(StateIdle))

		skipped := o.Run(context.Background(), models.TriggerChange)
		assert.Equal(t, models.RunSkipped, skipped.Status)
		assert.Len(t, reporter.finished, 1)
	})
}

func TestSyncOrchestrator_DurableWatermark(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "agent.db")

	db, err := repository.NewSQLiteDB(dbPath)
	require.NoError(t, err)

	client := newScriptedClient()
	client.fail("c", transient())
	source := newMemSource(testAsset("a", 110), testAsset("b", 120), testAsset("c", 130))

	o := NewSyncOrchestrator(source, client, repository.NewWatermarkRepository(db, "device-1"))
	o.Run(ctx, models.TriggerManual)
	require.NoError(t, db.Close())

	db, err = repository.NewSQLiteDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	client.reset()
	client.heal("c")
	restarted := NewSyncOrchestrator(source, client, repository.NewWatermarkRepository(db, "device-1"))
	result := restarted.Run(ctx, models.TriggerManual)

	assert.Equal(t, []string{"c"}, client.uploaded())
	assert.Equal(t, int64(120), result.PreviousWatermark)
	assert.Equal(t, int64(130), result.Watermark)
}

func TestOrchestratorState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "failed", StateFailed.String())
}
