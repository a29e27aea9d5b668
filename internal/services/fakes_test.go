package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/photosync/photosync/internal/models"
)

func testAsset(id string, addedAt int64) *models.Asset {
	return &models.Asset{ID: id, Name: id + ".jpg", Path: "/photos/" + id + ".jpg", AddedAt: addedAt, Size: 10}
}

// memSource is an in-memory AssetSource
type memSource struct {
	mu     sync.Mutex
	assets []*models.Asset
	err    error
}

func newMemSource(assets ...*models.Asset) *memSource {
	return &memSource{assets: assets}
}

func (s *memSource) add(a *models.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets = append(s.assets, a)
}

func (s *memSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *memSource) QueryNewerThan(_ context.Context, threshold int64) ([]*models.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := []*models.Asset{}
	for _, a := range s.assets {
		if a.AddedAt > threshold {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AddedAt < out[j].AddedAt })
	return out, nil
}

// scriptedClient returns a configured outcome per asset ID, success otherwise
type scriptedClient struct {
	mu       sync.Mutex
	outcomes map[string]models.UploadOutcome
	calls    []string
	before   func(ctx context.Context, a *models.Asset)
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{outcomes: make(map[string]models.UploadOutcome)}
}

func (c *scriptedClient) fail(id string, outcome models.UploadOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[id] = outcome
}

func (c *scriptedClient) heal(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.outcomes, id)
}

func (c *scriptedClient) Upload(ctx context.Context, a *models.Asset) models.UploadOutcome {
	if c.before != nil {
		c.before(ctx, a)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, a.ID)
	if outcome, ok := c.outcomes[a.ID]; ok {
		return outcome
	}
	return models.UploadSucceeded(200, "remote-"+a.ID, "File uploaded successfully", false)
}

func (c *scriptedClient) uploaded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *scriptedClient) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

// memWatermark is an in-memory WatermarkRepo
type memWatermark struct {
	mu       sync.Mutex
	value    int64
	readErr  error
	writeErr error
	writes   int
}

func (w *memWatermark) Read(context.Context) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value, w.readErr
}

func (w *memWatermark) Advance(_ context.Context, value int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writeErr != nil {
		return w.writeErr
	}
	if value < w.value {
		return fmt.Errorf("%w: %d is behind stored value %d", models.ErrRegressionRejected, value, w.value)
	}
	w.value = value
	w.writes++
	return nil
}

func (w *memWatermark) get() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value
}

// recordingReporter captures reporter callbacks
type recordingReporter struct {
	mu        sync.Mutex
	started   []int
	processed []string
	finished  []models.SyncResult
}

func (r *recordingReporter) SyncStarted(_ context.Context, _ models.Trigger, _ int64, pending int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, pending)
}

func (r *recordingReporter) AssetProcessed(_ context.Context, a *models.Asset, _ models.UploadOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed = append(r.processed, a.ID)
}

func (r *recordingReporter) SyncFinished(_ context.Context, result models.SyncResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, result)
}

// recordingBroadcaster captures hub messages
type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []WSMessage
	topics   []string
}

func (b *recordingBroadcaster) BroadcastToTopic(topic string, msg WSMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	b.messages = append(b.messages, msg)
}

func (b *recordingBroadcaster) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.messages))
	for i, m := range b.messages {
		out[i] = m.Type
	}
	return out
}

// memStatsRepo is an in-memory SyncStatsRepo
type memStatsRepo struct {
	mu    sync.Mutex
	stats map[string]models.SyncStats
	err   error
}

func newMemStatsRepo() *memStatsRepo {
	return &memStatsRepo{stats: make(map[string]models.SyncStats)}
}

func (r *memStatsRepo) Get(_ context.Context, deviceID string) (*models.SyncStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if s, ok := r.stats[deviceID]; ok {
		return &s, nil
	}
	return models.NewSyncStats(deviceID), nil
}

func (r *memStatsRepo) Save(_ context.Context, stats *models.SyncStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.stats[stats.DeviceID] = *stats
	return nil
}

// runnerFunc adapts a function to SyncRunner
type runnerFunc func(ctx context.Context, trigger models.Trigger) models.SyncResult

func (f runnerFunc) Run(ctx context.Context, trigger models.Trigger) models.SyncResult {
	return f(ctx, trigger)
}

var errStoreDown = errors.New("permission denied")
