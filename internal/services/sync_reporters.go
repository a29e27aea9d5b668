package services

import (
	"context"

	"github.com/photosync/photosync/internal/models"
	"github.com/photosync/photosync/internal/observability"
	"github.com/photosync/photosync/internal/repository"
)

// Broadcaster publishes messages to websocket subscribers
type Broadcaster interface {
	BroadcastToTopic(topic string, msg WSMessage)
}

// SyncCompletePayload is sent when a sync pass finishes
type SyncCompletePayload struct {
	Summary string            `json:"summary"`
	Result  models.SyncResult `json:"result"`
}

// StatsReporter folds finished passes into the persisted device statistics
type StatsReporter struct {
	repo     repository.SyncStatsRepo
	deviceID string
}

// NewStatsReporter creates a new StatsReporter
func NewStatsReporter(repo repository.SyncStatsRepo, deviceID string) *StatsReporter {
	return &StatsReporter{repo: repo, deviceID: deviceID}
}

func (r *StatsReporter) SyncStarted(context.Context, models.Trigger, int64, int) {}

func (r *StatsReporter) AssetProcessed(context.Context, *models.Asset, models.UploadOutcome) {}

// SyncFinished updates the statistics. Failures are logged, never returned,
// since the pass itself already finished.
func (r *StatsReporter) SyncFinished(ctx context.Context, result models.SyncResult) {
	if result.Status == models.RunSkipped {
		return
	}
	ctx = context.WithoutCancel(ctx)

	stats, err := r.repo.Get(ctx, r.deviceID)
	if err != nil {
		observability.WithContext(ctx).WithError(err).Warn("failed to load sync stats")
		return
	}
	stats.Apply(result)
	if err := r.repo.Save(ctx, stats); err != nil {
		observability.WithContext(ctx).WithError(err).Warn("failed to save sync stats")
	}
}

// HubReporter streams sync progress to websocket clients
type HubReporter struct {
	hub Broadcaster
}

// NewHubReporter creates a new HubReporter
func NewHubReporter(hub Broadcaster) *HubReporter {
	return &HubReporter{hub: hub}
}

func (r *HubReporter) SyncStarted(_ context.Context, trigger models.Trigger, watermark int64, pending int) {
	r.hub.BroadcastToTopic(TopicSync, WSMessage{
		Type: WSTypeSyncStarted,
		Payload: SyncStartedPayload{
			Trigger:   string(trigger),
			Watermark: watermark,
			Pending:   pending,
		},
	})
}

func (r *HubReporter) AssetProcessed(_ context.Context, asset *models.Asset, outcome models.UploadOutcome) {
	payload := AssetEventPayload{
		AssetID:   asset.ID,
		Name:      asset.Name,
		AddedAt:   asset.AddedAt,
		RemoteID:  outcome.RemoteID,
		Duplicate: outcome.Duplicate,
	}
	msgType := WSTypeAssetUploaded
	if !outcome.Success {
		msgType = WSTypeAssetFailed
		payload.Kind = outcome.Kind.String()
		if outcome.Err != nil {
			payload.Error = outcome.Err.Error()
		}
	}
	r.hub.BroadcastToTopic(TopicSync, WSMessage{Type: msgType, Payload: payload})
}

func (r *HubReporter) SyncFinished(_ context.Context, result models.SyncResult) {
	if result.Status == models.RunSkipped {
		return
	}
	r.hub.BroadcastToTopic(TopicSync, WSMessage{
		Type:    WSTypeSyncComplete,
		Payload: SyncCompletePayload{Summary: result.Summary(), Result: result},
	})
}
