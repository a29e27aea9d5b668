package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/photosync/photosync/internal/models"
	"github.com/photosync/photosync/internal/observability"
	"github.com/photosync/photosync/internal/repository"
	"github.com/photosync/photosync/internal/services"
)

// EngineState reports the sync engine's running state
type EngineState interface {
	State() services.OrchestratorState
}

// SyncHandler serves the agent's sync status and manual trigger
type SyncHandler struct {
	engine    EngineState
	manual    *services.ManualTrigger
	watermark repository.WatermarkRepo
	index     repository.MediaIndexRepo
	stats     repository.SyncStatsRepo
	deviceID  string
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(
	engine EngineState,
	manual *services.ManualTrigger,
	watermark repository.WatermarkRepo,
	index repository.MediaIndexRepo,
	stats repository.SyncStatsRepo,
	deviceID string,
) *SyncHandler {
	return &SyncHandler{
		engine:    engine,
		manual:    manual,
		watermark: watermark,
		index:     index,
		stats:     stats,
		deviceID:  deviceID,
	}
}

// GetSyncStatus returns the engine state, watermark and backlog
func (h *SyncHandler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state := h.engine.State()

	watermark, err := h.watermark.Read(ctx)
	if err != nil {
		observability.WithContext(ctx).WithError(err).Error("reading watermark failed")
		respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}

	indexed, err := h.index.Count(ctx)
	if err != nil {
		observability.WithContext(ctx).WithError(err).Error("counting index failed")
		respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}

	pending, err := h.index.CountNewerThan(ctx, watermark)
	if err != nil {
		observability.WithContext(ctx).WithError(err).Error("counting pending assets failed")
		respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}

	resp := models.SyncStatusResponse{
		Running:   state == services.StateRunning,
		State:     state.String(),
		Watermark: watermark,
		Indexed:   indexed,
		Pending:   pending,
	}
	if stats, err := h.stats.Get(ctx, h.deviceID); err == nil {
		resp.Stats = stats
	} else {
		observability.WithContext(ctx).WithError(err).Warn("loading sync stats failed")
	}

	respondJSON(w, http.StatusOK, resp)
}

// TriggerSync runs a manual pass and waits for its result. The pass keeps
// running if the caller disconnects.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	results := h.manual.Request(context.WithoutCancel(r.Context()))

	select {
	case result := <-results:
		respondJSON(w, statusForResult(result), models.SyncRunResponse{
			Message: result.Summary(),
			Result:  result,
		})
	case <-r.Context().Done():
	}
}

func statusForResult(result models.SyncResult) int {
	switch result.Status {
	case models.RunSkipped:
		return http.StatusConflict
	case models.RunFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusOK
	}
}

// RecentAssets lists the most recently indexed assets
func (h *SyncHandler) RecentAssets(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v >= 1 && v <= 200 {
			limit = v
		}
	}

	assets, err := h.index.Recent(r.Context(), limit)
	if err != nil {
		observability.WithContext(r.Context()).WithError(err).Error("listing recent assets failed")
		respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}
	respondJSON(w, http.StatusOK, assets)
}
