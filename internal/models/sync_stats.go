package models

import "time"

// SyncStats holds cumulative sync statistics for a device
type SyncStats struct {
	DeviceID     string     `json:"deviceId"`
	PhotosSynced int64      `json:"photosSynced"`
	LastPhoto    string     `json:"lastPhoto,omitempty"`
	LastSyncAt   *time.Time `json:"lastSyncAt,omitempty"`
	LastStatus   string     `json:"lastStatus,omitempty"`
	LastSummary  string     `json:"lastSummary,omitempty"`
}

// NewSyncStats creates empty statistics for a device
func NewSyncStats(deviceID string) *SyncStats {
	return &SyncStats{DeviceID: deviceID}
}

// Apply folds a finished sync pass into the statistics.
// Skipped passes leave the statistics untouched.
func (s *SyncStats) Apply(result SyncResult) {
	if result.Status == RunSkipped {
		return
	}

	s.PhotosSynced += int64(result.Succeeded)
	if result.LastUploaded != "" {
		s.LastPhoto = result.LastUploaded
	}
	finished := result.StartedAt.Add(result.Duration).UTC()
	s.LastSyncAt = &finished
	s.LastStatus = string(result.Status)
	s.LastSummary = result.Summary()
}
