package models

import (
	"fmt"
	"time"
)

// Trigger identifies what started a sync pass
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerChange   Trigger = "change"
	TriggerPeriodic Trigger = "periodic"
)

// RunStatus is the outcome of one sync pass
type RunStatus string

const (
	RunCompleted             RunStatus = "completed"
	RunCompletedWithFailures RunStatus = "completed_with_failures"
	RunInterrupted           RunStatus = "interrupted"
	RunSkipped               RunStatus = "skipped"
	RunFailed                RunStatus = "failed"
)

// FailureKind separates retryable upload failures from ones that retrying cannot fix
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureTransient
	FailurePermanent
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureTransient:
		return "transient"
	case FailurePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// UploadOutcome is the result of uploading a single asset
type UploadOutcome struct {
	Success    bool
	Kind       FailureKind
	StatusCode int
	RemoteID   string
	Message    string
	Duplicate  bool
	Err        error
}

// UploadSucceeded builds a successful outcome
func UploadSucceeded(statusCode int, remoteID, message string, duplicate bool) UploadOutcome {
	return UploadOutcome{
		Success:    true,
		Kind:       FailureNone,
		StatusCode: statusCode,
		RemoteID:   remoteID,
		Message:    message,
		Duplicate:  duplicate,
	}
}

// UploadTransientFailure builds an outcome that should be retried on a later pass
func UploadTransientFailure(statusCode int, err error) UploadOutcome {
	return UploadOutcome{
		Kind:       FailureTransient,
		StatusCode: statusCode,
		Err:        fmt.Errorf("%w: %v", ErrTransientUpload, err),
	}
}

// UploadPermanentFailure builds an outcome for an asset that can never be uploaded
func UploadPermanentFailure(err error) UploadOutcome {
	return UploadOutcome{
		Kind: FailurePermanent,
		Err:  fmt.Errorf("%w: %v", ErrPermanentUpload, err),
	}
}

// AssetFailure records one failed asset within a sync pass
type AssetFailure struct {
	AssetID    string      `json:"assetId"`
	Name       string      `json:"name"`
	AddedAt    int64       `json:"addedAt"`
	Kind       FailureKind `json:"-"`
	KindName   string      `json:"kind"`
	StatusCode int         `json:"statusCode,omitempty"`
	Error      string      `json:"error"`
}

// SyncResult summarizes one sync pass
type SyncResult struct {
	Trigger           Trigger        `json:"trigger"`
	Status            RunStatus      `json:"status"`
	Seen              int            `json:"seen"`
	Succeeded         int            `json:"succeeded"`
	Failed            int            `json:"failed"`
	TransientFailures int            `json:"transientFailures"`
	PermanentFailures int            `json:"permanentFailures"`
	Unattempted       int            `json:"unattempted,omitempty"`
	PreviousWatermark int64          `json:"previousWatermark"`
	Watermark         int64          `json:"watermark"`
	LastUploaded      string         `json:"lastUploaded,omitempty"`
	Failures          []AssetFailure `json:"failures,omitempty"`
	StartedAt         time.Time      `json:"startedAt"`
	Duration          time.Duration  `json:"duration"`
	Err               error          `json:"-"`
}

// SkippedResult is returned when another pass already holds the running state
func SkippedResult(trigger Trigger) SyncResult {
	return SyncResult{
		Trigger:   trigger,
		Status:    RunSkipped,
		StartedAt: time.Now().UTC(),
	}
}

// RecordFailure adds a failed asset to the result
func (r *SyncResult) RecordFailure(asset *Asset, outcome UploadOutcome) {
	r.Failed++
	switch outcome.Kind {
	case FailurePermanent:
		r.PermanentFailures++
	default:
		r.TransientFailures++
	}

	msg := ""
	if outcome.Err != nil {
		msg = outcome.Err.Error()
	}
	r.Failures = append(r.Failures, AssetFailure{
		AssetID:    asset.ID,
		Name:       asset.Name,
		AddedAt:    asset.AddedAt,
		Kind:       outcome.Kind,
		KindName:   outcome.Kind.String(),
		StatusCode: outcome.StatusCode,
		Error:      msg,
	})
}

// Summary returns the message shown to the user for this result
func (r SyncResult) Summary() string {
	switch r.Status {
	case RunSkipped:
		return "sync skipped: already in progress"
	case RunFailed:
		if r.Err != nil {
			return fmt.Sprintf("sync failed: %v", r.Err)
		}
		return "sync failed"
	case RunInterrupted:
		msg := fmt.Sprintf("sync interrupted: %d uploaded, %d failed, %d not attempted",
			r.Succeeded, r.Failed, r.Unattempted)
		if r.Err != nil {
			msg += fmt.Sprintf(" (%v)", r.Err)
		}
		return msg
	case RunCompletedWithFailures:
		msg := fmt.Sprintf("sync completed with %d failures", r.Failed)
		if r.PermanentFailures > 0 {
			return msg + fmt.Sprintf(" (%d pending retry, %d lost: cannot be uploaded)",
				r.TransientFailures, r.PermanentFailures)
		}
		return msg + fmt.Sprintf(" (%d pending retry)", r.TransientFailures)
	default:
		return fmt.Sprintf("sync complete: %d uploaded", r.Succeeded)
	}
}

// SyncError is a sync engine error
type SyncError struct {
	Message string
}

func (e SyncError) Error() string {
	return e.Message
}

var (
	ErrSourceUnavailable  = SyncError{"asset source unavailable"}
	ErrTransientUpload    = SyncError{"transient upload failure"}
	ErrPermanentUpload    = SyncError{"permanent upload failure"}
	ErrRegressionRejected = SyncError{"watermark regression rejected"}
)
