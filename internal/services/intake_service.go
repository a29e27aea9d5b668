package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/photosync/photosync/internal/models"
	"github.com/photosync/photosync/internal/observability"
	"github.com/photosync/photosync/internal/repository"
	"go.opentelemetry.io/otel/trace"
)

// IntakeRequest is one file received by the intake endpoint
type IntakeRequest struct {
	Body      io.Reader
	Filename  string
	DeviceID  string
	DateTaken *time.Time
}

// IntakeService stores uploaded photos, deduplicating by content hash
type IntakeService struct {
	repo       repository.PhotoRepo
	blobs      BlobStore
	hasher     *HashService
	exif       *EXIFService
	thumbnails *ThumbnailService
	metrics    *observability.IntakeMetrics
	hub        Broadcaster
	maxBytes   int64
}

// NewIntakeService creates a new IntakeService. metrics and hub may be nil.
func NewIntakeService(
	repo repository.PhotoRepo,
	blobs BlobStore,
	hasher *HashService,
	exif *EXIFService,
	thumbnails *ThumbnailService,
	metrics *observability.IntakeMetrics,
	hub Broadcaster,
	maxFileSizeMB int64,
) *IntakeService {
	return &IntakeService{
		repo:       repo,
		blobs:      blobs,
		hasher:     hasher,
		exif:       exif,
		thumbnails: thumbnails,
		metrics:    metrics,
		hub:        hub,
		maxBytes:   maxFileSizeMB * 1024 * 1024,
	}
}

// Receive stores the upload unless identical content is already held, in
// which case the existing photo is returned with duplicate set.
func (s *IntakeService) Receive(ctx context.Context, req IntakeRequest) (photo *models.Photo, duplicate bool, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "IntakeService", "Receive")
	defer span.End()
	defer func() {
		if err != nil {
			observability.RecordError(span, err)
		}
	}()

	content, err := readAllLimited(req.Body, s.maxBytes)
	if err != nil {
		return nil, false, err
	}
	if len(content) == 0 {
		return nil, false, models.ErrEmptyFile
	}

	hash, err := s.hasher.ComputeHash(bytes.NewReader(content))
	if err != nil {
		return nil, false, err
	}

	existing, err := s.repo.GetByHash(ctx, hash)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check for duplicate: %w", err)
	}
	if existing != nil {
		s.received(ctx, existing, req.DeviceID, true)
		return existing, true, nil
	}

	meta := s.exif.ExtractFromBytes(content)
	dateTaken := time.Now().UTC()
	switch {
	case req.DateTaken != nil:
		dateTaken = req.DateTaken.UTC()
	case meta.DateTaken != nil:
		dateTaken = meta.DateTaken.UTC()
	}

	storedPath, err := s.blobs.Store(ctx, bytes.NewReader(content), req.Filename, dateTaken, int64(len(content)))
	if err != nil {
		return nil, false, err
	}

	photo, err = models.NewPhoto(req.Filename, storedPath, hash, contentTypeFor(req.Filename), int64(len(content)), dateTaken)
	if err != nil {
		s.discard(ctx, storedPath)
		return nil, false, err
	}
	if req.DeviceID != "" {
		deviceID := req.DeviceID
		photo.OriginDeviceID = &deviceID
	}

	if thumbPath := s.storeThumbnail(ctx, photo.ID, content, req.Filename, meta.Orientation); thumbPath != "" {
		photo.ThumbPath = &thumbPath
	}

	if err := s.repo.Add(ctx, photo); err != nil {
		s.discard(ctx, storedPath)
		if photo.ThumbPath != nil {
			s.discard(ctx, *photo.ThumbPath)
		}
		// A concurrent upload of the same content won the insert.
		if winner, lookupErr := s.repo.GetByHash(ctx, hash); lookupErr == nil && winner != nil {
			s.received(ctx, winner, req.DeviceID, true)
			return winner, true, nil
		}
		return nil, false, fmt.Errorf("failed to save photo: %w", err)
	}

	s.received(ctx, photo, req.DeviceID, false)
	return photo, false, nil
}

func (s *IntakeService) storeThumbnail(ctx context.Context, id string, content []byte, filename string, orientation int) string {
	if s.thumbnails == nil || !(IsSupportedFormat(filename) || IsHEIC(filename)) {
		return ""
	}
	thumb, err := s.thumbnails.Render(content, filename, orientation)
	if err != nil {
		observability.WithContext(ctx).WithError(err).Warnf("failed to render thumbnail for %s", filename)
		return ""
	}
	key := ThumbnailKey(id)
	if err := s.blobs.Put(ctx, key, thumb, "image/jpeg"); err != nil {
		observability.WithContext(ctx).WithError(err).Warnf("failed to store thumbnail for %s", filename)
		return ""
	}
	return key
}

func (s *IntakeService) discard(ctx context.Context, path string) {
	if err := s.blobs.Delete(ctx, path); err != nil {
		observability.WithContext(ctx).WithError(err).Warnf("failed to clean up %s", path)
	}
}

func (s *IntakeService) received(ctx context.Context, photo *models.Photo, deviceID string, duplicate bool) {
	s.metrics.RecordPhotoUpload(ctx, deviceID, photo.FileSize, duplicate)
	observability.AddEvent(trace.SpanFromContext(ctx), "photo.received",
		observability.PhotoID(photo.ID),
		observability.DeviceID(deviceID),
	)

	observability.WithContext(ctx).WithFields(map[string]interface{}{
		"photo_id":  photo.ID,
		"device_id": deviceID,
		"duplicate": duplicate,
	}).Infof("received %s", photo.OriginalFilename)

	if s.hub == nil {
		return
	}
	s.hub.BroadcastToTopic(TopicIntake, WSMessage{
		Type: WSTypePhotoReceived,
		Payload: PhotoReceivedPayload{
			PhotoID:   photo.ID,
			Filename:  photo.OriginalFilename,
			DeviceID:  deviceID,
			Duplicate: duplicate,
		},
	})
}

// PhotoReceivedPayload is sent when the intake accepts a file
type PhotoReceivedPayload struct {
	PhotoID   string `json:"photoId"`
	Filename  string `json:"filename"`
	DeviceID  string `json:"deviceId,omitempty"`
	Duplicate bool   `json:"duplicate"`
}
