package services

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/photosync/photosync/internal/clock"
	"github.com/photosync/photosync/internal/models"
	"github.com/photosync/photosync/internal/observability"
	"github.com/photosync/photosync/internal/repository"
)

// IndexListener is told about every asset newly added to the index
type IndexListener interface {
	OnIndexed(asset *models.Asset)
}

// ScanSummary reports the result of a folder scan
type ScanSummary struct {
	FilesScanned int           `json:"filesScanned"`
	Indexed      int           `json:"indexed"`
	Skipped      int           `json:"skipped"`
	Errors       []string      `json:"errors,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// MediaIndexer records local photo files in the media index.
// Each new row gets an added_at strictly greater than every existing one,
// so two files indexed within the same second never share a cut-point.
// The index assigns it, so this holds across processes sharing the file.
type MediaIndexer struct {
	index      repository.MediaIndexRepo
	hasher     *HashService
	exif       *EXIFService
	clock      clock.Clock
	extensions map[string]bool

	mu        sync.Mutex
	listeners []IndexListener
}

// NewMediaIndexer creates a new MediaIndexer
func NewMediaIndexer(index repository.MediaIndexRepo, hasher *HashService, exif *EXIFService, clk clock.Clock, allowedExtensions []string) *MediaIndexer {
	if len(allowedExtensions) == 0 {
		allowedExtensions = defaultPhotoExtensions
	}
	exts := make(map[string]bool, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		exts[strings.ToLower(ext)] = true
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &MediaIndexer{
		index:      index,
		hasher:     hasher,
		exif:       exif,
		clock:      clk,
		extensions: exts,
	}
}

// AddListener registers a listener for new assets
func (m *MediaIndexer) AddListener(l IndexListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// IsPhoto reports whether path has an indexable extension and is not hidden
func (m *MediaIndexer) IsPhoto(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	return m.extensions[strings.ToLower(filepath.Ext(name))]
}

// IndexFile adds one file to the index. It returns the new asset, or nil
// when the file is not a photo, already indexed, or still empty.
func (m *MediaIndexer) IndexFile(ctx context.Context, path string) (*models.Asset, error) {
	if !m.IsPhoto(path) {
		return nil, nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	existing, err := m.index.GetByPath(ctx, abs)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", abs, err)
	}
	if existing != nil {
		return nil, nil
	}

	hash, size, err := m.hasher.HashFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", abs, err)
	}
	if size == 0 {
		return nil, nil
	}

	asset, err := m.insert(ctx, abs, hash, size)
	if err != nil || asset == nil {
		return nil, err
	}

	observability.WithContext(ctx).WithFields(map[string]interface{}{
		"asset":    asset.Name,
		"added_at": asset.AddedAt,
	}).Debugf("indexed %s", abs)

	m.mu.Lock()
	listeners := append([]IndexListener(nil), m.listeners...)
	m.mu.Unlock()
	for _, l := range listeners {
		l.OnIndexed(asset)
	}
	return asset, nil
}

// insert writes the row. The index stamps added_at after its newest row,
// so timestamps stay strictly increasing even with another process writing.
func (m *MediaIndexer) insert(ctx context.Context, path, hash string, size int64) (*models.Asset, error) {
	asset, err := models.NewAsset(uuid.New().String(), "", path, m.clock.Now().Unix())
	if err != nil {
		return nil, err
	}
	asset.Hash = hash
	asset.Size = size
	if data, err := m.exif.ExtractFromFile(path); err == nil && data.DateTaken != nil {
		asset.DateTaken = data.DateTaken
	}

	inserted, err := m.index.Append(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("failed to index %s: %w", path, err)
	}
	if !inserted {
		return nil, nil
	}
	return asset, nil
}

// ScanFolder indexes every photo below root
func (m *MediaIndexer) ScanFolder(ctx context.Context, root string) (summary ScanSummary, err error) {
	ctx, span := observability.StartSpan(ctx, "MediaIndexer.ScanFolder")
	defer span.End()
	span.SetAttributes(observability.Operation("scan"))

	start := m.clock.Now()
	defer func() {
		span.SetAttributes(observability.Duration(summary.Duration))
		if err != nil {
			observability.RecordError(span, err)
		}
	}()

	info, err := os.Stat(root)
	if err != nil {
		return summary, err
	}
	if !info.IsDir() {
		return summary, fmt.Errorf("%s is not a directory", root)
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !m.IsPhoto(path) {
			return nil
		}

		summary.FilesScanned++
		asset, err := m.IndexFile(ctx, path)
		if err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			return nil
		}
		if asset == nil {
			summary.Skipped++
		} else {
			summary.Indexed++
		}
		return nil
	})
	summary.Duration = m.clock.Now().Sub(start)

	observability.WithContext(ctx).Infof("scan of %s: %d files, %d indexed, %d skipped, %d errors",
		root, summary.FilesScanned, summary.Indexed, summary.Skipped, len(summary.Errors))
	return summary, err
}
