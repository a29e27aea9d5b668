package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/photosync/photosync/internal/models"
)

// BlobStore holds the bytes of received photos and their thumbnails
type BlobStore interface {
	// Store writes an upload under a Year/Month prefix and returns its stored path
	Store(ctx context.Context, r io.Reader, originalFilename string, dateTaken time.Time, fileSize int64) (string, error)
	// Put writes data under an exact key
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Open(ctx context.Context, storedPath string) (io.ReadCloser, error)
	Delete(ctx context.Context, storedPath string) error
	Exists(ctx context.Context, storedPath string) bool
}

var defaultPhotoExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic", ".heif", ".bmp", ".tiff", ".tif"}

// uploadPolicy validates incoming files before they reach a BlobStore
type uploadPolicy struct {
	allowedExtensions map[string]bool
	maxFileSizeBytes  int64
}

func newUploadPolicy(allowedExtensions []string, maxFileSizeMB int64) uploadPolicy {
	if len(allowedExtensions) == 0 {
		allowedExtensions = defaultPhotoExtensions
	}
	extSet := make(map[string]bool, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		extSet[strings.ToLower(ext)] = true
	}
	return uploadPolicy{
		allowedExtensions: extSet,
		maxFileSizeBytes:  maxFileSizeMB * 1024 * 1024,
	}
}

// check returns the sanitized filename, or why the file is refused
func (p uploadPolicy) check(originalFilename string, fileSize int64) (string, error) {
	if p.maxFileSizeBytes > 0 && fileSize > p.maxFileSizeBytes {
		return "", models.ErrFileTooLarge
	}

	name := sanitizeFilename(originalFilename)
	if !p.allowedExtensions[strings.ToLower(filepath.Ext(name))] {
		return "", models.ErrInvalidExtension
	}
	return name, nil
}

// datePrefix is the Year/Month folder a photo is filed under
func datePrefix(dateTaken time.Time) string {
	return dateTaken.Format("2006") + "/" + dateTaken.Format("01")
}

// PhotoStorageService stores photos on local disk with Year/Month organization
type PhotoStorageService struct {
	basePath string
	policy   uploadPolicy
}

// NewPhotoStorageService creates a new PhotoStorageService
func NewPhotoStorageService(basePath string, allowedExtensions []string, maxFileSizeMB int64) (*PhotoStorageService, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, err
	}

	return &PhotoStorageService{
		basePath: absPath,
		policy:   newUploadPolicy(allowedExtensions, maxFileSizeMB),
	}, nil
}

// Store saves a file and returns the relative storage path
func (s *PhotoStorageService) Store(ctx context.Context, reader io.Reader, originalFilename string, dateTaken time.Time, fileSize int64) (string, error) {
	sanitizedFilename, err := s.policy.check(originalFilename, fileSize)
	if err != nil {
		return "", err
	}

	relativeFolderPath := filepath.FromSlash(datePrefix(dateTaken))
	absoluteFolderPath := filepath.Join(s.basePath, relativeFolderPath)

	if err := os.MkdirAll(absoluteFolderPath, 0755); err != nil {
		return "", err
	}

	uniqueFilename := generateUniqueFilename(sanitizedFilename, absoluteFolderPath)
	relativeFilePath := filepath.Join(relativeFolderPath, uniqueFilename)
	absoluteFilePath := filepath.Join(s.basePath, relativeFilePath)

	if !strings.HasPrefix(absoluteFilePath, s.basePath) {
		return "", models.ErrPathTraversal
	}

	file, err := os.OpenFile(absoluteFilePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		os.Remove(absoluteFilePath)
		return "", err
	}

	return filepath.ToSlash(relativeFilePath), nil
}

// Put writes data at an exact relative path, replacing any existing file
func (s *PhotoStorageService) Put(ctx context.Context, key string, data []byte, contentType string) error {
	fullPath, err := s.GetFullPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(fullPath, data, 0644)
}

// Open opens a stored file for reading
func (s *PhotoStorageService) Open(ctx context.Context, storedPath string) (io.ReadCloser, error) {
	fullPath, err := s.GetFullPath(storedPath)
	if err != nil {
		return nil, err
	}
	return os.Open(fullPath)
}

// Delete removes a file by its stored path
func (s *PhotoStorageService) Delete(ctx context.Context, storedPath string) error {
	fullPath, err := s.GetFullPath(storedPath)
	if err != nil {
		return err
	}
	return os.Remove(fullPath)
}

// GetFullPath returns the absolute path for a stored path
func (s *PhotoStorageService) GetFullPath(storedPath string) (string, error) {
	if strings.TrimSpace(storedPath) == "" {
		return "", fmt.Errorf("stored path cannot be empty")
	}

	absPath, err := filepath.Abs(filepath.Join(s.basePath, filepath.FromSlash(storedPath)))
	if err != nil {
		return "", err
	}

	if !strings.HasPrefix(absPath, s.basePath) {
		return "", models.ErrPathTraversal
	}

	return absPath, nil
}

// Exists checks if a file exists at the given stored path
func (s *PhotoStorageService) Exists(ctx context.Context, storedPath string) bool {
	fullPath, err := s.GetFullPath(storedPath)
	if err != nil {
		return false
	}

	_, err = os.Stat(fullPath)
	return err == nil
}

// sanitizeFilename removes path components and invalid characters
func sanitizeFilename(filename string) string {
	name := models.SanitizeFilename(filename)

	const maxLength = 200
	if len(name) > maxLength {
		ext := filepath.Ext(name)
		nameWithoutExt := strings.TrimSuffix(name, ext)
		if len(nameWithoutExt) > maxLength-len(ext) {
			nameWithoutExt = nameWithoutExt[:maxLength-len(ext)]
		}
		name = nameWithoutExt + ext
	}

	return name
}

// generateUniqueFilename creates a unique filename if collision exists
func generateUniqueFilename(filename, folderPath string) string {
	ext := filepath.Ext(filename)
	nameWithoutExt := strings.TrimSuffix(filename, ext)
	candidate := filename

	for counter := 1; ; counter++ {
		if _, err := os.Stat(filepath.Join(folderPath, candidate)); os.IsNotExist(err) {
			return candidate
		}
		if counter > 9999 {
			return fmt.Sprintf("%s_%d%s", nameWithoutExt, time.Now().UnixNano(), ext)
		}
		candidate = fmt.Sprintf("%s_%03d%s", nameWithoutExt, counter, ext)
	}
}

// readAllLimited reads r fully, refusing more than limit bytes when limit is positive
func readAllLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if n > limit {
		return nil, models.ErrFileTooLarge
	}
	return buf.Bytes(), nil
}
