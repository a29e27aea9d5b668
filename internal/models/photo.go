package models

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Photo is an upload received by the intake server
type Photo struct {
	ID               string    `json:"id"`
	OriginalFilename string    `json:"originalFilename"`
	StoredPath       string    `json:"storedPath"`
	FileHash         string    `json:"fileHash"`
	FileSize         int64     `json:"fileSize"`
	ContentType      string    `json:"contentType"`
	DateTaken        time.Time `json:"dateTaken"`
	UploadedAt       time.Time `json:"uploadedAt"`
	OriginDeviceID   *string   `json:"originDeviceId,omitempty"`
	ThumbPath        *string   `json:"thumbPath,omitempty"`
}

// NewPhoto creates a new Photo with validation and sanitization
func NewPhoto(originalFilename, storedPath, fileHash, contentType string, fileSize int64, dateTaken time.Time) (*Photo, error) {
	if strings.TrimSpace(originalFilename) == "" {
		return nil, ErrEmptyFilename
	}
	if strings.TrimSpace(storedPath) == "" {
		return nil, ErrEmptyStoredPath
	}
	if strings.TrimSpace(fileHash) == "" {
		return nil, ErrEmptyHash
	}
	if fileSize <= 0 {
		return nil, ErrInvalidFileSize
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &Photo{
		ID:               uuid.New().String(),
		OriginalFilename: SanitizeFilename(originalFilename),
		StoredPath:       storedPath,
		FileHash:         strings.ToLower(fileHash),
		FileSize:         fileSize,
		ContentType:      contentType,
		DateTaken:        dateTaken,
		UploadedAt:       time.Now().UTC(),
	}, nil
}

// SanitizeFilename removes path components and characters unsafe on common filesystems
func SanitizeFilename(filename string) string {
	name := filepath.Base(filename)

	replacer := strings.NewReplacer(
		"..", "",
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)

	return replacer.Replace(name)
}

// Errors
type PhotoError struct {
	Message string
}

func (e PhotoError) Error() string {
	return e.Message
}

var (
	ErrEmptyFilename    = PhotoError{"original filename cannot be empty"}
	ErrEmptyStoredPath  = PhotoError{"stored path cannot be empty"}
	ErrEmptyHash        = PhotoError{"file hash cannot be empty"}
	ErrInvalidFileSize  = PhotoError{"file size must be positive"}
	ErrEmptyFile        = PhotoError{"File is empty"}
	ErrPhotoNotFound    = PhotoError{"photo not found"}
	ErrInvalidExtension = PhotoError{"file extension not allowed"}
	ErrFileTooLarge     = PhotoError{"file size exceeds maximum allowed"}
	ErrPathTraversal    = PhotoError{"invalid path - path traversal detected"}
)
