package models

import (
	"path/filepath"
	"strings"
	"time"
)

// Asset is one photo in the local media index
type Asset struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Path      string     `json:"path"`
	AddedAt   int64      `json:"addedAt"`
	Size      int64      `json:"size"`
	Hash      string     `json:"hash,omitempty"`
	DateTaken *time.Time `json:"dateTaken,omitempty"`
}

// NewAsset creates a new Asset with validation.
// The display name defaults to the base name of path.
func NewAsset(id, name, path string, addedAt int64) (*Asset, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrEmptyAssetID
	}
	if strings.TrimSpace(path) == "" {
		return nil, ErrEmptyAssetPath
	}
	if addedAt < 0 {
		return nil, ErrInvalidAddedAt
	}
	if strings.TrimSpace(name) == "" {
		name = filepath.Base(path)
	}

	return &Asset{
		ID:      id,
		Name:    name,
		Path:    path,
		AddedAt: addedAt,
	}, nil
}

// AddedTime returns AddedAt as a UTC time
func (a *Asset) AddedTime() time.Time {
	return time.Unix(a.AddedAt, 0).UTC()
}

// AssetError is a validation error for assets
type AssetError struct {
	Message string
}

func (e AssetError) Error() string {
	return e.Message
}

var (
	ErrEmptyAssetID   = AssetError{"asset id cannot be empty"}
	ErrEmptyAssetPath = AssetError{"asset path cannot be empty"}
	ErrInvalidAddedAt = AssetError{"added-at timestamp cannot be negative"}
)
