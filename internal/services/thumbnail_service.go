package services

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/jdeng/goheif"
)

const thumbnailQuality = 80

// ThumbnailService renders JPEG previews of received photos
type ThumbnailService struct {
	maxDim int
}

// NewThumbnailService creates a ThumbnailService bounded to maxDim pixels
func NewThumbnailService(maxDim int) *ThumbnailService {
	if maxDim <= 0 {
		maxDim = 320
	}
	return &ThumbnailService{maxDim: maxDim}
}

// Render decodes imageData, corrects its EXIF orientation and returns
// a JPEG that fits within the configured bounds.
func (s *ThumbnailService) Render(imageData []byte, filename string, orientation int) ([]byte, error) {
	var img image.Image
	var err error

	if IsHEIC(filename) {
		img, err = goheif.Decode(bytes.NewReader(imageData))
	} else {
		img, err = imaging.Decode(bytes.NewReader(imageData))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	img = applyOrientation(img, orientation)
	thumb := imaging.Fit(img, s.maxDim, s.maxDim, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(thumbnailQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// ThumbnailKey is where the thumbnail of a photo is stored
func ThumbnailKey(photoID string) string {
	return "thumbs/" + photoID + ".jpg"
}

// applyOrientation corrects image orientation based on EXIF data
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Rotate270(imaging.FlipH(img))
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Rotate90(imaging.FlipH(img))
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// IsSupportedFormat checks if the file extension is supported for thumbnail generation
func IsSupportedFormat(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".tif", ".heic", ".heif":
		return true
	default:
		return false
	}
}

// IsHEIC checks if the file is HEIC/HEIF format
func IsHEIC(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".heic" || ext == ".heif"
}
