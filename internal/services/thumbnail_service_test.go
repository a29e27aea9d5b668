package services

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestThumbnailService_Render(t *testing.T) {
	svc := NewThumbnailService(100)

	t.Run("fits within bounds keeping aspect ratio", func(t *testing.T) {
		out, err := svc.Render(testPNG(t, 400, 200), "wide.png", 1)
		require.NoError(t, err)

		img, err := imaging.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, 100, img.Bounds().Dx())
		assert.Equal(t, 50, img.Bounds().Dy())
	})

	t.Run("applies rotation from orientation", func(t *testing.T) {
		out, err := svc.Render(testPNG(t, 400, 200), "wide.png", 6)
		require.NoError(t, err)

		img, err := imaging.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, 50, img.Bounds().Dx())
		assert.Equal(t, 100, img.Bounds().Dy())
	})

	t.Run("rejects undecodable data", func(t *testing.T) {
		_, err := svc.Render([]byte("not an image"), "bad.jpg", 1)
		assert.Error(t, err)
	})
}

func TestIsSupportedFormat(t *testing.T) {
	assert.True(t, IsSupportedFormat("a.JPG"))
	assert.True(t, IsSupportedFormat("a.heic"))
	assert.False(t, IsSupportedFormat("a.txt"))
	assert.True(t, IsHEIC("IMG.HEIF"))
	assert.Equal(t, "thumbs/abc.jpg", ThumbnailKey("abc"))
}
