package services

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashService_ComputeHash(t *testing.T) {
	svc := NewHashService()

	t.Run("known digest", func(t *testing.T) {
		hash, err := svc.ComputeHash(bytes.NewReader([]byte("test")))
		require.NoError(t, err)
		assert.Equal(t, "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08", hash)
	})

	t.Run("different content differs", func(t *testing.T) {
		a, err := svc.ComputeHash(bytes.NewReader([]byte("Content A")))
		require.NoError(t, err)
		b, err := svc.ComputeHash(bytes.NewReader([]byte("Content B")))
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

func TestHashService_HashFile(t *testing.T) {
	svc := NewHashService()
	path := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(path, []byte("test"), 0644))

	hash, size, err := svc.HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)
	assert.Equal(t, "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08", hash)

	_, _, err = svc.HashFile(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestHashService_IsValidHash(t *testing.T) {
	svc := NewHashService()

	tests := []struct {
		name     string
		hash     string
		expected bool
	}{
		{"valid lowercase", "abc123def456abc123def456abc123def456abc123def456abc123def456abcd", true},
		{"valid uppercase", "ABC123DEF456ABC123DEF456ABC123DEF456ABC123DEF456ABC123DEF456ABCD", true},
		{"valid with prefix", "sha256:abc123def456abc123def456abc123def456abc123def456abc123def456abcd", true},
		{"empty", "", false},
		{"whitespace", "   ", false},
		{"too short", "abc123", false},
		{"invalid char", "abc123def456abc123def456abc123def456abc123def456abc123def456abcZ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, svc.IsValidHash(tt.hash))
		})
	}
}

func TestHashService_NormalizeHash(t *testing.T) {
	svc := NewHashService()

	assert.Equal(t, "abc123", svc.NormalizeHash("  sha256:ABC123  "))
	assert.Equal(t, "abc123", svc.NormalizeHash("abc123"))
}
