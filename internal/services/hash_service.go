package services

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"regexp"
	"strings"
)

var sha256Pattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// HashService computes content hashes used for dedup on both sides of a sync
type HashService struct{}

// NewHashService creates a new HashService
func NewHashService() *HashService {
	return &HashService{}
}

// ComputeHash computes the SHA-256 hash of a reader
func (s *HashService) ComputeHash(r io.Reader) (string, error) {
	hash, _, err := s.hashAndCount(r)
	return hash, err
}

// HashFile returns the SHA-256 hash and size of the file at path
func (s *HashService) HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	return s.hashAndCount(f)
}

func (s *HashService) hashAndCount(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// NormalizeHash lowercases a hash and strips an optional "sha256:" prefix
func (s *HashService) NormalizeHash(hash string) string {
	normalized := strings.TrimSpace(hash)
	if strings.HasPrefix(strings.ToLower(normalized), "sha256:") {
		normalized = normalized[len("sha256:"):]
	}
	return strings.ToLower(normalized)
}

// IsValidHash checks if a string is a valid SHA-256 hash
func (s *HashService) IsValidHash(hash string) bool {
	return sha256Pattern.MatchString(s.NormalizeHash(hash))
}
