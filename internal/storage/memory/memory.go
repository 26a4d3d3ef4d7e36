package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/kavrelis/streamtube/internal/storage"
)

type fileEntry struct {
	ContentType string
	Size        int64
	URL         string
}

// Storage implements storage.Storage with an in-memory map. It keeps
// metadata only, not file bytes, which is enough for development and
// tests.
type Storage struct {
	mu      sync.RWMutex
	files   map[string]*fileEntry
	baseURL string
}

// New creates an in-memory storage instance.
func New(baseURL string) *Storage {
	return &Storage{
		files:   make(map[string]*fileEntry),
		baseURL: baseURL,
	}
}

// Upload records the file metadata and returns a generated URL.
func (s *Storage) Upload(_ context.Context, input *storage.UploadInput) (*storage.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	url := fmt.Sprintf("%s/assets/%s", s.baseURL, input.Key)

	s.files[input.Key] = &fileEntry{
		ContentType: input.ContentType,
		Size:        input.Size,
		URL:         url,
	}

	return &storage.UploadResult{Key: input.Key, URL: url}, nil
}

// Delete removes file metadata from memory.
func (s *Storage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.files[key]; !exists {
		return fmt.Errorf("file not found: %s", key)
	}

	delete(s.files, key)
	return nil
}
