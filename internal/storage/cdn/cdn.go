package cdn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/kavrelis/streamtube/internal/storage"
	"github.com/kavrelis/streamtube/pkg/httpclient"
)

// Storage implements storage.Storage against an HTTP upload endpoint of
// a CDN. All calls go through a circuit breaker so a failing CDN sheds
// load fast instead of tying up request handlers.
type Storage struct {
	client    *httpclient.CircuitBreakerClient
	uploadURL string
	apiKey    string
}

// New creates a CDN-backed storage using the shared HTTP client stack.
func New(uploadURL, apiKey string, logger *slog.Logger) *Storage {
	base := httpclient.New(httpclient.DefaultConfig())
	cb := httpclient.NewCircuitBreakerClient(base, httpclient.DefaultCircuitBreakerConfig("cdn"), logger)

	return &Storage{
		client:    cb,
		uploadURL: uploadURL,
		apiKey:    apiKey,
	}
}

type uploadResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Upload streams the file to the CDN as a multipart request and returns
// the public URL the CDN assigned.
func (s *Storage) Upload(ctx context.Context, input *storage.UploadInput) (*storage.UploadResult, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", input.Key)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, input.Data); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.uploadURL, pr)
	if err != nil {
		return nil, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("upload to cdn: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("cdn upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	var ur uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return nil, fmt.Errorf("decode cdn response: %w", err)
	}

	return &storage.UploadResult{Key: ur.Key, URL: ur.URL}, nil
}

// Delete asks the CDN to remove the object behind the key.
func (s *Storage) Delete(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.uploadURL+"/"+key, http.NoBody)
	if err != nil {
		return fmt.Errorf("create delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("delete from cdn: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("cdn delete failed with status %d", resp.StatusCode)
	}

	return nil
}
