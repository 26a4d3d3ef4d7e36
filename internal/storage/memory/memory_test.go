package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavrelis/streamtube/internal/storage"
)

func TestStorage_UploadAndDelete(t *testing.T) {
	s := New("http://localhost:8080")

	res, err := s.Upload(context.Background(), &storage.UploadInput{
		Key:         "avatars/ana.png",
		ContentType: "image/png",
		Size:        4,
		Data:        strings.NewReader("data"),
	})
	require.NoError(t, err)
	assert.Equal(t, "avatars/ana.png", res.Key)
	assert.Equal(t, "http://localhost:8080/assets/avatars/ana.png", res.URL)

	require.NoError(t, s.Delete(context.Background(), "avatars/ana.png"))
	assert.Error(t, s.Delete(context.Background(), "avatars/ana.png"))
}
