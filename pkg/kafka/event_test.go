package kafka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	payload := map[string]string{"user_id": "u-1", "email": "alice@example.com"}

	evt, err := NewEvent("user.registered", "u-1", "user", "streamtube", payload)
	require.NoError(t, err)

	assert.NotEmpty(t, evt.EventID)
	assert.Equal(t, "user.registered", evt.EventType)
	assert.Equal(t, "u-1", evt.AggregateID)
	assert.Equal(t, 1, evt.Version)
	assert.False(t, evt.Timestamp.IsZero())

	var decoded map[string]string
	require.NoError(t, evt.UnmarshalData(&decoded))
	assert.Equal(t, payload, decoded)
}

func TestEvent_MarshalRoundTrip(t *testing.T) {
	evt, err := NewEvent("video.published", "v-9", "video", "streamtube", map[string]any{"title": "intro"})
	require.NoError(t, err)
	evt.WithCorrelationID("corr-1").WithMetadata("region", "eu")

	data, err := evt.Marshal()
	require.NoError(t, err)

	var back Event
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, evt.EventID, back.EventID)
	assert.Equal(t, "corr-1", back.CorrelationID)
	assert.Equal(t, "eu", back.Metadata["region"])
}
