package realtime

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/isdelr/chirp-be/internal/models"
	"github.com/isdelr/chirp-be/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHub struct {
	mu   sync.Mutex
	sent map[string][][]byte
}

func newRecordingHub() *recordingHub {
	return &recordingHub{sent: make(map[string][][]byte)}
}

func (h *recordingHub) SendToUser(userID string, message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent[userID] = append(h.sent[userID], message)
}

func (h *recordingHub) count(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sent[userID])
}

func sampleNotification() models.Notification {
	postID := "post-1"
	return models.Notification{
		ID:        "n-1",
		Type:      models.NotificationNewPost,
		UserID:    "bob",
		ActorID:   "alice",
		PostID:    &postID,
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestLocalPublisherTargetsRecipient(t *testing.T) {
	hub := newRecordingHub()
	pub := NewLocalPublisher(hub)

	require.NoError(t, pub.Publish(context.Background(), sampleNotification()))

	require.Len(t, hub.sent["bob"], 1)
	assert.Empty(t, hub.sent["alice"])

	var msg websocket.Message
	require.NoError(t, json.Unmarshal(hub.sent["bob"][0], &msg))
	assert.Equal(t, websocket.ActionNotification, msg.Action)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	n := sampleNotification()
	data, err := encodeEnvelope(n)
	require.NoError(t, err)

	userID, payload, err := decodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, "bob", userID)
	assert.JSONEq(t, string(websocket.NewNotificationMessage(n)), string(payload))
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, _, err := decodeEnvelope([]byte("not json"))
	assert.Error(t, err)

	_, _, err = decodeEnvelope([]byte(`{"notification":{"id":"n-1"}}`))
	assert.Error(t, err)
}

// Runs only when a Redis server is available, e.g. REDIS_ADDRESS=localhost:6379.
func TestRedisRelayDeliversAcrossInstances(t *testing.T) {
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_ADDRESS not set")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := RedisConfig{Address: addr, Channel: "chirp:test:" + time.Now().Format("150405.000000")}
	publisher, err := NewRedisRelay(ctx, cfg)
	require.NoError(t, err)
	defer publisher.Close()
	subscriber, err := NewRedisRelay(ctx, cfg)
	require.NoError(t, err)
	defer subscriber.Close()

	hub := newRecordingHub()
	go subscriber.Run(ctx, hub)

	require.Eventually(t, func() bool {
		_ = publisher.Publish(ctx, sampleNotification())
		return hub.count("bob") > 0
	}, 3*time.Second, 50*time.Millisecond)
}
