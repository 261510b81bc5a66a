package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/isdelr/chirp-be/internal/models"
	"github.com/isdelr/chirp-be/internal/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultChannel is the Redis channel notifications are relayed on.
const DefaultChannel = "chirp:notifications"

// RedisConfig holds the connection settings for the relay.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Channel  string
}

type envelope struct {
	UserID       string              `json:"userId"`
	Notification models.Notification `json:"notification"`
}

// RedisRelay publishes notifications to Redis so that every instance can
// deliver them to the connections it holds.
type RedisRelay struct {
	client  *redis.Client
	channel string
}

// NewRedisRelay connects to Redis and verifies the connection.
func NewRedisRelay(ctx context.Context, cfg RedisConfig) (*RedisRelay, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	channel := cfg.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisRelay{client: client, channel: channel}, nil
}

// Publish implements Publisher.
func (r *RedisRelay) Publish(ctx context.Context, n models.Notification) error {
	data, err := encodeEnvelope(n)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

// Run forwards relayed notifications to hub until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context, hub Deliverer) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed before reading.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	log.Info().Str("channel", r.channel).Msg("Relaying notifications from redis")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			userID, payload, err := decodeEnvelope([]byte(msg.Payload))
			if err != nil {
				log.Warn().Err(err).Msg("Dropping malformed relayed notification")
				continue
			}
			hub.SendToUser(userID, payload)
		}
	}
}

// Close closes the Redis client.
func (r *RedisRelay) Close() error {
	return r.client.Close()
}

func encodeEnvelope(n models.Notification) ([]byte, error) {
	data, err := json.Marshal(envelope{UserID: n.UserID, Notification: n})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}
	return data, nil
}

// decodeEnvelope returns the recipient and the websocket message to send them.
func decodeEnvelope(data []byte) (string, []byte, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	if env.UserID == "" {
		return "", nil, fmt.Errorf("relayed notification has no recipient")
	}
	return env.UserID, websocket.NewNotificationMessage(env.Notification), nil
}
