// Package notify pushes document status events to the requester.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Lllllllleong/financialstatementflow/internal/models"
)

// EventType is the CloudEvents type of every status event.
const EventType = "statement.document.status"

// DefaultSource identifies the pipeline as the producer of events.
const DefaultSource = "/financialstatementflow/pipeline"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisPublisher publishes status events on a per-requester Redis channel.
type RedisPublisher struct {
	client *redis.Client
	prefix string
	source string
}

// NewRedisPublisher connects to Redis and checks the connection.
func NewRedisPublisher(cfg RedisConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisPublisher{client: client, prefix: cfg.Prefix, source: DefaultSource}, nil
}

// Channel returns the channel a requester listens on.
func Channel(prefix, requesterID string) string {
	return prefix + "status:" + requesterID
}

// Envelope wraps a status event in a structured CloudEvent.
func Envelope(source string, ev models.StatusEvent) ([]byte, error) {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetSource(source)
	e.SetType(EventType)
	e.SetSubject(ev.ID)
	e.SetTime(time.Now().UTC())
	if err := e.SetData(cloudevents.ApplicationJSON, ev); err != nil {
		return nil, fmt.Errorf("set event data: %w", err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// Publish sends ev to the requester's channel.
func (p *RedisPublisher) Publish(ctx context.Context, requesterID string, ev models.StatusEvent) error {
	data, err := Envelope(p.source, ev)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, Channel(p.prefix, requesterID), data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// LogPublisher writes status events to the log instead of pushing them.
type LogPublisher struct {
	Logger *slog.Logger
}

// Publish logs ev.
func (p LogPublisher) Publish(_ context.Context, requesterID string, ev models.StatusEvent) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	args := []any{"requesterId", requesterID, "documentId", ev.ID, "status", ev.Status}
	if ev.Progress != nil {
		args = append(args, "progress", *ev.Progress)
	}
	if ev.ErrorMessage != "" {
		args = append(args, "errorMessage", ev.ErrorMessage)
	}
	logger.Info("Status event.", args...)
	return nil
}
