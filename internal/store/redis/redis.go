// Package redis publishes emitted signals for downstream consumers and
// listens for live strategy configuration updates.
package redis

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"tradebotv1/internal/model"
)

const (
	// reloadChannel carries strategy IDs whose configuration changed.
	reloadChannel = "config:strategies"

	latestSignalTTL = 30 * time.Minute
)

// Config configures the Redis store.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Store wraps the Redis client.
type Store struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// New creates a Redis Store and pings the server.
func New(cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Store{client: client}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// PublishSignal broadcasts an emitted signal on "signals:<pair>" and keeps
// the latest signal per pair in a TTL'd key for late joiners.
func (s *Store) PublishSignal(ctx context.Context, sig model.Signal) {
	data := sig.JSON()
	pipe := s.client.Pipeline()
	pipe.Publish(ctx, "signals:"+sig.Pair, data)
	pipe.Set(ctx, "signal:latest:"+sig.Pair, data, latestSignalTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] publish signal %s failed: %v", sig.ID, err)
	}
}

// RunReloadSubscriber listens on the strategy config channel and invokes
// reload for every announced strategy ID. Blocks until ctx is cancelled.
// Payloads may carry several comma-separated IDs.
func (s *Store) RunReloadSubscriber(ctx context.Context, reload func(ctx context.Context, id string) error) {
	pubsub := s.client.Subscribe(ctx, reloadChannel)
	defer pubsub.Close()
	log.Printf("[redis] subscribed to %s for dynamic strategy reload", reloadChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			for _, id := range strings.Split(msg.Payload, ",") {
				id = strings.TrimSpace(id)
				if id == "" {
					continue
				}
				if err := reload(ctx, id); err != nil {
					log.Printf("[redis] reload %s failed: %v", id, err)
				}
			}
		}
	}
}
