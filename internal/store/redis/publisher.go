// Package redis pushes live replay updates to Redis: pub/sub for streaming
// consumers, a latest-value key per series and a capped stream of appends.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"barreplay/internal/indicator"
	"barreplay/internal/model"
)

const (
	defaultLatestTTL = 30 * time.Minute
	minStreamLen     = 200
	streamWindow     = 3 * time.Hour
)

// Config configures the Redis publisher.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes series updates and indicator snapshots to Redis.
type Publisher struct {
	client *goredis.Client
}

var _ model.UpdatePublisher = (*Publisher)(nil)

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New connects to Redis and pings the server.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis connected", "addr", cfg.Addr)
	return &Publisher{client: client}, nil
}

// streamLen keeps roughly streamWindow worth of candles of timeframe tf.
func streamLen(tf model.Timeframe) int64 {
	n := int64(streamWindow/tf.Duration()) + 100
	if n < minStreamLen {
		n = minStreamLen
	}
	return n
}

// LatestKey is the key holding the newest candle of a series.
func LatestKey(u model.SeriesUpdate) string {
	return "candle:" + u.Timeframe.Label() + ":latest:" + u.Symbol
}

// PubSubChannel is the channel a series update is published on.
func PubSubChannel(u model.SeriesUpdate) string {
	return "pub:" + u.Channel()
}

// Publish writes one update in a single pipeline: SET latest, PUBLISH and,
// for appends, XADD to the series stream.
func (p *Publisher) Publish(ctx context.Context, u model.SeriesUpdate) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	payload := string(data)

	pipe := p.client.Pipeline()
	pipe.Set(ctx, LatestKey(u), payload, defaultLatestTTL)
	if u.Kind == "append" {
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: u.Channel(),
			MaxLen: streamLen(u.Timeframe),
			Approx: true,
			Values: map[string]interface{}{"data": payload},
		})
	}
	pipe.Publish(ctx, PubSubChannel(u), payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", u.Channel(), err)
	}
	return nil
}

// PublishSnapshot stores snap as a hash under snap.Key() and publishes its
// JSON on "pub:" + snap.Key().
func (p *Publisher) PublishSnapshot(ctx context.Context, snap indicator.Snapshot) error {
	fields := snap.Fields()
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	pipe := p.client.Pipeline()
	pipe.Del(ctx, snap.Key())
	pipe.HSet(ctx, snap.Key(), values)
	pipe.Expire(ctx, snap.Key(), defaultLatestTTL)
	pipe.Publish(ctx, "pub:"+snap.Key(), string(snap.JSON()))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis snapshot %s: %w", snap.Key(), err)
	}
	return nil
}

// Run publishes updates from in until ctx is cancelled or in is closed.
// Errors are logged and do not stop the loop.
func Run(ctx context.Context, pub model.UpdatePublisher, in <-chan model.SeriesUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-in:
			if !ok {
				return
			}
			if err := pub.Publish(ctx, u); err != nil {
				slog.Warn("redis publish failed", "channel", u.Channel(), "error", err)
			}
		}
	}
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
