package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oxyio/netmon/internal/config"
	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/internal/logger"
	"github.com/oxyio/netmon/internal/stats"
	"github.com/redis/go-redis/v9"
)

// redisPublisher is the part of *redis.Client the sink uses.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// Redis publishes each category as a JSON event on
// <prefix>:device:<id>:<category>. It does not index.
type Redis struct {
	client redisPublisher
	prefix string
	log    logger.Logger
}

// NewRedis connects to Redis and checks the connection with PING.
func NewRedis(ctx context.Context, cfg config.RedisConfig, log logger.Logger) (*Redis, error) {
	if log == nil {
		log = logger.Noop()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, errors.WrapWithCode(err, errors.ErrSink,
			fmt.Sprintf("Couldn't connect to Redis at %s", cfg.Address),
			"Check redis.address or disable redis in netmon.yaml.")
	}

	log.Info("Connected to Redis at %s", cfg.Address)
	return newRedis(rdb, cfg.ChannelPrefix, log), nil
}

func newRedis(client redisPublisher, prefix string, log logger.Logger) *Redis {
	return &Redis{client: client, prefix: prefix, log: log}
}

// Channel returns the channel used for a device's category.
func (r *Redis) Channel(deviceID string, category stats.Category) string {
	return topic(r.prefix, ":", deviceID, category)
}

// Publish sends the event for the category.
func (r *Redis) Publish(ctx context.Context, deviceID string, category stats.Category, samples []stats.Sample) error {
	data, err := json.Marshal(newEvent(category, samples))
	if err != nil {
		return sinkError(err, "Couldn't encode samples")
	}

	channel := r.Channel(deviceID, category)
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		return sinkError(err, fmt.Sprintf("Couldn't publish to Redis channel %s", channel))
	}
	r.log.Debug("Published %d %s samples to %s", len(samples), category, channel)
	return nil
}

// Index is a no-op; Redis only carries live samples.
func (r *Redis) Index(context.Context, string, time.Time, stats.Category, []stats.Sample) error {
	return nil
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
