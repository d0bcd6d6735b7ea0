// Package rediscache decorates a storage.Repository with a redis read-through
// cache for persisted occurrences, the lookup every expansion performs.
package rediscache

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cyp0633/libschedule/schedule"
	"github.com/cyp0633/libschedule/storage"
)

const (
	keyPrefix  = "schedule:occ:"
	DefaultTTL = 10 * time.Minute
)

// Key is the redis key holding eventID's persisted occurrences.
func Key(eventID string) string {
	return keyPrefix + eventID
}

// Cache wraps a Repository. Everything but the occurrence lookups passes
// straight through to the embedded repository.
type Cache struct {
	storage.Repository
	rdb    *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

var _ storage.Repository = (*Cache)(nil)

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

func New(repo storage.Repository, rdb *redis.Client, opts ...Option) *Cache {
	c := &Cache{Repository: repo, rdb: rdb, ttl: DefaultTTL, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect builds a client for addr and checks it answers.
func Connect(ctx context.Context, addr, username, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// ListPersistedOccurrences serves cached events from redis and loads the
// rest from the wrapped repository, caching them per event. Redis failures
// degrade to an uncached read.
func (c *Cache) ListPersistedOccurrences(ctx context.Context, eventIDs []string) ([]*schedule.Occurrence, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(eventIDs))
	for i, id := range eventIDs {
		keys[i] = Key(id)
	}
	cached, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Error().Err(err).Msg("redis MGET failed, reading through")
		return c.Repository.ListPersistedOccurrences(ctx, eventIDs)
	}

	var out []*schedule.Occurrence
	var misses []string
	for i, v := range cached {
		raw, ok := v.(string)
		if !ok {
			misses = append(misses, eventIDs[i])
			continue
		}
		var occs []*schedule.Occurrence
		if err := json.Unmarshal([]byte(raw), &occs); err != nil {
			c.logger.Warn().Err(err).Str("key", keys[i]).Msg("dropping undecodable cache entry")
			misses = append(misses, eventIDs[i])
			continue
		}
		out = append(out, occs...)
	}

	if len(misses) > 0 {
		loaded, err := c.Repository.ListPersistedOccurrences(ctx, misses)
		if err != nil {
			return nil, err
		}
		c.store(ctx, misses, loaded)
		out = append(out, loaded...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OriginalStart.Equal(out[j].OriginalStart) {
			return out[i].OriginalStart.Before(out[j].OriginalStart)
		}
		return out[i].EventID < out[j].EventID
	})
	return out, nil
}

// store caches loaded grouped by event. Events without overrides are cached
// as an empty list so they stop missing.
func (c *Cache) store(ctx context.Context, eventIDs []string, loaded []*schedule.Occurrence) {
	byEvent := make(map[string][]*schedule.Occurrence, len(eventIDs))
	for _, id := range eventIDs {
		byEvent[id] = []*schedule.Occurrence{}
	}
	for _, occ := range loaded {
		byEvent[occ.EventID] = append(byEvent[occ.EventID], occ)
	}

	pipe := c.rdb.Pipeline()
	for id, occs := range byEvent {
		payload, err := json.Marshal(occs)
		if err != nil {
			c.logger.Error().Err(err).Str("event", id).Msg("failed to encode occurrences")
			continue
		}
		pipe.Set(ctx, Key(id), payload, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Error().Err(err).Msg("failed to cache occurrences")
	}
}

// Invalidate drops the cached occurrences of the given events.
func (c *Cache) Invalidate(ctx context.Context, eventIDs ...string) {
	if len(eventIDs) == 0 {
		return
	}
	keys := make([]string, len(eventIDs))
	for i, id := range eventIDs {
		keys[i] = Key(id)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Error().Err(err).Strs("events", eventIDs).Msg("failed to invalidate occurrences")
	}
}

// Warm loads the occurrences of eventIDs into the cache.
func (c *Cache) Warm(ctx context.Context, eventIDs []string) error {
	_, err := c.ListPersistedOccurrences(ctx, eventIDs)
	return err
}

func (c *Cache) SaveOccurrence(ctx context.Context, occ *schedule.Occurrence) error {
	if err := c.Repository.SaveOccurrence(ctx, occ); err != nil {
		return err
	}
	c.Invalidate(ctx, occ.EventID)
	return nil
}

func (c *Cache) UpdateOccurrences(ctx context.Context, eventID string, deltaStart, deltaEnd time.Duration) error {
	if err := c.Repository.UpdateOccurrences(ctx, eventID, deltaStart, deltaEnd); err != nil {
		return err
	}
	c.Invalidate(ctx, eventID)
	return nil
}

func (c *Cache) DeleteEvent(ctx context.Context, id string) error {
	if err := c.Repository.DeleteEvent(ctx, id); err != nil {
		return err
	}
	c.Invalidate(ctx, id)
	return nil
}
