// Package redis publishes the live state of a running session: the latest
// tick and zone projections are kept under session keys and every write is
// announced on a pub/sub channel for dashboards.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/fowlengine/missioncore/internal/config"
	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/fowlengine/missioncore/pkg/streaming"
	"github.com/redis/go-redis/v9"
)

const (
	opTimeout = 2 * time.Second
	// events kept per session; older ones are trimmed
	eventHistory = 10_000
)

// Key patterns for live session state.
func currentKey(prefix string) string    { return prefix + ":current" }
func sessionKey(prefix, id string) string { return prefix + ":session:" + id }
func tickKey(prefix, id string) string   { return prefix + ":session:" + id + ":tick" }
func zonesKey(prefix, id string) string  { return prefix + ":session:" + id + ":zones" }
func eventsKey(prefix, id string) string { return prefix + ":session:" + id + ":events" }

// Backend implements storage.Backend on Redis.
type Backend struct {
	cfg config.RedisConfig
	rdb *redis.Client
	log *slog.Logger

	mu      sync.Mutex
	session string
}

// New creates a Redis backend. The connection is opened by Init.
func New(cfg config.RedisConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "missioncore"
	}
	return &Backend{cfg: cfg, log: logger}
}

// NewFromClient wraps an existing client, for tests.
func NewFromClient(rdb *redis.Client, cfg config.RedisConfig) *Backend {
	b := New(cfg, nil)
	b.rdb = rdb
	return b
}

// Init parses the URL and checks the server answers.
func (b *Backend) Init() error {
	if b.rdb == nil {
		opts, err := redis.ParseURL(b.cfg.URL)
		if err != nil {
			return fmt.Errorf("parse redis URL: %w", err)
		}
		b.rdb = redis.NewClient(opts)
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (b *Backend) Close() error {
	if b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

func (b *Backend) current() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == "" {
		return "", fmt.Errorf("no session started")
	}
	return b.session, nil
}

// publish announces a message on the configured channel inside pipe.
func (b *Backend) publish(ctx context.Context, pipe redis.Pipeliner, msgType string, payload any) error {
	if b.cfg.Channel == "" {
		return nil
	}
	data, err := streaming.Marshal(msgType, payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}
	pipe.Publish(ctx, b.cfg.Channel, data)
	return nil
}

// StartSession stores the session and marks it current.
func (b *Backend) StartSession(session *core.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	p := b.cfg.KeyPrefix
	_, err = b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, tickKey(p, session.ID), zonesKey(p, session.ID), eventsKey(p, session.ID))
		pipe.HSet(ctx, sessionKey(p, session.ID), "info", raw, "ended", "0")
		pipe.Set(ctx, currentKey(p), session.ID, 0)
		return b.publish(ctx, pipe, streaming.TypeStartSession, streaming.StartSessionPayload{Session: session})
	})
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	b.mu.Lock()
	b.session = session.ID
	b.mu.Unlock()
	b.log.Info("live session published", "session", session.ID, "channel", b.cfg.Channel)
	return nil
}

// EndSession marks the session ended and clears the current pointer.
func (b *Backend) EndSession(lastTick core.Tick, victor core.Faction) error {
	id, err := b.current()
	if err != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	p := b.cfg.KeyPrefix
	_, err = b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, sessionKey(p, id),
			"ended", "1",
			"lastTick", strconv.FormatUint(uint64(lastTick), 10),
			"victor", victor.String(),
		)
		pipe.Del(ctx, currentKey(p))
		return b.publish(ctx, pipe, streaming.TypeEndSession, streaming.EndSessionPayload{
			Session: id, LastTick: lastTick, Victor: victor,
		})
	})
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}

	b.mu.Lock()
	b.session = ""
	b.mu.Unlock()
	return nil
}

// RecordTick stores the latest tick report.
func (b *Backend) RecordTick(r *core.TickReport) error {
	id, err := b.current()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal tick: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err = b.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tickKey(b.cfg.KeyPrefix, id), raw, 0)
		return b.publish(ctx, pipe, streaming.TypeTick, r)
	})
	return err
}

// RecordZoneStates replaces the stored projection of every zone.
func (b *Backend) RecordZoneStates(tick core.Tick, zones []core.ZoneView) error {
	if len(zones) == 0 {
		return nil
	}
	id, err := b.current()
	if err != nil {
		return err
	}
	fields := make([]any, 0, 2*len(zones))
	for _, z := range zones {
		raw, err := json.Marshal(z)
		if err != nil {
			return fmt.Errorf("marshal zone %d: %w", z.ID, err)
		}
		fields = append(fields, strconv.FormatUint(uint64(z.ID), 10), raw)
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err = b.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, zonesKey(b.cfg.KeyPrefix, id), fields...)
		return b.publish(ctx, pipe, streaming.TypeZoneStates, streaming.ZoneStatesPayload{Tick: tick, Zones: zones})
	})
	return err
}

// RecordEvents appends events to the session's capped history.
func (b *Backend) RecordEvents(events []core.Event) error {
	if len(events) == 0 {
		return nil
	}
	id, err := b.current()
	if err != nil {
		return err
	}
	values := make([]any, len(events))
	for i, e := range events {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		values[i] = raw
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	key := eventsKey(b.cfg.KeyPrefix, id)
	_, err = b.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, -eventHistory, -1)
		return b.publish(ctx, pipe, streaming.TypeEvents, streaming.EventsPayload{Events: events})
	})
	return err
}

// Zones reads back the stored zone projections of a session.
func (b *Backend) Zones(ctx context.Context, sessionID string) ([]core.ZoneView, error) {
	raw, err := b.rdb.HGetAll(ctx, zonesKey(b.cfg.KeyPrefix, sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get zones: %w", err)
	}
	zones := make([]core.ZoneView, 0, len(raw))
	for _, v := range raw {
		var z core.ZoneView
		if err := json.Unmarshal([]byte(v), &z); err != nil {
			return nil, fmt.Errorf("decode zone: %w", err)
		}
		zones = append(zones, z)
	}
	return zones, nil
}

// Current returns the ID of the session marked current, empty if none.
func (b *Backend) Current(ctx context.Context) (string, error) {
	id, err := b.rdb.Get(ctx, currentKey(b.cfg.KeyPrefix)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get current session: %w", err)
	}
	return id, nil
}
