// Package redisstore is a Redis store backend. Each slot is a hash keyed by
// slot number; the conditional updates run as Lua scripts, which Redis
// executes atomically, giving the same claim/release arbitration the MongoDB
// backend gets from conditional updates.
package redisstore

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dvoicu/slotboard/internal/model"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "slotboard"

// Lease timestamps are stored as unix seconds; second precision is plenty
// for hour-scale leases.
var claimScript = redis.NewScript(`
local holder = redis.call('HGET', KEYS[1], 'holder_id')
local expires = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
if holder and expires and expires > tonumber(ARGV[3]) then
  return 0
end
redis.call('HSET', KEYS[1],
  'holder_id', ARGV[1],
  'holder_label', ARGV[2],
  'leased_at', ARGV[3],
  'expires_at', ARGV[4])
return 1
`)

var releaseScript = redis.NewScript(`
local holder = redis.call('HGET', KEYS[1], 'holder_id')
local expires = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
if holder == ARGV[1] and expires and expires > tonumber(ARGV[2]) then
  redis.call('HDEL', KEYS[1], 'holder_id', 'holder_label', 'leased_at', 'expires_at')
  return 1
end
return 0
`)

var sweepScript = redis.NewScript(`
local holder = redis.call('HGET', KEYS[1], 'holder_id')
local expires = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
if holder and expires and expires <= tonumber(ARGV[1]) then
  redis.call('HDEL', KEYS[1], 'holder_id', 'holder_label', 'leased_at', 'expires_at')
  return 1
end
return 0
`)

// Store implements store.SlotStore and store.MetaStore on Redis.
type Store struct {
	rdb       *redis.Client
	prefix    string
	slotCount int
}

// New creates a store on an existing Redis client.
func New(rdb *redis.Client) *Store {
	return &Store{
		rdb:    rdb,
		prefix: defaultPrefix,
	}
}

// Connect dials Redis and verifies connectivity.
func Connect(ctx context.Context, addr, password string, db int) (*Store, error) {
	slog.Info("Connecting to Redis", "addr", addr, "db", db)

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	slog.Info("Successfully connected to Redis")
	return New(rdb), nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) slotKey(slotNo int) string {
	return fmt.Sprintf("%s:slot:%d", s.prefix, slotNo)
}

func (s *Store) metaKey(key string) string {
	return s.prefix + ":meta:" + key
}

func (s *Store) countKey() string {
	return s.prefix + ":slot_count"
}

// InitSlots records the pool size and creates missing slot hashes without
// disturbing live leases.
func (s *Store) InitSlots(ctx context.Context, n int) error {
	if err := s.rdb.Set(ctx, s.countKey(), n, 0).Err(); err != nil {
		return fmt.Errorf("failed to store slot count: %w", err)
	}
	s.slotCount = n

	pipe := s.rdb.Pipeline()
	for slotNo := 1; slotNo <= n; slotNo++ {
		pipe.HSetNX(ctx, s.slotKey(slotNo), "slot_no", slotNo)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to initialize slots: %w", err)
	}

	slog.Info("Slot table initialized", "slot_count", n)
	return nil
}

// count returns the pool size, reading it back from Redis after a restart.
func (s *Store) count(ctx context.Context) (int, error) {
	if s.slotCount > 0 {
		return s.slotCount, nil
	}

	n, err := s.rdb.Get(ctx, s.countKey()).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to read slot count: %w", err)
	}
	s.slotCount = n
	return n, nil
}

// ListAll returns every slot ordered by slot number ascending.
func (s *Store) ListAll(ctx context.Context) ([]model.Slot, error) {
	n, err := s.count(ctx)
	if err != nil {
		return nil, err
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, n)
	for slotNo := 1; slotNo <= n; slotNo++ {
		cmds[slotNo-1] = pipe.HGetAll(ctx, s.slotKey(slotNo))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}

	slots := make([]model.Slot, 0, n)
	for i, cmd := range cmds {
		slot, err := decodeSlot(i+1, cmd.Val())
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}

	return slots, nil
}

// ListHeldBy returns the slots leased by userID whose expiry is still in the
// future, ordered by slot number ascending.
func (s *Store) ListHeldBy(ctx context.Context, userID string, now time.Time) ([]model.Slot, error) {
	slots, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var held []model.Slot
	for _, slot := range slots {
		if slot.HolderID == userID && slot.HeldAt(now) {
			held = append(held, slot)
		}
	}
	return held, nil
}

// Claim runs the claim script against one slot hash. The script checks the
// holder and writes the lease in one atomic step.
func (s *Store) Claim(ctx context.Context, slotNo int, userID, label string, now, expiresAt time.Time) (*model.Slot, bool, error) {
	won, err := claimScript.Run(ctx, s.rdb,
		[]string{s.slotKey(slotNo)},
		userID, label, now.Unix(), expiresAt.Unix(),
	).Int()
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim slot %d: %w", slotNo, err)
	}
	if won == 0 {
		return nil, false, nil
	}

	slog.Debug("Slot claimed",
		"slot_no", slotNo,
		"holder_id", userID,
		"expires_at", expiresAt,
	)

	leasedAt := time.Unix(now.Unix(), 0).UTC()
	expiry := time.Unix(expiresAt.Unix(), 0).UTC()
	return &model.Slot{
		SlotNo:      slotNo,
		HolderID:    userID,
		HolderLabel: label,
		LeasedAt:    &leasedAt,
		ExpiresAt:   &expiry,
	}, true, nil
}

// Release runs the release script against one slot hash.
func (s *Store) Release(ctx context.Context, slotNo int, userID string, now time.Time) (bool, error) {
	released, err := releaseScript.Run(ctx, s.rdb,
		[]string{s.slotKey(slotNo)},
		userID, now.Unix(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to release slot %d: %w", slotNo, err)
	}

	if released == 1 {
		slog.Debug("Slot released", "slot_no", slotNo, "holder_id", userID)
	}
	return released == 1, nil
}

// ReleaseAnyHeldBy tries the release script slot by slot in ascending order.
// Each attempt is atomic; no cross-slot ordering is needed.
func (s *Store) ReleaseAnyHeldBy(ctx context.Context, userID string, now time.Time) (int, bool, error) {
	n, err := s.count(ctx)
	if err != nil {
		return 0, false, err
	}

	for slotNo := 1; slotNo <= n; slotNo++ {
		released, err := s.Release(ctx, slotNo, userID, now)
		if err != nil {
			return 0, false, err
		}
		if released {
			return slotNo, true, nil
		}
	}
	return 0, false, nil
}

// SweepExpired runs the sweep script per slot. Each slot is cleared
// atomically on its own; no cross-slot ordering is needed.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.count(ctx)
	if err != nil {
		return 0, err
	}

	var swept int64
	for slotNo := 1; slotNo <= n; slotNo++ {
		cleared, err := sweepScript.Run(ctx, s.rdb,
			[]string{s.slotKey(slotNo)},
			now.Unix(),
		).Int()
		if err != nil {
			return swept, fmt.Errorf("failed to sweep slot %d: %w", slotNo, err)
		}
		swept += int64(cleared)
	}

	if swept > 0 {
		slog.Info("Swept expired leases", "count", swept)
	}
	return swept, nil
}

// Ping reports backend connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Get returns the value for key, or the empty string when absent.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.rdb.Get(ctx, s.metaKey(key)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("failed to get metadata %s: %w", key, err)
	}
	return value, nil
}

// Set stores the value for key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, s.metaKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.metaKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete metadata %s: %w", key, err)
	}
	return nil
}

// decodeSlot converts a slot hash into a model.Slot.
func decodeSlot(slotNo int, fields map[string]string) (model.Slot, error) {
	slot := model.Slot{SlotNo: slotNo}

	if holder, ok := fields["holder_id"]; ok && holder != "" {
		slot.HolderID = holder
		slot.HolderLabel = fields["holder_label"]

		leasedAt, err := parseUnix(fields["leased_at"])
		if err != nil {
			return slot, fmt.Errorf("slot %d has malformed leased_at: %w", slotNo, err)
		}
		expiresAt, err := parseUnix(fields["expires_at"])
		if err != nil {
			return slot, fmt.Errorf("slot %d has malformed expires_at: %w", slotNo, err)
		}
		slot.LeasedAt = leasedAt
		slot.ExpiresAt = expiresAt
	}

	return slot, nil
}

func parseUnix(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	secs, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, err
	}
	t := time.Unix(secs, 0).UTC()
	return &t, nil
}
