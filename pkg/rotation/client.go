package rotation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the persistence surface the orchestrator depends on.
// Client is the Redis implementation.
type Store interface {
	Get(ctx context.Context, key Key) (*State, error)
	Put(ctx context.Context, key Key, next *State, opts PutOptions) (*State, error)
	PutFrame(ctx context.Context, key Key, next *State, opts FrameOptions) (*FrameWrite, error)
	ListFrameRows(ctx context.Context, key Key, prefix string) ([]FrameRow, error)
}

// PutOptions controls a Put.
type PutOptions struct {
	// TTL makes the record reclaimable after the duration. Only valid on sandbox keys.
	TTL time.Duration

	// ExpectedRev guards the write: it is rejected with ErrOptimisticConflict unless the stored
	// revision equals *ExpectedRev. Nil means last-writer-wins.
	ExpectedRev *int64
}

// FrameOptions controls a PutFrame.
type FrameOptions struct {
	Now     time.Time     // Wall-clock time of the frame; the row timestamp is derived from it
	FrameID string        // Identifies the rows of this frame
	TTL     time.Duration // Sandbox keys only, as in PutOptions
}

// FrameWrite is the outcome of a PutFrame.
type FrameWrite struct {
	State     *State
	Timestamp string
	Rows      []FrameRow
}

// maxFrameAttempts bounds the WATCH retries of a frame write racing other frame writers.
const maxFrameAttempts = 10

// Rev is a convenience for building PutOptions.ExpectedRev.
func Rev(rev int64) *int64 {
	return &rev
}

// Client provides key-scoped Redis operations for rotation state.
// The client is thread-safe and holds no per-request state; Redis is the only
// synchronization point between concurrent callers.
type Client struct {
	rdb     *redis.Client
	timeout time.Duration
	now     func() time.Time
}

var _ Store = (*Client)(nil)

// NewClient creates a new rotation store client.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - timeout: deadline applied to every storage call (0 = caller context only)
//
// Returns an error if timeout is negative.
func NewClient(redisOpts *redis.Options, timeout time.Duration) (*Client, error) {
	if timeout < 0 {
		return nil, fmt.Errorf("storage timeout cannot be negative")
	}

	return &Client{
		rdb:     redis.NewClient(redisOpts),
		timeout: timeout,
		now:     time.Now,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// Get returns the state stored under key. It never reports not-found: an unseen key yields the
// default empty state at revision 0, and partial records are merged with defaults.
func (c *Client) Get(ctx context.Context, key Key) (*State, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	hashData, err := c.rdb.HGetAll(ctx, StateKey(key)).Result()
	if err != nil {
		return nil, unavailable("get", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return NewState(), nil
	}

	return HashToState(hashData)
}

// Put writes next under key and returns the stored state with its new revision.
//
// With opts.ExpectedRev set the write runs inside WATCH/MULTI and is rejected with
// ErrOptimisticConflict unless the stored revision matches; a transaction aborted by a concurrent
// writer is reported the same way. Without it the content is overwritten unconditionally while the
// revision is still incremented atomically, so guarded writers never miss a bulk write.
func (c *Client) Put(ctx context.Context, key Key, next *State, opts PutOptions) (*State, error) {
	stored, hash, err := c.prepare("put", key, next, opts.TTL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if opts.ExpectedRev == nil {
		return c.putUnguarded(ctx, key, stored, hash, opts.TTL)
	}
	return c.putGuarded(ctx, key, stored, hash, opts)
}

// prepare validates a write and returns the stamped copy of next with its hash encoding.
func (c *Client) prepare(op string, key Key, next *State, ttl time.Duration) (*State, map[string]interface{}, error) {
	if err := key.Validate(); err != nil {
		return nil, nil, err
	}
	if next == nil {
		return nil, nil, validationf(op, "state is required")
	}
	if ttl < 0 {
		return nil, nil, validationf(op, "ttl cannot be negative")
	}
	if ttl > 0 && !key.IsSandbox() {
		return nil, nil, validationf(op, "canonical state %s cannot expire", key)
	}

	stored := next.Clone()
	stored.SyncBreaks()
	now := c.now()
	stored.UpdatedAtMs = now.UnixMilli()
	stored.ExpiresAtMs = 0
	if ttl > 0 {
		stored.ExpiresAtMs = now.Add(ttl).UnixMilli()
	}

	hash, err := StateToHash(stored)
	if err != nil {
		return nil, nil, validationf(op, "state could not be encoded: %v", err)
	}
	return stored, hash, nil
}

func (c *Client) putUnguarded(ctx context.Context, key Key, stored *State, hash map[string]interface{}, ttl time.Duration) (*State, error) {
	redisKey := StateKey(key)

	var revCmd *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, redisKey, hash)
		revCmd = pipe.HIncrBy(ctx, redisKey, fieldRev, 1)
		if ttl > 0 {
			pipe.PExpire(ctx, redisKey, ttl)
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("put", err)
	}

	stored.Rev = revCmd.Val()
	return stored, nil
}

func (c *Client) putGuarded(ctx context.Context, key Key, stored *State, hash map[string]interface{}, opts PutOptions) (*State, error) {
	redisKey := StateKey(key)
	expected := *opts.ExpectedRev

	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, redisKey, fieldRev).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		if current != expected {
			return conflictf("put", "state %s is at revision %d, expected %d", key, current, expected)
		}

		stored.Rev = current + 1
		hash[fieldRev] = stored.Rev

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, redisKey, hash)
			if opts.TTL > 0 {
				pipe.PExpire(ctx, redisKey, opts.TTL)
			}
			return nil
		})
		return err
	}, redisKey)

	switch {
	case err == nil:
		return stored, nil
	case IsOptimisticConflict(err):
		return nil, err
	case errors.Is(err, redis.TxFailedErr):
		return nil, conflictf("put", "state %s changed during write", key)
	default:
		return nil, unavailable("put", err)
	}
}

// PutFrame stores next unguarded (last-writer-wins, revision still incremented) and records its
// rows as one full frame, all in a single MULTI. The frame timestamp is computed from the latest
// recorded one under WATCH on the frame index, so it always sorts strictly after every earlier frame
// of the key, even when several frame writers race. Either everything is written or nothing is.
func (c *Client) PutFrame(ctx context.Context, key Key, next *State, opts FrameOptions) (*FrameWrite, error) {
	stored, hash, err := c.prepare("put_frame", key, next, opts.TTL)
	if err != nil {
		return nil, err
	}
	if opts.FrameID == "" {
		return nil, validationf("put_frame", "frame id is required")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	stateKey := StateKey(key)
	indexKey := FrameIndexKey(key)
	rowsKey := FrameRowsKey(key)

	var out *FrameWrite
	txf := func(tx *redis.Tx) error {
		prev, err := latestFrameTimestamp(ctx, tx, indexKey)
		if err != nil {
			return err
		}
		timestamp := NextFrameTimestamp(opts.Now, prev)
		rows := FrameRows(stored.Assignments, timestamp, opts.FrameID, stored.Tick)
		members, payloads, err := encodeFrameRows("put_frame", rows)
		if err != nil {
			return err
		}

		var revCmd *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, stateKey, hash)
			revCmd = pipe.HIncrBy(ctx, stateKey, fieldRev, 1)
			if len(members) > 0 {
				pipe.ZAdd(ctx, indexKey, members...)
				pipe.HSet(ctx, rowsKey, payloads)
			}
			if opts.TTL > 0 {
				pipe.PExpire(ctx, stateKey, opts.TTL)
				pipe.PExpire(ctx, indexKey, opts.TTL)
				pipe.PExpire(ctx, rowsKey, opts.TTL)
			}
			return nil
		})
		if err != nil {
			return err
		}

		result := stored.Clone()
		result.Rev = revCmd.Val()
		out = &FrameWrite{State: result, Timestamp: timestamp, Rows: rows}
		return nil
	}

	for attempt := 0; attempt < maxFrameAttempts; attempt++ {
		err := c.rdb.Watch(ctx, txf, indexKey)
		switch {
		case err == nil:
			return out, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case isRotationError(err):
			return nil, err
		default:
			return nil, unavailable("put_frame", err)
		}
	}
	return nil, conflictf("put_frame", "frame history of %s kept changing during write", key)
}

// AppendFrame records rows without touching the state record. A row is never replaced: if any
// timestamp/position pair is already recorded the whole append is rejected with
// ErrOptimisticConflict and nothing is written. A positive ttl applies to the whole frame history
// of a sandbox key.
func (c *Client) AppendFrame(ctx context.Context, key Key, rows []FrameRow, ttl time.Duration) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if ttl > 0 && !key.IsSandbox() {
		return validationf("append_frame", "canonical frames %s cannot expire", key)
	}
	if len(rows) == 0 {
		return nil
	}

	members, payloads, err := encodeFrameRows("append_frame", rows)
	if err != nil {
		return err
	}
	fields := make([]string, 0, len(members))
	for _, m := range members {
		fields = append(fields, m.Member.(string))
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	indexKey := FrameIndexKey(key)
	rowsKey := FrameRowsKey(key)
	txf := func(tx *redis.Tx) error {
		existing, err := tx.HMGet(ctx, rowsKey, fields...).Result()
		if err != nil {
			return err
		}
		for i, v := range existing {
			if v != nil {
				return conflictf("append_frame", "frame row %s is already recorded", fields[i])
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZAdd(ctx, indexKey, members...)
			pipe.HSet(ctx, rowsKey, payloads)
			if ttl > 0 {
				pipe.PExpire(ctx, indexKey, ttl)
				pipe.PExpire(ctx, rowsKey, ttl)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxFrameAttempts; attempt++ {
		err := c.rdb.Watch(ctx, txf, indexKey, rowsKey)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case isRotationError(err):
			return err
		default:
			return unavailable("append_frame", err)
		}
	}
	return conflictf("append_frame", "frame history of %s kept changing during write", key)
}

// encodeFrameRows builds the index members and payload fields of rows.
func encodeFrameRows(op string, rows []FrameRow) ([]redis.Z, map[string]interface{}, error) {
	members := make([]redis.Z, 0, len(rows))
	payloads := make(map[string]interface{}, len(rows))
	for _, row := range rows {
		if row.Timestamp == "" || row.PositionID == "" {
			return nil, nil, validationf(op, "frame row requires timestamp and position id")
		}
		data, err := json.Marshal(row)
		if err != nil {
			return nil, nil, validationf(op, "frame row could not be encoded: %v", err)
		}
		member := frameMember(row)
		members = append(members, redis.Z{Score: 0, Member: member})
		payloads[member] = string(data)
	}
	return members, payloads, nil
}

// ListFrameRows returns every historical row for key whose timestamp starts with prefix, sorted by
// timestamp then position. An empty prefix returns the full history. Rows are never deleted.
func (c *Client) ListFrameRows(ctx context.Context, key Key, prefix string) ([]FrameRow, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	by := &redis.ZRangeBy{Min: "-", Max: "+"}
	if prefix != "" {
		by = &redis.ZRangeBy{Min: "[" + prefix, Max: "[" + prefix + "\xff"}
	}

	members, err := c.rdb.ZRangeByLex(ctx, FrameIndexKey(key), by).Result()
	if err != nil {
		return nil, unavailable("list_frame_rows", err)
	}
	if len(members) == 0 {
		return []FrameRow{}, nil
	}

	values, err := c.rdb.HMGet(ctx, FrameRowsKey(key), members...).Result()
	if err != nil {
		return nil, unavailable("list_frame_rows", err)
	}

	rows := make([]FrameRow, 0, len(values))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// Index entry without payload: keep the row addressable with what the member encodes
			ts, pos, _ := strings.Cut(members[i], frameMemberSep)
			rows = append(rows, FrameRow{Timestamp: ts, PositionID: pos})
			continue
		}
		var row FrameRow
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			return nil, invariantf("list_frame_rows", "unreadable frame row %s: %v", members[i], err)
		}
		rows = append(rows, row)
	}

	sortFrameRows(rows)
	return rows, nil
}

// LatestFrameTimestamp returns the greatest frame timestamp recorded for key, or "" if none.
func (c *Client) LatestFrameTimestamp(ctx context.Context, key Key) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	ts, err := latestFrameTimestamp(ctx, c.rdb, FrameIndexKey(key))
	if err != nil {
		return "", unavailable("latest_frame_timestamp", err)
	}
	return ts, nil
}

// lexReader is satisfied by both *redis.Client and *redis.Tx.
type lexReader interface {
	ZRevRangeByLex(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
}

// latestFrameTimestamp reads the lexicographically greatest index member (ZREVRANGEBYLEX limit 1).
func latestFrameTimestamp(ctx context.Context, rdb lexReader, indexKey string) (string, error) {
	results, err := rdb.ZRevRangeByLex(ctx, indexKey, &redis.ZRangeBy{
		Min:    "-",
		Max:    "+",
		Offset: 0,
		Count:  1,
	}).Result()
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}
	return timestampOfMember(results[0]), nil
}
