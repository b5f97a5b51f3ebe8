// Package store is the backing-store client façade (spec §4.2). It
// owns the single live connection to the Redis-compatible server,
// exposes the command vocabulary of spec §6.2 as typed methods, and
// handles lazy connect, liveness probing, and reconnection. It does
// not serialize its own access: callers hold the filesystem's global
// lock across every round trip, per spec §5.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ConnectTimeout is the dial timeout used whenever a new connection is
// established, matching the original 1.5-second budget (spec §4.2).
const ConnectTimeout = 1500 * time.Millisecond

// Client wraps a single *redis.Client and reconnects it on demand.
type Client struct {
	addr   string
	logger *zap.Logger

	rdb *redis.Client
}

// New returns a Client for host:port. The connection itself is
// established lazily by the first call to EnsureAlive.
func New(host string, port int, logger *zap.Logger) *Client {
	return &Client{
		addr:   fmt.Sprintf("%s:%d", host, port),
		logger: logger,
	}
}

// EnsureAlive sends a liveness ping; on any failure it establishes a
// fresh connection. If the new connection cannot be made, the process
// is aborted — a filesystem cannot usefully run without its backing
// store (spec §4.2, §7).
func (c *Client) EnsureAlive(ctx context.Context) {
	if c.rdb != nil {
		pingCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
		err := c.rdb.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			return
		}
		_ = c.rdb.Close()
		c.rdb = nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        c.addr,
		DialTimeout: ConnectTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	err := rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		c.logger.Fatal("failed to connect to backing store",
			zap.String("addr", c.addr), zap.Error(err))
		return
	}

	c.logger.Debug("connected to backing store", zap.String("addr", c.addr))
	c.rdb = rdb
}

// ErrCommand wraps any per-command error reply; handlers treat it as
// the operation failing with an I/O error (spec §7(e)).
var ErrCommand = errors.New("store: command failed")

func wrap(err error) error {
	if err == nil || err == redis.Nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrCommand, err)
}

// Get returns the string value of key, or nil if absent.
func (c *Client) Get(ctx context.Context, key []byte) ([]byte, error) {
	v, err := c.rdb.Get(ctx, string(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(err)
	}
	return v, nil
}

// MGet returns the string value of each key in order; a missing key
// yields a nil slot, per the recovery pragma of spec §7(f).
func (c *Client) MGet(ctx context.Context, keys [][]byte) ([][]byte, error) {
	strKeys := make([]string, len(keys))
	for i, k := range keys {
		strKeys[i] = string(k)
	}

	res, err := c.rdb.MGet(ctx, strKeys...).Result()
	if err != nil {
		return nil, wrap(err)
	}

	out := make([][]byte, len(res))
	for i, v := range res {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[i] = []byte(s)
	}
	return out, nil
}

// Set writes a raw byte-string value.
func (c *Client) Set(ctx context.Context, key, value []byte) error {
	return wrap(c.rdb.Set(ctx, string(key), value, 0).Err())
}

// MSet writes several key/value pairs atomically from the client's
// point of view; fields must be an even-length, flattened list.
func (c *Client) MSet(ctx context.Context, fields ...[]byte) error {
	args := make([]interface{}, len(fields))
	for i, f := range fields {
		args[i] = f
	}
	return wrap(c.rdb.MSet(ctx, args...).Err())
}

// Del deletes every given key; missing keys are not an error.
func (c *Client) Del(ctx context.Context, keys ...[]byte) error {
	strKeys := make([]string, len(keys))
	for i, k := range keys {
		strKeys[i] = string(k)
	}
	return wrap(c.rdb.Del(ctx, strKeys...).Err())
}

// Incr atomically increments the integer at key and returns the new
// value. Used exclusively for the global inode counter.
func (c *Client) Incr(ctx context.Context, key []byte) (int64, error) {
	n, err := c.rdb.Incr(ctx, string(key)).Result()
	return n, wrap(err)
}

// GetRange returns the byte range [start, end] of the string at key,
// falling back to the legacy SUBSTR command name if GETRANGE is
// rejected by an older server (spec §4.6 read, §9 legacy fallback).
func (c *Client) GetRange(ctx context.Context, key []byte, start, end int64) ([]byte, error) {
	v, err := c.rdb.GetRange(ctx, string(key), start, end).Result()
	if err == nil {
		return []byte(v), nil
	}

	legacy := c.rdb.Do(ctx, "SUBSTR", string(key), start, end)
	s, legacyErr := legacy.Text()
	if legacyErr != nil {
		return nil, wrap(err)
	}
	return []byte(s), nil
}

// SAdd adds member to the set at key.
func (c *Client) SAdd(ctx context.Context, key []byte, member []byte) error {
	return wrap(c.rdb.SAdd(ctx, string(key), member).Err())
}

// SRem removes member from the set at key.
func (c *Client) SRem(ctx context.Context, key []byte, member []byte) error {
	return wrap(c.rdb.SRem(ctx, string(key), member).Err())
}

// SMembers returns every member of the set at key, in unspecified
// order (spec §4.5).
func (c *Client) SMembers(ctx context.Context, key []byte) ([][]byte, error) {
	res, err := c.rdb.SMembers(ctx, string(key)).Result()
	if err != nil {
		return nil, wrap(err)
	}
	out := make([][]byte, len(res))
	for i, v := range res {
		out[i] = []byte(v)
	}
	return out, nil
}

// Keys enumerates every key matching pattern. Used by the companion
// snapshot tool (spec §6.3), not by the core.
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	res, err := c.rdb.Keys(ctx, pattern).Result()
	return res, wrap(err)
}

// Type returns the store's type name for key ("string", "set", "none",
// ...). Used by the companion snapshot tool.
func (c *Client) Type(ctx context.Context, key string) (string, error) {
	res, err := c.rdb.Type(ctx, key).Result()
	return res, wrap(err)
}

// Pipeline returns a batch for pipelined multi-command issuance. The
// caller appends commands and calls Drain once to flush and collect
// every reply in issue order (spec §4.2, §5).
func (c *Client) Pipeline() *Pipeline {
	return &Pipeline{pipe: c.rdb.Pipeline()}
}

// Pipeline batches commands for one round trip.
type Pipeline struct {
	pipe redis.Pipeliner
}

func (p *Pipeline) SAdd(key, member []byte) {
	p.pipe.SAdd(context.Background(), string(key), member)
}

func (p *Pipeline) SRem(key, member []byte) {
	p.pipe.SRem(context.Background(), string(key), member)
}

func (p *Pipeline) MSet(fields ...[]byte) {
	args := make([]interface{}, len(fields))
	for i, f := range fields {
		args[i] = f
	}
	p.pipe.MSet(context.Background(), args...)
}

func (p *Pipeline) Set(key, value []byte) {
	p.pipe.Set(context.Background(), string(key), value, 0)
}

func (p *Pipeline) Del(key []byte) {
	p.pipe.Del(context.Background(), string(key))
}

// SetRange overwrites value into the string at key starting at offset,
// extending and zero-padding the string as needed — the true
// offset-write redesign of spec §9 (see DESIGN.md).
func (p *Pipeline) SetRange(key []byte, offset int64, value []byte) {
	p.pipe.SetRange(context.Background(), string(key), offset, string(value))
}

// Drain flushes every queued command and waits for all replies; the
// first per-command error is returned, wrapped in ErrCommand, so the
// caller can return -EIO without inspecting each reply individually.
func (p *Pipeline) Drain(ctx context.Context) error {
	_, err := p.pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return wrap(err)
	}
	return nil
}
