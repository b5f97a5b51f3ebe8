package vfs

import "go.uber.org/zap"

// Config gathers the process-wide state the original C sources kept
// as globals (_g_prefix, _g_redis_host, _g_redis_port, _g_fast,
// _g_read_only) into one value built once at startup and threaded
// through FS by reference (spec §9, "process-wide state → explicit
// configuration record"). The mount point is not part of it; it is
// carried by hanwen.Config.MountPoint.
type Config struct {
	// Host and Port address the backing Redis-compatible server.
	Host string
	Port int

	// Prefix is prepended to every key this mount writes (spec §4.3).
	Prefix string

	// ReadOnly refuses every mutating operation with -EPERM
	// (spec §4.6, §8.5).
	ReadOnly bool

	// Fast skips atime updates on open/access and mtime updates on
	// appending writes, trading POSIX strictness for throughput
	// (spec §4.6 open/write, GLOSSARY "Fast mode").
	Fast bool

	// Logger receives diagnostic messages. If nil, a no-op logger
	// is used.
	Logger *zap.Logger
}

func (c *Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
