// Package keyspace implements the namespace codec of spec §4.3: pure
// functions mapping (prefix, inode, attribute) and (prefix, inode) to
// the key names the backing store holds. The exact textual form is
// part of the external interface — the companion snapshot tool and any
// operator tooling depend on it — so it must not drift.
package keyspace

import (
	"github.com/Xuanwo/go-bufferpool"
)

// RootInode is the sentinel inode number for the filesystem root. It
// is never materialized as an INODE:* key; only its directory-entry
// set exists.
const RootInode int64 = -99

// Attribute names, exactly as persisted (spec §3.1 / §4.3).
const (
	AttrName   = "NAME"
	AttrType   = "TYPE"
	AttrMode   = "MODE"
	AttrUID    = "UID"
	AttrGID    = "GID"
	AttrSize   = "SIZE"
	AttrAtime  = "ATIME"
	AttrCtime  = "CTIME"
	AttrMtime  = "MTIME"
	AttrLink   = "LINK"
	AttrTarget = "TARGET"
	AttrData   = "DATA"
)

// AllAttrs enumerates every attribute key an inode may own, in the
// order rmdir/unlink delete them.
var AllAttrs = []string{
	AttrName, AttrType, AttrMode, AttrUID, AttrGID, AttrSize,
	AttrAtime, AttrCtime, AttrMtime, AttrLink, AttrTarget, AttrData,
}

// Inode type values, as persisted in the TYPE attribute.
const (
	TypeFile = "FILE"
	TypeDir  = "DIR"
	TypeLink = "LINK"
)

// Codec builds store keys under a single configured prefix. One Codec
// is created per mount and shared read-only by every handler.
type Codec struct {
	prefix string
	pool   *bufferpool.Pool
}

// New returns a Codec for the given key prefix. Operating multiple
// filesystems against one store requires distinct prefixes (spec
// §6.1).
func New(prefix string) *Codec {
	return &Codec{
		prefix: prefix,
		pool:   bufferpool.New(64),
	}
}

// Prefix returns the configured key prefix.
func (c *Codec) Prefix() string {
	return c.prefix
}

// AttrKey returns the key for one attribute of one inode:
// "<prefix>:INODE:<inode>:<attr>".
func (c *Codec) AttrKey(inode int64, attr string) []byte {
	buf := c.pool.Get()
	defer buf.Free()

	buf.AppendBytes([]byte(c.prefix))
	buf.AppendBytes([]byte(":INODE:"))
	appendInt(buf, inode)
	buf.AppendBytes([]byte(":"))
	buf.AppendBytes([]byte(attr))
	return buf.BytesCopy()
}

// DirentKey returns the key of the directory-entry set for inode:
// "<prefix>:DIRENT:<inode>".
func (c *Codec) DirentKey(inode int64) []byte {
	buf := c.pool.Get()
	defer buf.Free()

	buf.AppendBytes([]byte(c.prefix))
	buf.AppendBytes([]byte(":DIRENT:"))
	appendInt(buf, inode)
	return buf.BytesCopy()
}

// CounterKey returns the key of the global inode counter:
// "<prefix>:GLOBAL:INODE".
func (c *Codec) CounterKey() []byte {
	buf := c.pool.Get()
	defer buf.Free()

	buf.AppendBytes([]byte(c.prefix))
	buf.AppendBytes([]byte(":GLOBAL:INODE"))
	return buf.BytesCopy()
}

// KeyPattern returns the glob pattern "<prefix>*" that matches every
// key this codec could have written. The companion snapshot tool
// (spec §6.3) builds the same pattern from its --old-prefix flag
// rather than calling this method.
func (c *Codec) KeyPattern() string {
	return c.prefix + "*"
}

func appendInt(buf *bufferpool.Buffer, v int64) {
	if v < 0 {
		buf.AppendBytes([]byte{'-'})
		buf.AppendUint(uint64(-v))
		return
	}
	buf.AppendUint(uint64(v))
}
