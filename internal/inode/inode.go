// Package inode implements the per-inode metadata layer of spec §4.6's
// "Inode metadata layer" component (system overview §2 item 6): the
// attribute block every non-root inode owns, and the batched
// read/erase operations the operation handlers compose into their
// command sequences.
package inode

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/skx-redisfs/redisfs/internal/keyspace"
	"github.com/skx-redisfs/redisfs/internal/store"
)

// Type is the immutable kind of a filesystem object (spec §3.1).
type Type int

const (
	File Type = iota
	Dir
	Link
)

func (t Type) String() string {
	switch t {
	case Dir:
		return keyspace.TypeDir
	case Link:
		return keyspace.TypeLink
	default:
		return keyspace.TypeFile
	}
}

// ParseType maps a persisted TYPE attribute value back to a Type.
func ParseType(s string) (Type, bool) {
	switch s {
	case keyspace.TypeFile:
		return File, true
	case keyspace.TypeDir:
		return Dir, true
	case keyspace.TypeLink:
		return Link, true
	default:
		return 0, false
	}
}

// POSIX file-type bits, synthesized onto Mode on read (spec §4.6
// getattr) rather than stored — the persisted MODE attribute holds
// permission bits only.
const (
	TypeBitsDir = 0040000
	TypeBitsReg = 0100000
	TypeBitsLnk = 0120000
)

// Attrs is the full attribute block of one non-root inode (spec §3.1).
type Attrs struct {
	Name   string
	Type   Type
	Mode   uint32 // permission bits only; type bits synthesized by PosixMode
	UID    uint32
	GID    uint32
	Size   uint64
	Atime  time.Time
	Ctime  time.Time
	Mtime  time.Time
	Link   uint32
	Target string
}

// PosixMode returns Mode with the file-type bits set according to
// Type. It does not touch Size or Link; callers that need the LINK
// size/link values of spec §4.6 getattr set them separately.
func (a *Attrs) PosixMode() uint32 {
	switch a.Type {
	case Dir:
		return TypeBitsDir | (a.Mode &^ 0170000)
	case Link:
		return TypeBitsLnk | (a.Mode &^ 0170000)
	default:
		return TypeBitsReg | (a.Mode &^ 0170000)
	}
}

// Store is the metadata layer: a keyspace.Codec bound to a
// store.Client, providing attribute-block read and erase.
type Store struct {
	client *store.Client
	codec  *keyspace.Codec
}

func NewStore(client *store.Client, codec *keyspace.Codec) *Store {
	return &Store{client: client, codec: codec}
}

// Read batch-fetches every attribute of ino in one multi-get and
// decodes it into Attrs. exists is false if the TYPE attribute is
// absent (the inode was never created or has been erased), whatever
// the other attributes hold. Per spec §7(f), a malformed or absent
// scalar other than TYPE is treated as the attribute being absent,
// not a hard failure.
func (s *Store) Read(ctx context.Context, ino int64) (attrs *Attrs, exists bool, err error) {
	keys := make([][]byte, len(keyspace.AllAttrs))
	for i, a := range keyspace.AllAttrs {
		keys[i] = s.codec.AttrKey(ino, a)
	}

	vals, err := s.client.MGet(ctx, keys)
	if err != nil {
		return nil, false, fmt.Errorf("read inode %d: %w", ino, err)
	}

	slot := make(map[string][]byte, len(keyspace.AllAttrs))
	for i, a := range keyspace.AllAttrs {
		slot[a] = vals[i]
	}

	if slot[keyspace.AttrType] == nil {
		return nil, false, nil
	}

	a := &Attrs{}
	if v := slot[keyspace.AttrName]; v != nil {
		a.Name = string(v)
	}
	if t, ok := ParseType(string(slot[keyspace.AttrType])); ok {
		a.Type = t
	}
	a.Mode = parseUint32(slot[keyspace.AttrMode])
	a.UID = parseUint32(slot[keyspace.AttrUID])
	a.GID = parseUint32(slot[keyspace.AttrGID])
	a.Size = parseUint64(slot[keyspace.AttrSize])
	a.Atime = parseUnix(slot[keyspace.AttrAtime])
	a.Ctime = parseUnix(slot[keyspace.AttrCtime])
	a.Mtime = parseUnix(slot[keyspace.AttrMtime])
	a.Link = parseUint32(slot[keyspace.AttrLink])
	if v := slot[keyspace.AttrTarget]; v != nil {
		a.Target = string(v)
	}

	return a, true, nil
}

// EraseAll pipelines a delete of every attribute key of ino (spec
// §3.3, §4.6 rmdir/unlink).
func (s *Store) EraseAll(ctx context.Context, ino int64) error {
	p := s.client.Pipeline()
	for _, a := range keyspace.AllAttrs {
		p.Del(s.codec.AttrKey(ino, a))
	}
	return p.Drain(ctx)
}

func parseUint32(v []byte) uint32 {
	if v == nil {
		return 0
	}
	n, err := strconv.ParseUint(string(v), 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}

func parseUint64(v []byte) uint64 {
	if v == nil {
		return 0
	}
	n, err := strconv.ParseUint(string(v), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseUnix(v []byte) time.Time {
	if v == nil {
		return time.Time{}
	}
	n, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0)
}

// FormatUnix renders t as the decimal-ASCII seconds-since-epoch the
// store persists.
func FormatUnix(t time.Time) []byte {
	return []byte(strconv.FormatInt(t.Unix(), 10))
}

// FormatUint renders v as decimal ASCII.
func FormatUint(v uint64) []byte {
	return []byte(strconv.FormatUint(v, 10))
}

// FormatInode renders an inode number as decimal ASCII — the form
// directory-entry sets store their members in (spec §3.1).
func FormatInode(ino int64) []byte {
	return []byte(strconv.FormatInt(ino, 10))
}

// ParseInode parses a directory-entry set member back into an inode
// number.
func ParseInode(s []byte) (int64, error) {
	return strconv.ParseInt(string(s), 10, 64)
}
