package vfs

import (
	"time"

	"github.com/skx-redisfs/redisfs/internal/inode"
)

// Stat is the metadata spec §4.6 getattr returns to the kernel bridge.
type Stat struct {
	Ino   int64
	Type  inode.Type
	Mode  uint32 // includes synthesized file-type bits
	Size  uint64
	Nlink uint32
	UID   uint32
	GID   uint32
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
	// Target is only meaningful for Type == inode.Link.
	Target string
}

// DirEntry is one entry returned by Readdir, including the
// synthesized "." and "..".
type DirEntry struct {
	Name string
	Ino  int64
	Type inode.Type
}
