package vfs

import "errors"

// Sentinel errors the FUSE adapter maps to POSIX status codes
// (spec §7). Handlers never return raw store errors to the adapter;
// anything else bubbles up wrapped around store.ErrCommand and is
// mapped to -EIO.
var (
	// ErrNotFound is returned when a path does not resolve to any
	// inode (spec §4.5, §7(a)).
	ErrNotFound = errors.New("vfs: no such file or directory")

	// ErrNotEmpty is returned by Rmdir when the target directory's
	// entry set is non-empty (spec §4.6 rmdir, §7(c)).
	ErrNotEmpty = errors.New("vfs: directory not empty")

	// ErrReadOnly is returned by every mutating handler when the
	// filesystem was started with --read-only (spec §4.6, §7(b)).
	ErrReadOnly = errors.New("vfs: filesystem is read-only")

	// ErrIsDirectory is mapped to EISDIR by the FUSE adapter. No
	// handler in this package returns it: Truncate reports a
	// directory as ErrNotFound, and Read/Write do not check the type.
	ErrIsDirectory = errors.New("vfs: is a directory")

	// ErrExists is returned by create/mkdir/symlink/rename when the
	// destination name already exists in the target directory — the
	// chosen resolution of the duplicate-name open question in
	// spec §9 (see DESIGN.md).
	ErrExists = errors.New("vfs: entry already exists")
)
