package vfs

import (
	"context"
	"fmt"
	"time"

	"github.com/skx-redisfs/redisfs/internal/inode"
	"github.com/skx-redisfs/redisfs/internal/keyspace"
	"github.com/skx-redisfs/redisfs/internal/pathutil"
)

// Getattr resolves path and returns its metadata (spec §4.6 getattr).
// For the root, attributes are synthesized rather than read: the root
// inode owns no attribute keys (spec §3.1, invariant 4).
func (fs *FS) Getattr(ctx context.Context, path string, callerUID, callerGID uint32) (*Stat, error) {
	fs.lock(ctx)
	defer fs.mu.Unlock()

	ino, found, err := fs.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	if ino == keyspace.RootInode {
		t := now()
		return &Stat{
			Ino:   keyspace.RootInode,
			Type:  inode.Dir,
			Mode:  inode.TypeBitsDir | 0755,
			Nlink: 1,
			UID:   callerUID,
			GID:   callerGID,
			Atime: t,
			Mtime: t,
			Ctime: t,
		}, nil
	}

	attrs, exists, err := fs.meta.Read(ctx, ino)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	return attrsToStat(ino, attrs), nil
}

func attrsToStat(ino int64, a *inode.Attrs) *Stat {
	s := &Stat{
		Ino:    ino,
		Type:   a.Type,
		Mode:   a.PosixMode(),
		Size:   a.Size,
		Nlink:  1,
		UID:    a.UID,
		GID:    a.GID,
		Atime:  a.Atime,
		Ctime:  a.Ctime,
		Mtime:  a.Mtime,
		Target: a.Target,
	}
	if a.Type == inode.Link {
		s.Size = 0
	}
	return s
}

// Readdir always emits "." and "..". If path does not resolve, it
// returns just those two entries rather than an error (spec §4.6
// readdir).
func (fs *FS) Readdir(ctx context.Context, path string) ([]DirEntry, error) {
	fs.lock(ctx)
	defer fs.mu.Unlock()

	entries := []DirEntry{
		{Name: ".", Type: inode.Dir},
		{Name: "..", Type: inode.Dir},
	}

	ino, found, err := fs.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	if !found {
		return entries, nil
	}

	children, err := fs.store.SMembers(ctx, fs.codec.DirentKey(ino))
	if err != nil {
		return nil, fmt.Errorf("list directory %d: %w", ino, err)
	}
	if len(children) == 0 {
		return entries, nil
	}

	keys := make([][]byte, len(children))
	childInodes := make([]int64, len(children))
	for i, c := range children {
		childIno, perr := inode.ParseInode(c)
		if perr != nil {
			continue
		}
		childInodes[i] = childIno
		keys[i] = fs.codec.AttrKey(childIno, keyspace.AttrName)
	}

	names, err := fs.store.MGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("batch name lookup under %d: %w", ino, err)
	}

	for i, n := range names {
		if n == nil {
			continue
		}
		entries = append(entries, DirEntry{Name: string(n), Ino: childInodes[i], Type: inode.File})
	}
	return entries, nil
}

func splitPath(path string) (parentPath, name string, ok bool) {
	parentPath, ok = pathutil.Parent(path)
	if !ok {
		return "", "", false
	}
	return parentPath, pathutil.Basename(path), true
}

// newEntry allocates an inode under parentPath, pipelines the
// directory-set add plus the attribute multi-set, and drains. Shared
// by Mkdir/Create/Symlink (spec §4.6). A duplicate name is rejected
// with ErrExists — the resolution of the open question in spec §9
// (see DESIGN.md).
func (fs *FS) newEntry(ctx context.Context, path string, fields ...[]byte) (int64, error) {
	if err := fs.checkWritable(); err != nil {
		return 0, err
	}

	parentPath, _, ok := splitPath(path)
	if !ok {
		return 0, ErrNotFound
	}

	parentIno, found, err := fs.resolve(ctx, parentPath)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrNotFound
	}

	if _, exists, err := fs.resolve(ctx, path); err != nil {
		return 0, err
	} else if exists {
		return 0, ErrExists
	}

	ino, err := fs.allocInode(ctx)
	if err != nil {
		return 0, err
	}

	p := fs.store.Pipeline()
	p.SAdd(fs.codec.DirentKey(parentIno), inode.FormatInode(ino))
	p.MSet(fs.attrFields(ino, fields)...)
	if err := p.Drain(ctx); err != nil {
		return 0, fmt.Errorf("create entry %s: %w", path, err)
	}
	return ino, nil
}

// attrFields replaces each attribute name (the even-indexed entries of
// fields) with that attribute's key for ino, keeping its value, and so
// produces the flattened key/value list MSet expects. fields must
// already alternate (attrName, value).
func (fs *FS) attrFields(ino int64, fields [][]byte) [][]byte {
	out := make([][]byte, 0, len(fields))
	for i := 0; i < len(fields); i += 2 {
		out = append(out, fs.codec.AttrKey(ino, string(fields[i])), fields[i+1])
	}
	return out
}

// Mkdir creates a fresh empty directory (spec §4.6 mkdir).
func (fs *FS) Mkdir(ctx context.Context, path string, mode, uid, gid uint32) (*Stat, error) {
	fs.lock(ctx)
	defer fs.mu.Unlock()

	_, name, ok := splitPath(path)
	if !ok {
		return nil, ErrNotFound
	}

	t := now()
	ino, err := fs.newEntry(ctx, path, newInodeFields(name, keyspace.TypeDir, mode, uid, gid, 0, t)...)
	if err != nil {
		return nil, err
	}

	attrs := &inode.Attrs{Name: name, Type: inode.Dir, Mode: mode, UID: uid, GID: gid, Atime: t, Mtime: t, Ctime: t, Link: 1}
	return attrsToStat(ino, attrs), nil
}

// Create creates a fresh empty regular file (spec §4.6 create).
func (fs *FS) Create(ctx context.Context, path string, mode, uid, gid uint32) (*Stat, error) {
	fs.lock(ctx)
	defer fs.mu.Unlock()

	_, name, ok := splitPath(path)
	if !ok {
		return nil, ErrNotFound
	}

	t := now()
	ino, err := fs.newEntry(ctx, path, newInodeFields(name, keyspace.TypeFile, mode, uid, gid, 0, t)...)
	if err != nil {
		return nil, err
	}

	attrs := &inode.Attrs{Name: name, Type: inode.File, Mode: mode, UID: uid, GID: gid, Atime: t, Mtime: t, Ctime: t, Link: 1}
	return attrsToStat(ino, attrs), nil
}

// Symlink creates a symbolic link whose contents are target (spec
// §4.6 symlink). Mode is fixed at 0444, matching the original.
func (fs *FS) Symlink(ctx context.Context, target, path string, uid, gid uint32) (*Stat, error) {
	fs.lock(ctx)
	defer fs.mu.Unlock()

	_, name, ok := splitPath(path)
	if !ok {
		return nil, ErrNotFound
	}

	t := now()
	fields := newInodeFields(name, keyspace.TypeLink, 0444, uid, gid, 0, t)
	fields = append(fields, []byte(keyspace.AttrTarget), []byte(target))

	ino, err := fs.newEntry(ctx, path, fields...)
	if err != nil {
		return nil, err
	}

	attrs := &inode.Attrs{Name: name, Type: inode.Link, Mode: 0444, UID: uid, GID: gid, Atime: t, Mtime: t, Ctime: t, Link: 1, Target: target}
	return attrsToStat(ino, attrs), nil
}

func newInodeFields(name, typ string, mode, uid, gid uint32, size uint64, t time.Time) [][]byte {
	return [][]byte{
		[]byte(keyspace.AttrName), []byte(name),
		[]byte(keyspace.AttrType), []byte(typ),
		[]byte(keyspace.AttrMode), inode.FormatUint(uint64(mode)),
		[]byte(keyspace.AttrUID), inode.FormatUint(uint64(uid)),
		[]byte(keyspace.AttrGID), inode.FormatUint(uint64(gid)),
		[]byte(keyspace.AttrSize), inode.FormatUint(size),
		[]byte(keyspace.AttrCtime), inode.FormatUnix(t),
		[]byte(keyspace.AttrMtime), inode.FormatUnix(t),
		[]byte(keyspace.AttrAtime), inode.FormatUnix(t),
		[]byte(keyspace.AttrLink), inode.FormatUint(1),
	}
}

// Readlink returns the target of a symbolic link (spec §4.6
// readlink).
func (fs *FS) Readlink(ctx context.Context, path string) (string, error) {
	fs.lock(ctx)
	defer fs.mu.Unlock()

	ino, found, err := fs.resolve(ctx, path)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrNotFound
	}

	v, err := fs.store.Get(ctx, fs.codec.AttrKey(ino, keyspace.AttrTarget))
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", ErrNotFound
	}
	return string(v), nil
}

// removeEntry is the shared body of Unlink/Rmdir: remove the target
// from its parent's directory-entry set and erase every attribute key
// (spec §3.3, §4.6).
func (fs *FS) removeEntry(ctx context.Context, parentIno, ino int64) error {
	p := fs.store.Pipeline()
	p.SRem(fs.codec.DirentKey(parentIno), inode.FormatInode(ino))
	for _, a := range keyspace.AllAttrs {
		p.Del(fs.codec.AttrKey(ino, a))
	}
	return p.Drain(ctx)
}

// Unlink removes a file or symlink. It does not distinguish the two,
// and it does not refuse on directories — callers route directories
// through Rmdir (spec §4.6 unlink).
func (fs *FS) Unlink(ctx context.Context, path string) error {
	fs.lock(ctx)
	defer fs.mu.Unlock()

	if err := fs.checkWritable(); err != nil {
		return err
	}

	parentPath, _, ok := splitPath(path)
	if !ok {
		return ErrNotFound
	}
	parentIno, found, err := fs.resolve(ctx, parentPath)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}

	ino, found, err := fs.resolve(ctx, path)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}

	return fs.removeEntry(ctx, parentIno, ino)
}

// Rmdir removes an empty directory. Deletion does not recurse: a
// directory with children is refused (spec §4.6 rmdir, §3.3).
func (fs *FS) Rmdir(ctx context.Context, path string) error {
	fs.lock(ctx)
	defer fs.mu.Unlock()

	if err := fs.checkWritable(); err != nil {
		return err
	}

	parentPath, _, ok := splitPath(path)
	if !ok {
		return ErrNotFound
	}
	parentIno, found, err := fs.resolve(ctx, parentPath)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}

	ino, found, err := fs.resolve(ctx, path)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}

	attrs, exists, err := fs.meta.Read(ctx, ino)
	if err != nil {
		return err
	}
	if !exists || attrs.Type != inode.Dir {
		return ErrNotFound
	}

	children, err := fs.store.SMembers(ctx, fs.codec.DirentKey(ino))
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return ErrNotEmpty
	}

	return fs.removeEntry(ctx, parentIno, ino)
}

// Chmod updates the permission bits and bumps mtime (spec §4.6
// chmod).
func (fs *FS) Chmod(ctx context.Context, path string, mode uint32) error {
	fs.lock(ctx)
	defer fs.mu.Unlock()

	if err := fs.checkWritable(); err != nil {
		return err
	}

	ino, found, err := fs.resolve(ctx, path)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}

	return fs.store.MSet(ctx,
		fs.codec.AttrKey(ino, keyspace.AttrMode), inode.FormatUint(uint64(mode)),
		fs.codec.AttrKey(ino, keyspace.AttrMtime), inode.FormatUnix(now()),
	)
}

// Chown updates uid and/or gid and bumps mtime. A nil pointer leaves
// that field unchanged, matching POSIX chown(-1, -1) semantics (spec
// §4.6 chown).
func (fs *FS) Chown(ctx context.Context, path string, uid, gid *uint32) error {
	fs.lock(ctx)
	defer fs.mu.Unlock()

	if err := fs.checkWritable(); err != nil {
		return err
	}

	ino, found, err := fs.resolve(ctx, path)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}

	fields := [][]byte{fs.codec.AttrKey(ino, keyspace.AttrMtime), inode.FormatUnix(now())}
	if uid != nil {
		fields = append(fields, fs.codec.AttrKey(ino, keyspace.AttrUID), inode.FormatUint(uint64(*uid)))
	}
	if gid != nil {
		fields = append(fields, fs.codec.AttrKey(ino, keyspace.AttrGID), inode.FormatUint(uint64(*gid)))
	}
	return fs.store.MSet(ctx, fields...)
}

// Utimens sets atime and/or mtime from caller-supplied timestamps; a
// nil pointer leaves that field unchanged (kernels pass UTIME_OMIT for
// the other) (spec §4.6 utimens).
func (fs *FS) Utimens(ctx context.Context, path string, atime, mtime *time.Time) error {
	fs.lock(ctx)
	defer fs.mu.Unlock()

	if err := fs.checkWritable(); err != nil {
		return err
	}

	ino, found, err := fs.resolve(ctx, path)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}

	var fields [][]byte
	if atime != nil {
		fields = append(fields, fs.codec.AttrKey(ino, keyspace.AttrAtime), inode.FormatUnix(*atime))
	}
	if mtime != nil {
		fields = append(fields, fs.codec.AttrKey(ino, keyspace.AttrMtime), inode.FormatUnix(*mtime))
	}
	if len(fields) == 0 {
		return nil
	}
	return fs.store.MSet(ctx, fields...)
}

// Open updates atime, unless Fast is set, in which case it is a no-op
// that does not touch the store. A missing path returns nil: open is treated as a no-op for
// permission enforcement purposes — the kernel already gate-kept
// (spec §4.6 open/access).
func (fs *FS) Open(ctx context.Context, path string) error {
	return fs.touch(ctx, path)
}

// Access behaves identically to Open (spec §4.6).
func (fs *FS) Access(ctx context.Context, path string) error {
	return fs.touch(ctx, path)
}

func (fs *FS) touch(ctx context.Context, path string) error {
	if fs.cfg.Fast {
		return nil
	}

	fs.lock(ctx)
	defer fs.mu.Unlock()

	ino, found, err := fs.resolve(ctx, path)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	return fs.store.Set(ctx, fs.codec.AttrKey(ino, keyspace.AttrAtime), inode.FormatUnix(now()))
}

// Read resolves path, clamps the requested range to the file's
// current size, and fetches exactly that many bytes from the DATA
// attribute (spec §4.6 read).
func (fs *FS) Read(ctx context.Context, path string, size int, offset int64) ([]byte, error) {
	fs.lock(ctx)
	defer fs.mu.Unlock()

	ino, found, err := fs.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	attrs, exists, err := fs.meta.Read(ctx, ino)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	total := int64(attrs.Size)
	want := int64(size)
	if want > total {
		want = total
	}
	if offset+want > total {
		want = total - offset
	}
	if want <= 0 || offset >= total {
		return nil, nil
	}

	return fs.store.GetRange(ctx, fs.codec.AttrKey(ino, keyspace.AttrData), offset, offset+want-1)
}

// Write resolves path and writes data at offset using the store's
// native range-write command, then updates SIZE and (unless Fast is
// set for an appending write) MTIME (spec §4.6 write; the true
// offset-write redesign of spec §9, see DESIGN.md).
func (fs *FS) Write(ctx context.Context, path string, data []byte, offset int64) (int, error) {
	fs.lock(ctx)
	defer fs.mu.Unlock()

	if err := fs.checkWritable(); err != nil {
		return 0, err
	}

	ino, found, err := fs.resolve(ctx, path)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrNotFound
	}

	attrs, exists, err := fs.meta.Read(ctx, ino)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrNotFound
	}

	newSize := uint64(offset) + uint64(len(data))
	if newSize < attrs.Size {
		newSize = attrs.Size
	}

	p := fs.store.Pipeline()
	p.SetRange(fs.codec.AttrKey(ino, keyspace.AttrData), offset, data)
	p.Set(fs.codec.AttrKey(ino, keyspace.AttrSize), inode.FormatUint(newSize))
	if offset == 0 || !fs.cfg.Fast {
		p.Set(fs.codec.AttrKey(ino, keyspace.AttrMtime), inode.FormatUnix(now()))
	}
	if err := p.Drain(ctx); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return len(data), nil
}

// Truncate resolves path and resizes DATA to exactly newSize,
// zero-padding on growth (spec §4.6 truncate; the honor-requested-size
// redesign of spec §9, see DESIGN.md).
func (fs *FS) Truncate(ctx context.Context, path string, newSize uint64) error {
	fs.lock(ctx)
	defer fs.mu.Unlock()

	if err := fs.checkWritable(); err != nil {
		return err
	}

	ino, found, err := fs.resolve(ctx, path)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}

	attrs, exists, err := fs.meta.Read(ctx, ino)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	if attrs.Type == inode.Dir {
		return ErrNotFound
	}

	var data []byte
	if newSize > 0 {
		if int64(attrs.Size) > 0 {
			data, err = fs.store.GetRange(ctx, fs.codec.AttrKey(ino, keyspace.AttrData), 0, int64(attrs.Size)-1)
			if err != nil {
				return err
			}
		}
		if uint64(len(data)) > newSize {
			data = data[:newSize]
		} else if uint64(len(data)) < newSize {
			data = append(data, make([]byte, newSize-uint64(len(data)))...)
		}
	}

	p := fs.store.Pipeline()
	p.Set(fs.codec.AttrKey(ino, keyspace.AttrData), data)
	p.Set(fs.codec.AttrKey(ino, keyspace.AttrSize), inode.FormatUint(newSize))
	p.Set(fs.codec.AttrKey(ino, keyspace.AttrMtime), inode.FormatUnix(now()))
	if err := p.Drain(ctx); err != nil {
		return fmt.Errorf("truncate %s: %w", path, err)
	}
	return nil
}

// Rename moves an entry from old to new, updating only its NAME
// attribute and its membership in the two parents' directory-entry
// sets. It does not recurse into children: because descendants'
// directory sets never reference a path, only an inode number,
// subtree paths continue to resolve correctly after the rename (spec
// §4.6 rename). A destination that already exists is rejected with
// ErrExists — the resolution of spec §9's open question (see
// DESIGN.md).
func (fs *FS) Rename(ctx context.Context, oldPath, newPath string) error {
	fs.lock(ctx)
	defer fs.mu.Unlock()

	if err := fs.checkWritable(); err != nil {
		return err
	}

	ino, found, err := fs.resolve(ctx, oldPath)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}

	if _, exists, err := fs.resolve(ctx, newPath); err != nil {
		return err
	} else if exists {
		return ErrExists
	}

	oldParentPath, _, ok := splitPath(oldPath)
	if !ok {
		return ErrNotFound
	}
	newParentPath, newName, ok := splitPath(newPath)
	if !ok {
		return ErrNotFound
	}

	oldParentIno, found, err := fs.resolve(ctx, oldParentPath)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	newParentIno, found, err := fs.resolve(ctx, newParentPath)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}

	p := fs.store.Pipeline()
	p.Set(fs.codec.AttrKey(ino, keyspace.AttrName), []byte(newName))
	p.SRem(fs.codec.DirentKey(oldParentIno), inode.FormatInode(ino))
	p.SAdd(fs.codec.DirentKey(newParentIno), inode.FormatInode(ino))
	if err := p.Drain(ctx); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", oldPath, newPath, err)
	}
	return nil
}
