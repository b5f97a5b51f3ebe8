package hanwen

import (
	"context"
	"errors"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/skx-redisfs/redisfs/internal/inode"
	"github.com/skx-redisfs/redisfs/vfs"
)

// FS bridges go-fuse's low-level, node-ID-based RawFileSystem
// interface to vfs.FS's path-based operations. Every callback
// resolves its node ID(s) back to a path and forwards; vfs.FS owns
// every other aspect of consistency (spec §4.6, §5).
type FS struct {
	fs *vfs.FS

	nodes *NodeMap
	hs    *HandlerMap

	logger *zap.Logger
}

type Config struct {
	FileSystem *vfs.FS
	MountPoint string

	Logger *zap.Logger
}

func New(cfg *Config) (srv *fuse.Server, err error) {
	fuseFS := &FS{
		fs: cfg.FileSystem,

		nodes: NewNodeMap(),
		hs:    NewHandlerMap(),

		logger: cfg.Logger,
	}

	if fuseFS.logger == nil {
		fuseFS.logger, _ = zap.NewDevelopment()
	}

	return fuse.NewServer(fuseFS, cfg.MountPoint, &fuse.MountOptions{
		AllowOther:     true,
		SingleThreaded: false,
		Debug:          false,
		EnableLocks:    false,
	})
}

// fillEntryOut and fillAttrOut take nodeID explicitly rather than
// deriving it from s.Ino: the root inode's Stat.Ino is the keyspace
// sentinel (spec §3.1), not a kernel-facing node ID, so the caller's
// already-known node ID (input.NodeId, or the ID just registered in
// NodeMap) is always the authoritative one.
func fillEntryOut(nodeID uint64, s *vfs.Stat, out *fuse.EntryOut) {
	out.SetAttrTimeout(0)
	out.SetEntryTimeout(0)

	out.NodeId = nodeID
	out.Generation = 1
	fillAttr(nodeID, s, &out.Attr)
}

func fillAttrOut(nodeID uint64, s *vfs.Stat, out *fuse.AttrOut) {
	out.SetTimeout(0)
	fillAttr(nodeID, s, &out.Attr)
}

func fillAttr(nodeID uint64, s *vfs.Stat, a *fuse.Attr) {
	a.Ino = nodeID
	a.Size = s.Size
	a.Blocks = (s.Size + 511) / 512
	a.Blksize = BlockSize
	a.Mode = s.Mode
	a.Nlink = s.Nlink
	a.Uid = s.UID
	a.Gid = s.GID
	a.SetTimes(&s.Atime, &s.Mtime, &s.Ctime)
}

func fillOpenOut(fh *Handler, out *fuse.OpenOut) {
	out.Fh = fh.id
}

// parseError maps a vfs sentinel error to the fuse.Status the kernel
// expects, mirroring the teacher's parseError (spec §7).
func parseError(err error) fuse.Status {
	switch {
	case err == nil:
		return fuse.OK
	case errors.Is(err, vfs.ErrNotFound):
		return fuse.ENOENT
	case errors.Is(err, vfs.ErrNotEmpty):
		return fuse.Status(syscall.ENOTEMPTY)
	case errors.Is(err, vfs.ErrReadOnly):
		return fuse.EPERM
	case errors.Is(err, vfs.ErrExists):
		return fuse.Status(syscall.EEXIST)
	case errors.Is(err, vfs.ErrIsDirectory):
		return fuse.EISDIR
	default:
		return fuse.EIO
	}
}

func (fs *FS) String() string {
	return "redisfs"
}

func (fs *FS) SetDebug(debug bool) {}

func (fs *FS) nodePath(nodeID uint64) (string, bool) {
	n, ok := fs.nodes.Get(nodeID)
	if !ok {
		return "", false
	}
	return n.Path(), true
}

func (fs *FS) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	parent, ok := fs.nodePath(header.NodeId)
	if !ok {
		fs.logger.Error("parent node not found", zap.Uint64("parent", header.NodeId))
		return fuse.ENOENT
	}

	path := joinPath(parent, name)
	stat, err := fs.fs.Getattr(context.Background(), path, header.Caller.Uid, header.Caller.Gid)
	if err != nil {
		return parseError(err)
	}

	nodeID := uint64(stat.Ino)
	fs.nodes.New(path, nodeID)
	fillEntryOut(nodeID, stat, out)
	return fuse.OK
}

func (fs *FS) Forget(nodeid, nlookup uint64) {
	fs.nodes.Del(nodeid)
}

func (fs *FS) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	path, ok := fs.nodePath(input.NodeId)
	if !ok {
		fs.logger.Error("node not found", zap.Uint64("node", input.NodeId))
		return fuse.ENOENT
	}

	stat, err := fs.fs.Getattr(context.Background(), path, input.Caller.Uid, input.Caller.Gid)
	if err != nil {
		return parseError(err)
	}
	fillAttrOut(input.NodeId, stat, out)
	return fuse.OK
}

func (fs *FS) SetAttr(cancel <-chan struct{}, input *fuse.SetAttrIn, out *fuse.AttrOut) fuse.Status {
	path, ok := fs.nodePath(input.NodeId)
	if !ok {
		fs.logger.Error("node not found", zap.Uint64("node", input.NodeId))
		return fuse.ENOENT
	}

	ctx := context.Background()

	if input.Valid&fuse.FATTR_MODE != 0 {
		if err := fs.fs.Chmod(ctx, path, input.Mode); err != nil {
			return parseError(err)
		}
	}

	if input.Valid&(fuse.FATTR_UID|fuse.FATTR_GID) != 0 {
		var uid, gid *uint32
		if input.Valid&fuse.FATTR_UID != 0 {
			u := input.Uid
			uid = &u
		}
		if input.Valid&fuse.FATTR_GID != 0 {
			g := input.Gid
			gid = &g
		}
		if err := fs.fs.Chown(ctx, path, uid, gid); err != nil {
			return parseError(err)
		}
	}

	if input.Valid&fuse.FATTR_SIZE != 0 {
		if err := fs.fs.Truncate(ctx, path, input.Size); err != nil {
			return parseError(err)
		}
	}

	if input.Valid&(fuse.FATTR_ATIME|fuse.FATTR_MTIME) != 0 {
		var atime, mtime *time.Time
		if input.Valid&fuse.FATTR_ATIME != 0 {
			t := time.Unix(int64(input.Atime), int64(input.Atimensec))
			atime = &t
		}
		if input.Valid&fuse.FATTR_MTIME != 0 {
			t := time.Unix(int64(input.Mtime), int64(input.Mtimensec))
			mtime = &t
		}
		if err := fs.fs.Utimens(ctx, path, atime, mtime); err != nil {
			return parseError(err)
		}
	}

	stat, err := fs.fs.Getattr(ctx, path, input.Caller.Uid, input.Caller.Gid)
	if err != nil {
		return parseError(err)
	}
	fillAttrOut(input.NodeId, stat, out)
	return fuse.OK
}

func (fs *FS) Mknod(cancel <-chan struct{}, input *fuse.MknodIn, name string, out *fuse.EntryOut) fuse.Status {
	_, status := fs.createCommon(input.NodeId, name, input.Mode, input.Caller.Uid, input.Caller.Gid, out)
	return status
}

func (fs *FS) Mkdir(cancel <-chan struct{}, input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	parent, ok := fs.nodePath(input.NodeId)
	if !ok {
		fs.logger.Error("parent node not found", zap.Uint64("parent", input.NodeId))
		return fuse.ENOENT
	}

	path := joinPath(parent, name)
	stat, err := fs.fs.Mkdir(context.Background(), path, input.Mode, input.Caller.Uid, input.Caller.Gid)
	if err != nil {
		return parseError(err)
	}

	nodeID := uint64(stat.Ino)
	fs.nodes.New(path, nodeID)
	fillEntryOut(nodeID, stat, out)
	return fuse.OK
}

// createCommon runs Create and registers the resulting node, returning
// the new path so callers that also need to open a handle (Create,
// unlike Mknod, opens the file it creates) don't have to look the node
// back up by ID.
func (fs *FS) createCommon(parentID uint64, name string, mode, uid, gid uint32, out *fuse.EntryOut) (string, fuse.Status) {
	parent, ok := fs.nodePath(parentID)
	if !ok {
		fs.logger.Error("parent node not found", zap.Uint64("parent", parentID))
		return "", fuse.ENOENT
	}

	path := joinPath(parent, name)
	stat, err := fs.fs.Create(context.Background(), path, mode, uid, gid)
	if err != nil {
		return "", parseError(err)
	}

	nodeID := uint64(stat.Ino)
	fs.nodes.New(path, nodeID)
	fillEntryOut(nodeID, stat, out)
	return path, fuse.OK
}

func (fs *FS) Unlink(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	parent, ok := fs.nodePath(header.NodeId)
	if !ok {
		fs.logger.Error("parent node not found", zap.Uint64("parent", header.NodeId))
		return fuse.ENOENT
	}

	path := joinPath(parent, name)
	if err := fs.fs.Unlink(context.Background(), path); err != nil {
		return parseError(err)
	}
	return fuse.OK
}

func (fs *FS) Rmdir(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	parent, ok := fs.nodePath(header.NodeId)
	if !ok {
		fs.logger.Error("parent node not found", zap.Uint64("parent", header.NodeId))
		return fuse.ENOENT
	}

	path := joinPath(parent, name)
	if err := fs.fs.Rmdir(context.Background(), path); err != nil {
		return parseError(err)
	}
	return fuse.OK
}

func (fs *FS) Rename(cancel <-chan struct{}, input *fuse.RenameIn, oldName string, newName string) fuse.Status {
	oldParent, ok := fs.nodePath(input.NodeId)
	if !ok {
		fs.logger.Error("old parent node not found", zap.Uint64("parent", input.NodeId))
		return fuse.ENOENT
	}
	newParent, ok := fs.nodePath(input.Newdir)
	if !ok {
		fs.logger.Error("new parent node not found", zap.Uint64("parent", input.Newdir))
		return fuse.ENOENT
	}

	oldPath := joinPath(oldParent, oldName)
	newPath := joinPath(newParent, newName)
	if err := fs.fs.Rename(context.Background(), oldPath, newPath); err != nil {
		return parseError(err)
	}
	return fuse.OK
}

func (fs *FS) Link(cancel <-chan struct{}, input *fuse.LinkIn, filename string, out *fuse.EntryOut) fuse.Status {
	return fuse.ENOSYS
}

func (fs *FS) Symlink(cancel <-chan struct{}, header *fuse.InHeader, pointedTo string, linkName string, out *fuse.EntryOut) fuse.Status {
	parent, ok := fs.nodePath(header.NodeId)
	if !ok {
		fs.logger.Error("parent node not found", zap.Uint64("parent", header.NodeId))
		return fuse.ENOENT
	}

	path := joinPath(parent, linkName)
	stat, err := fs.fs.Symlink(context.Background(), pointedTo, path, header.Caller.Uid, header.Caller.Gid)
	if err != nil {
		return parseError(err)
	}

	nodeID := uint64(stat.Ino)
	fs.nodes.New(path, nodeID)
	fillEntryOut(nodeID, stat, out)
	return fuse.OK
}

func (fs *FS) Readlink(cancel <-chan struct{}, header *fuse.InHeader) ([]byte, fuse.Status) {
	path, ok := fs.nodePath(header.NodeId)
	if !ok {
		fs.logger.Error("node not found", zap.Uint64("node", header.NodeId))
		return nil, fuse.ENOENT
	}

	target, err := fs.fs.Readlink(context.Background(), path)
	if err != nil {
		return nil, parseError(err)
	}
	return []byte(target), fuse.OK
}

func (fs *FS) Access(cancel <-chan struct{}, input *fuse.AccessIn) fuse.Status {
	path, ok := fs.nodePath(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	if err := fs.fs.Access(context.Background(), path); err != nil {
		return parseError(err)
	}
	return fuse.OK
}

func (fs *FS) GetXAttr(cancel <-chan struct{}, header *fuse.InHeader, attr string, dest []byte) (uint32, fuse.Status) {
	return 0, fuse.ENOSYS
}

func (fs *FS) ListXAttr(cancel <-chan struct{}, header *fuse.InHeader, dest []byte) (uint32, fuse.Status) {
	return 0, fuse.ENOSYS
}

func (fs *FS) SetXAttr(cancel <-chan struct{}, input *fuse.SetXAttrIn, attr string, data []byte) fuse.Status {
	return fuse.ENOSYS
}

func (fs *FS) RemoveXAttr(cancel <-chan struct{}, header *fuse.InHeader, attr string) fuse.Status {
	return fuse.ENOSYS
}

func (fs *FS) Create(cancel <-chan struct{}, input *fuse.CreateIn, name string, out *fuse.CreateOut) fuse.Status {
	path, status := fs.createCommon(input.NodeId, name, input.Mode, input.Caller.Uid, input.Caller.Gid, &out.EntryOut)
	if status != fuse.OK {
		return status
	}

	fh := fs.hs.NewFile(path)
	fillOpenOut(fh, &out.OpenOut)
	return fuse.OK
}

func (fs *FS) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	path, ok := fs.nodePath(input.NodeId)
	if !ok {
		fs.logger.Error("node not found", zap.Uint64("node", input.NodeId))
		return fuse.ENOENT
	}

	if err := fs.fs.Open(context.Background(), path); err != nil {
		return parseError(err)
	}

	fh := fs.hs.NewFile(path)
	fillOpenOut(fh, out)
	return fuse.OK
}

func (fs *FS) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	h, ok := fs.hs.Get(input.Fh)
	if !ok {
		fs.logger.Error("file handle not found", zap.Uint64("handle", input.Fh))
		return nil, fuse.ENOENT
	}

	data, err := fs.fs.Read(context.Background(), h.path, len(buf), int64(input.Offset))
	if err != nil {
		return nil, parseError(err)
	}
	return fuse.ReadResultData(data), fuse.OK
}

func (fs *FS) Lseek(cancel <-chan struct{}, in *fuse.LseekIn, out *fuse.LseekOut) fuse.Status {
	return fuse.ENOSYS
}

func (fs *FS) GetLk(cancel <-chan struct{}, input *fuse.LkIn, out *fuse.LkOut) fuse.Status {
	return fuse.ENOSYS
}

func (fs *FS) SetLk(cancel <-chan struct{}, input *fuse.LkIn) fuse.Status {
	return fuse.ENOSYS
}

func (fs *FS) SetLkw(cancel <-chan struct{}, input *fuse.LkIn) fuse.Status {
	return fuse.ENOSYS
}

func (fs *FS) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {
	_, deleted := fs.hs.Del(input.Fh)
	if !deleted {
		fs.logger.Warn("file handle not found", zap.Uint64("handle", input.Fh))
	}
}

func (fs *FS) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	h, ok := fs.hs.Get(input.Fh)
	if !ok {
		fs.logger.Error("file handle not found", zap.Uint64("handle", input.Fh))
		return 0, fuse.ENOENT
	}

	n, err := fs.fs.Write(context.Background(), h.path, data, int64(input.Offset))
	if err != nil {
		return uint32(n), parseError(err)
	}
	return uint32(n), fuse.OK
}

func (fs *FS) CopyFileRange(cancel <-chan struct{}, input *fuse.CopyFileRangeIn) (uint32, fuse.Status) {
	return 0, fuse.ENOSYS
}

func (fs *FS) Flush(cancel <-chan struct{}, input *fuse.FlushIn) fuse.Status {
	_, ok := fs.hs.Get(input.Fh)
	if !ok {
		fs.logger.Error("file handle not found", zap.Uint64("handle", input.Fh))
		return fuse.ENOENT
	}
	return fuse.OK
}

func (fs *FS) Fsync(cancel <-chan struct{}, input *fuse.FsyncIn) fuse.Status {
	return fuse.OK
}

func (fs *FS) Fallocate(cancel <-chan struct{}, input *fuse.FallocateIn) fuse.Status {
	return fuse.OK
}

func (fs *FS) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	path, ok := fs.nodePath(input.NodeId)
	if !ok {
		fs.logger.Error("node not found", zap.Uint64("node", input.NodeId))
		return fuse.ENOENT
	}

	entries, err := fs.fs.Readdir(context.Background(), path)
	if err != nil {
		return parseError(err)
	}

	fh := fs.hs.NewDir(path, entries)
	fillOpenOut(fh, out)
	return fuse.OK
}

func (fs *FS) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	h, ok := fs.hs.Get(input.Fh)
	if !ok {
		fs.logger.Error("file handle not found", zap.Uint64("handle", input.Fh))
		return fuse.ENOENT
	}

	for i := int(input.Offset); i < len(h.entries); i++ {
		e := h.entries[i]
		ok := out.AddDirEntry(fuse.DirEntry{
			Mode: dirEntryMode(e.Type),
			Name: e.Name,
			Ino:  uint64(e.Ino),
		})
		if !ok {
			break
		}
	}
	return fuse.OK
}

func (fs *FS) ReadDirPlus(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	h, ok := fs.hs.Get(input.Fh)
	if !ok {
		fs.logger.Error("file handle not found", zap.Uint64("handle", input.Fh))
		return fuse.ENOENT
	}

	for i := int(input.Offset); i < len(h.entries); i++ {
		e := h.entries[i]
		entry := out.AddDirLookupEntry(fuse.DirEntry{
			Mode: dirEntryMode(e.Type),
			Name: e.Name,
			Ino:  uint64(e.Ino),
		})
		if entry == nil {
			break
		}
		if e.Name == "." || e.Name == ".." {
			// No real inode to look up; leave NodeId zero so the
			// kernel doesn't bump a lookup count for it.
			continue
		}

		nodeID := uint64(e.Ino)
		fs.nodes.New(joinPath(h.path, e.Name), nodeID)
		entry.NodeId = nodeID
		entry.Generation = 1
	}
	return fuse.OK
}

func (fs *FS) ReleaseDir(input *fuse.ReleaseIn) {
	_, deleted := fs.hs.Del(input.Fh)
	if !deleted {
		fs.logger.Warn("file handle not found", zap.Uint64("handle", input.Fh))
	}
}

func (fs *FS) FsyncDir(cancel <-chan struct{}, input *fuse.FsyncIn) fuse.Status {
	return fuse.OK
}

func (fs *FS) StatFs(cancel <-chan struct{}, input *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	out.Bsize = BlockSize
	out.Blocks = MaximumBlocks
	out.Bfree = MaximumBlocks
	out.Bavail = MaximumBlocks
	out.Files = MaximumInodes
	out.Ffree = MaximumInodes
	return fuse.OK
}

func (fs *FS) Init(server *fuse.Server) {
	fs.nodes.Init()
}

func dirEntryMode(t inode.Type) uint32 {
	switch t {
	case inode.Dir:
		return fuse.S_IFDIR
	case inode.Link:
		return fuse.S_IFLNK
	default:
		return fuse.S_IFREG
	}
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
