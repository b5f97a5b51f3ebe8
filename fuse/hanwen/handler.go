package hanwen

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/skx-redisfs/redisfs/vfs"
)

// Handler is an open file or directory handle. Directories snapshot
// their entry list at OpenDir time — the filesystem takes the global
// lock per vfs call, not for the lifetime of the handle, so a
// directory listing is a point-in-time view rather than a live cursor
// (spec §5, §9).
type Handler struct {
	path  string
	isDir bool

	entries []vfs.DirEntry

	id uint64
}

type HandlerMap struct {
	m    map[uint64]*Handler
	l    sync.Mutex
	free *atomic.Uint64
}

func NewHandlerMap() *HandlerMap {
	return &HandlerMap{
		m:    make(map[uint64]*Handler),
		free: atomic.NewUint64(1),
	}
}

func (m *HandlerMap) NewFile(path string) *Handler {
	h := &Handler{path: path}
	m.set(h)
	return h
}

func (m *HandlerMap) NewDir(path string, entries []vfs.DirEntry) *Handler {
	h := &Handler{path: path, isDir: true, entries: entries}
	m.set(h)
	return h
}

func (m *HandlerMap) set(h *Handler) {
	m.l.Lock()
	defer m.l.Unlock()

	h.id = m.free.Inc()
	m.m[h.id] = h
}

func (m *HandlerMap) Get(fh uint64) (*Handler, bool) {
	m.l.Lock()
	defer m.l.Unlock()

	h, ok := m.m[fh]
	return h, ok
}

func (m *HandlerMap) Del(fh uint64) (*Handler, bool) {
	m.l.Lock()
	defer m.l.Unlock()

	h, ok := m.m[fh]
	if ok {
		delete(m.m, fh)
	}
	return h, ok
}
