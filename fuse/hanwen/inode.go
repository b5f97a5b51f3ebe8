package hanwen

import (
	"sync"
)

// Node binds a FUSE node ID to the path it currently names. Apart
// from the root (registered by Init), the node ID is the backing
// store's own inode number (spec §4.4's allocator) — the kernel
// bridge never mints its own IDs, so a node is a cache of "what path
// does this inode currently name", not an independent ID space
// layered on top (see the NodeMap note under "Implementation notes
// from final review" in DESIGN.md).
type Node struct {
	path string
	id   uint64
}

func (n *Node) Path() string {
	return n.path
}

type NodeMap struct {
	m map[uint64]*Node
	l sync.Mutex
}

func NewNodeMap() *NodeMap {
	return &NodeMap{
		m: make(map[uint64]*Node),
	}
}

// Init registers the root node as ID 1, the value go-fuse's raw
// protocol reserves for it. vfs.FS's own root is the sentinel
// keyspace.RootInode, which has no attribute keys.
func (m *NodeMap) Init() {
	m.m[1] = &Node{path: "/", id: 1}
}

// New registers path under its inode ID.
func (m *NodeMap) New(path string, id uint64) *Node {
	m.l.Lock()
	defer m.l.Unlock()

	n := &Node{path: path, id: id}
	m.m[id] = n
	return n
}

func (m *NodeMap) Get(id uint64) (*Node, bool) {
	m.l.Lock()
	defer m.l.Unlock()

	n, ok := m.m[id]
	return n, ok
}

func (m *NodeMap) Del(id uint64) {
	m.l.Lock()
	defer m.l.Unlock()

	delete(m.m, id)
}
