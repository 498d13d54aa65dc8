package tree

import (
	"math"

	"github.com/qwtsc/yarb-tree/lib/infra"
)

// nodeRef is the index of a node in the arena.
// The slot 0 is reserved as the nil leaf, so the zero value of any
// link means "absent" and every link is freely copyable.
type nodeRef uint32

const nilRef nodeRef = 0

type rbNode[K infra.OrderedKey, V any] struct {
	parent nodeRef
	left   nodeRef
	right  nodeRef
	key    K
	val    V
	color  RBColor
}

// rbArena owns every node of a tree. The nodes are addressed by
// index instead of pointer, parent links are plain indices as well.
// Removed slots are recycled by a LIFO free list.
//
// A *rbNode returned by at() is invalidated by the next alloc(),
// the backing slice may grow.
type rbArena[K infra.OrderedKey, V any] struct {
	nodes []rbNode[K, V]
	free  []nodeRef
}

func newRBArena[K infra.OrderedKey, V any](capacity int) *rbArena[K, V] {
	if capacity < 0 {
		capacity = 0
	}
	arena := &rbArena[K, V]{
		nodes: make([]rbNode[K, V], 1, capacity+1), // nil leaf at 0
	}
	arena.nodes[nilRef].color = Black
	return arena
}

func (arena *rbArena[K, V]) at(ref nodeRef) *rbNode[K, V] {
	return &arena.nodes[ref]
}

func (arena *rbArena[K, V]) alloc(key K, val V, color RBColor, parent nodeRef) nodeRef {
	var ref nodeRef
	if l := len(arena.free); l > 0 {
		ref = arena.free[l-1]
		arena.free = arena.free[:l-1]
	} else {
		if uint64(len(arena.nodes)) > math.MaxUint32 {
			// impossible run to here
			panic( /* debug assertion */ "[rbtree] arena exhausted")
		}
		ref = nodeRef(len(arena.nodes))
		arena.nodes = append(arena.nodes, rbNode[K, V]{})
	}
	arena.nodes[ref] = rbNode[K, V]{
		parent: parent,
		key:    key,
		val:    val,
		color:  color,
	}
	return ref
}

// release clears the slot so the key and value can be collected.
func (arena *rbArena[K, V]) release(ref nodeRef) {
	if ref == nilRef {
		return
	}
	arena.nodes[ref] = rbNode[K, V]{}
	arena.free = append(arena.free, ref)
}

func (arena *rbArena[K, V]) reset() {
	clear(arena.nodes)
	arena.nodes = arena.nodes[:1]
	arena.nodes[nilRef].color = Black
	arena.free = arena.free[:0]
}

// live is the number of allocated and not released nodes.
func (arena *rbArena[K, V]) live() int {
	return len(arena.nodes) - 1 - len(arena.free)
}
