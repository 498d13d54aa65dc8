package tree

import "github.com/qwtsc/yarb-tree/lib/infra"

var _ RBNode[int, struct{}] = rbNodeView[int, struct{}]{}

// rbNodeView is a handle of (tree, index). Comparable, two views
// of the same node are equal.
type rbNodeView[K infra.OrderedKey, V any] struct {
	tree *rbTree[K, V]
	ref  nodeRef
}

func (tree *rbTree[K, V]) view(ref nodeRef) RBNode[K, V] {
	if ref == nilRef {
		return nil
	}
	return rbNodeView[K, V]{tree: tree, ref: ref}
}

func (v rbNodeView[K, V]) Key() K {
	return v.tree.node(v.ref).key
}

func (v rbNodeView[K, V]) Val() V {
	return v.tree.node(v.ref).val
}

func (v rbNodeView[K, V]) Color() RBColor {
	return v.tree.node(v.ref).color
}

func (v rbNodeView[K, V]) Left() RBNode[K, V] {
	return v.tree.view(v.tree.node(v.ref).left)
}

func (v rbNodeView[K, V]) Right() RBNode[K, V] {
	return v.tree.view(v.tree.node(v.ref).right)
}

func (v rbNodeView[K, V]) Parent() RBNode[K, V] {
	return v.tree.view(v.tree.node(v.ref).parent)
}
