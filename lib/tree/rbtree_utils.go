package tree

import (
	"strconv"

	"go.uber.org/multierr"

	"github.com/qwtsc/yarb-tree/lib/infra"
)

func isBlack[K infra.OrderedKey, V any](node RBNode[K, V]) bool {
	return node == nil || node.Color() == Black
}

func isRed[K infra.OrderedKey, V any](node RBNode[K, V]) bool {
	return node != nil && node.Color() == Red
}

// rbtree rule validation utilities.
// They only walk the read-only node views, so any RBTree
// implementation can be checked. Debug and test usage only.

// References:
// https://github1s.com/minghu6/rust-minghu6/blob/master/coll_st/src/bst/rb.rs

func preorder[K infra.OrderedKey, V any](tree RBTree[K, V], fn func(node RBNode[K, V]) error) error {
	root := tree.Root()
	if root == nil {
		return nil
	}
	stack := make([]RBNode[K, V], 0, 64)
	stack = append(stack, root)
	for len(stack) > 0 {
		aux := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if err := fn(aux); err != nil {
			return err
		}
		if r := aux.Right(); r != nil {
			stack = append(stack, r)
		}
		if l := aux.Left(); l != nil {
			stack = append(stack, l)
		}
	}
	return nil
}

func RootColorValidate[K infra.OrderedKey, V any](tree RBTree[K, V]) error {
	root := tree.Root()
	if root == nil {
		if tree.Len() != 0 {
			return infra.NewErrorStack("rbtree nil root with " + strconv.FormatInt(tree.Len(), 10) + " elements")
		}
		return nil
	}
	if isRed[K, V](root) {
		return infra.NewErrorStack("rbtree red root")
	}
	return nil
}

func RedViolationValidate[K infra.OrderedKey, V any](tree RBTree[K, V]) error {
	return preorder[K, V](tree, func(node RBNode[K, V]) error {
		if isRed[K, V](node) && (isRed[K, V](node.Left()) || isRed[K, V](node.Right())) {
			return infra.NewErrorStack("rbtree red violation")
		}
		return nil
	})
}

// blackHeight counts the black nodes down to the nil leaves,
// the nil leaf itself included. -1 means the subtree is unbalanced.
func blackHeight[K infra.OrderedKey, V any](node RBNode[K, V]) int {
	if node == nil {
		return 1
	}
	l := blackHeight[K, V](node.Left())
	if l < 0 {
		return -1
	}
	r := blackHeight[K, V](node.Right())
	if r < 0 || l != r {
		return -1
	}
	if isBlack[K, V](node) {
		return l + 1
	}
	return l
}

/*
<X> is a RED node.
[X] is a BLACK node (or NIL).

	        [13]
			/  \
		 <8>    [15]
		 / \    /  \
	  [6] [11] [14] [17]
	  /              /
	<1>            <16>

Each leaf node to root node black depth are equal.
*/
func BlackViolationValidate[K infra.OrderedKey, V any](tree RBTree[K, V]) error {
	if blackHeight[K, V](tree.Root()) < 0 {
		return infra.NewErrorStack("rbtree black violation")
	}
	return nil
}

// OrderViolationValidate checks the in-order keys are strictly
// increasing under cmp.
func OrderViolationValidate[K infra.OrderedKey, V any](tree RBTree[K, V], cmp infra.OrderedKeyComparator[K]) error {
	var (
		prev    K
		hasPrev bool
	)
	stack := make([]RBNode[K, V], 0, 64)
	for aux := tree.Root(); aux != nil; aux = aux.Left() {
		stack = append(stack, aux)
	}
	for len(stack) > 0 {
		aux := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if hasPrev && cmp(prev, aux.Key()) >= 0 {
			return infra.NewErrorStack("rbtree order violation")
		}
		prev, hasPrev = aux.Key(), true
		for aux = aux.Right(); aux != nil; aux = aux.Left() {
			stack = append(stack, aux)
		}
	}
	return nil
}

// LinkViolationValidate checks each child links back to its parent
// and the reachable nodes match the tree length.
func LinkViolationValidate[K infra.OrderedKey, V any](tree RBTree[K, V]) error {
	if root := tree.Root(); root != nil && root.Parent() != nil {
		return infra.NewErrorStack("rbtree root with parent")
	}
	reachable := int64(0)
	err := preorder[K, V](tree, func(node RBNode[K, V]) error {
		reachable++
		if l := node.Left(); l != nil && l.Parent() != node {
			return infra.NewErrorStack("rbtree left link violation")
		}
		if r := node.Right(); r != nil && r.Parent() != node {
			return infra.NewErrorStack("rbtree right link violation")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if reachable != tree.Len() {
		return infra.NewErrorStack("rbtree length violation, reachable " +
			strconv.FormatInt(reachable, 10) + ", len " + strconv.FormatInt(tree.Len(), 10))
	}
	return nil
}

// Validate runs all the rule validations and combines the violations.
func Validate[K infra.OrderedKey, V any](tree RBTree[K, V]) error {
	cmp := infra.AscComparator[K]
	if t, ok := tree.(*rbTree[K, V]); ok {
		cmp = t.keyCompare
	}
	return multierr.Combine(
		RootColorValidate[K, V](tree),
		RedViolationValidate[K, V](tree),
		BlackViolationValidate[K, V](tree),
		OrderViolationValidate[K, V](tree, cmp),
		LinkViolationValidate[K, V](tree),
	)
}
