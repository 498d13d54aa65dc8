package tree

import (
	"go.uber.org/multierr"

	"github.com/qwtsc/yarb-tree/lib/infra"
)

type rbTree[K infra.OrderedKey, V any] struct {
	arena          *rbArena[K, V]
	root           nodeRef
	count          int64
	isDesc         bool
	isRmBorrowSucc bool
}

func (tree *rbTree[K, V]) keyCompare(k1, k2 K) int64 {
	if !tree.isDesc {
		return infra.AscComparator[K](k1, k2)
	}
	return infra.DescComparator[K](k1, k2)
}

func (tree *rbTree[K, V]) node(ref nodeRef) *rbNode[K, V] {
	return tree.arena.at(ref)
}

func (tree *rbTree[K, V]) isRed(ref nodeRef) bool {
	return ref != nilRef && tree.node(ref).color == Red
}

// All nil leaves are considered black.
func (tree *rbTree[K, V]) isBlack(ref nodeRef) bool {
	return !tree.isRed(ref)
}

func (tree *rbTree[K, V]) direction(ref nodeRef) RBDirection {
	if ref == nilRef {
		// impossible run to here
		panic( /* debug assertion */ "[rbtree] nil leaf node without direction")
	}
	p := tree.node(ref).parent
	if p == nilRef {
		return Root
	}
	if tree.node(p).left == ref {
		return Left
	}
	return Right
}

func (tree *rbTree[K, V]) sibling(ref nodeRef) nodeRef {
	p := tree.node(ref).parent
	switch tree.direction(ref) {
	case Left:
		return tree.node(p).right
	case Right:
		return tree.node(p).left
	default:
	}
	return nilRef
}

// replaceChild rewires the owning link of old (under parent p, or the
// root link) to the new node. The parent link of new is not touched.
func (tree *rbTree[K, V]) replaceChild(p, old, new nodeRef) {
	if p == nilRef {
		tree.root = new
		return
	}
	if pn := tree.node(p); pn.left == old {
		pn.left = new
	} else {
		pn.right = new
	}
}

func (tree *rbTree[K, V]) minimum(ref nodeRef) nodeRef {
	for ref != nilRef && tree.node(ref).left != nilRef {
		ref = tree.node(ref).left
	}
	return ref
}

func (tree *rbTree[K, V]) maximum(ref nodeRef) nodeRef {
	for ref != nilRef && tree.node(ref).right != nilRef {
		ref = tree.node(ref).right
	}
	return ref
}

func (tree *rbTree[K, V]) search(key K) nodeRef {
	for aux := tree.root; aux != nilRef; {
		n := tree.node(aux)
		res := tree.keyCompare(key, n.key)
		if res == 0 {
			return aux
		} else if res < 0 {
			aux = n.left
		} else {
			aux = n.right
		}
	}
	return nilRef
}

func (tree *rbTree[K, V]) Len() int64 {
	return tree.count
}

func (tree *rbTree[K, V]) IsEmpty() bool {
	return tree.count == 0
}

func (tree *rbTree[K, V]) Root() RBNode[K, V] {
	return tree.view(tree.root)
}

// Height counts the nodes on the longest root to leaf path.
// Guaranteed by the properties below: height <= 2*log2(n+1).
func (tree *rbTree[K, V]) Height() int {
	if tree.root == nilRef {
		return 0
	}
	type level struct {
		ref   nodeRef
		depth int
	}
	height := 0
	stack := make([]level, 0, 64)
	stack = append(stack, level{tree.root, 1})
	for len(stack) > 0 {
		aux := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if aux.depth > height {
			height = aux.depth
		}
		n := tree.node(aux.ref)
		if n.left != nilRef {
			stack = append(stack, level{n.left, aux.depth + 1})
		}
		if n.right != nilRef {
			stack = append(stack, level{n.right, aux.depth + 1})
		}
	}
	return height
}

// References:
// https://elixir.bootlin.com/linux/latest/source/lib/rbtree.c
// rbtree properties:
// https://en.wikipedia.org/wiki/Red%E2%80%93black_tree#Properties
// p1. Every node is either red or black.
// p2. All NIL nodes are considered black.
// p3. A red node does not have a red child. (red-violation)
// p4. Every path from a given node to any of its descendant
//   NIL nodes goes through the same number of black nodes. (black-violation)
// p5. The root is black.
// (Conclusion) If a node X has exactly one child, it must be a red child,
//   because if it were black, its NIL descendants would sit at a different
//   black depth than X's NIL child, violating p4.

/*
		 |                         |
		 X                         S
		/ \     leftRotate(X)     / \
	   L   S    ============>    X   Sd
		  / \                   / \
		Sc   Sd                L   Sc
*/
func (tree *rbTree[K, V]) leftRotate(x nodeRef) {
	if x == nilRef || tree.node(x).right == nilRef {
		// impossible run to here
		panic( /* debug assertion */ "[rbtree] left rotate node x is nil or x.right is nil")
	}

	xn := tree.node(x)
	y := xn.right
	yn := tree.node(y)
	p := xn.parent

	xn.right = yn.left
	if yn.left != nilRef {
		tree.node(yn.left).parent = x
	}
	tree.replaceChild(p, x, y)
	yn.parent = p
	yn.left = x
	xn.parent = y
}

/*
			 |                         |
			 X                         L
			/ \     rightRotate(X)    / \
	       L   R    ============>   Ld   X
		  / \                           / \
		Ld   Lc                        Lc  R
*/
func (tree *rbTree[K, V]) rightRotate(x nodeRef) {
	if x == nilRef || tree.node(x).left == nilRef {
		// impossible run to here
		panic( /* debug assertion */ "[rbtree] right rotate node x is nil or x.left is nil")
	}

	xn := tree.node(x)
	y := xn.left
	yn := tree.node(y)
	p := xn.parent

	xn.left = yn.right
	if yn.right != nilRef {
		tree.node(yn.right).parent = x
	}
	tree.replaceChild(p, x, y)
	yn.parent = p
	yn.right = x
	xn.parent = y
}

// locate runs the BST descent for key. If the key is present, found is
// its node. Otherwise parent is the node to attach under, and res tells
// the side (res < 0 left, res > 0 right).
func (tree *rbTree[K, V]) locate(key K) (found, parent nodeRef, res int64) {
	for x := tree.root; x != nilRef; {
		parent = x
		n := tree.node(x)
		if res = tree.keyCompare(key, n.key); res == 0 {
			return x, parent, 0
		} else if res < 0 {
			x = n.left
		} else {
			x = n.right
		}
	}
	return nilRef, parent, res
}

func (tree *rbTree[K, V]) attach(key K, val V, parent nodeRef, res int64) {
	if /* i1 */ parent == nilRef {
		tree.root = tree.arena.alloc(key, val, Black, nilRef)
		tree.count++
		return
	}

	z := tree.arena.alloc(key, val, Red, parent)
	if res < 0 {
		tree.node(parent).left = z
	} else {
		tree.node(parent).right = z
	}
	tree.count++
	tree.insertRebalance(z)
}

// Insert adds a new key. An existing key is rejected with ErrDuplicateKey
// and the tree stays untouched.
// i1: Empty rbtree, insert directly, but root node is painted to black.
func (tree *rbTree[K, V]) Insert(key K, val V) error {
	found, parent, res := tree.locate(key)
	if found != nilRef {
		return ErrDuplicateKey
	}
	tree.attach(key, val, parent, res)
	return nil
}

// Upsert inserts the key or replaces the value of the existing one.
func (tree *rbTree[K, V]) Upsert(key K, val V) (replaced bool) {
	found, parent, res := tree.locate(key)
	if found != nilRef {
		tree.node(found).val = val
		return true
	}
	tree.attach(key, val, parent, res)
	return false
}

// InsertAll inserts every key with the zero value. Duplicates don't stop
// the remaining keys, they are reported together at the end.
func (tree *rbTree[K, V]) InsertAll(keys ...K) error {
	var (
		merr error
		zero V
	)
	for _, key := range keys {
		if err := tree.Insert(key, zero); err != nil {
			merr = multierr.Append(merr, err)
		}
	}
	return merr
}

/*
New node X is red by default.

<X> is a RED node.
[X] is a BLACK node (or NIL).
{X} is either a RED node or a BLACK node.

im1: Current node X's parent P is black, nothing to fix.

im2: X reaches the root, repaint it into black after the loop.

im3: If both the parent P and the uncle U are red, grandpa G is black.
(red-violation)
After repainted G into red may be still red-violation.
Recursive to fix grandpa.

	    [G]             <G>
	    / \             / \
	  <P> <U>  ====>  [P] [U]
	  /               /
	<X>             <X>

im4: The parent P is red but the uncle U is black. (red-violation)
X is opposite direction to P. Rotate P to opposite direction.
After rotation may be still red-violation. Here must enter im5 to fix.

	  [G]                 [G]
	  / \    rotate(P)    / \
	<P> [U]  ========>  <X> [U]
	  \                 /
	  <X>             <P>

im5: Handle im4 scenario, current node is the same direction as parent.

	    [G]                 <P>               [P]
	    / \    rotate(G)    / \    repaint    / \
	  <P> [U]  ========>  <X> [G]  ======>  <X> <G>
	  /                         \                 \
	<X>                         [U]               [U]
*/
func (tree *rbTree[K, V]) insertRebalance(x nodeRef) {
	for {
		p := tree.node(x).parent
		if /* im1, im2 */ p == nilRef || tree.isBlack(p) {
			break
		}

		// A red parent is never the root, so the grandpa exists.
		g := tree.node(p).parent
		pDir := tree.direction(p)
		if u := tree.sibling(p); /* im3 */ tree.isRed(u) {
			tree.node(p).color = Black
			tree.node(u).color = Black
			tree.node(g).color = Red
			x = g
			continue
		}

		if /* im4 */ tree.direction(x) != pDir {
			switch pDir {
			case Left:
				tree.leftRotate(p)
			case Right:
				tree.rightRotate(p)
			default:
				// impossible run to here
				panic( /* debug assertion */ "[rbtree] insert violate (im4)")
			}
			x, p = p, x // enter im5 to fix
		}

		/* im5 */
		tree.node(p).color = Black
		tree.node(g).color = Red
		switch pDir {
		case Left:
			tree.rightRotate(g)
		case Right:
			tree.leftRotate(g)
		default:
			// impossible run to here
			panic( /* debug assertion */ "[rbtree] insert violate (im5)")
		}
		break
	}
	tree.node(tree.root).color = Black
}

/*
r1: Only a root node, remove directly.

r2: Current node X has left and right node.
Find node X's pred or succ to replace it to be removed.
Copy the key and value only, then remove the pred or succ,
which has one child at most.

r3: (1) Current node X is a red leaf node, remove directly.

r3: (2) Current node X is a black leaf node, we have to rebalance
before unlink. (black-violation)

r4: Current node X is not a leaf node but contains a not nil child node.
The child node must be a red node. (See conclusion. Otherwise, black-violation)
Splice the child and repaint it into black.
*/
func (tree *rbTree[K, V]) removeNode(z nodeRef) (key K, val V) {
	zn := tree.node(z)
	key, val = zn.key, zn.val

	y := z
	if /* r2 */ zn.left != nilRef && zn.right != nilRef {
		if tree.isRmBorrowSucc {
			y = tree.minimum(zn.right)
		} else {
			y = tree.maximum(zn.left)
		}
		yn := tree.node(y)
		zn.key, zn.val = yn.key, yn.val
	}

	yn := tree.node(y)
	child := yn.left
	if child == nilRef {
		child = yn.right
	}

	switch {
	case /* r1 */ yn.parent == nilRef && child == nilRef:
		tree.root = nilRef
	case /* r4 */ child != nilRef:
		tree.replaceChild(yn.parent, y, child)
		cn := tree.node(child)
		cn.parent = yn.parent
		cn.color = Black
	default /* r3 */ :
		if /* r3 (2) */ yn.color == Black {
			tree.removeRebalance(y)
		}
		tree.replaceChild(tree.node(y).parent, y, nilRef)
	}

	tree.arena.release(y)
	tree.count--
	return key, val
}

/*
<X> is a RED node.
[X] is a BLACK node (or NIL).
{X} is either a RED node or a BLACK node.

Sc is the same direction to X and it X's sibling's child node.
Sd is the opposite direction to X and it X's sibling's child node.

rm1: Current node X's sibling S is red, so the parent P, nephew node Sc and Sd
must be black. (Otherwise, red-violation)
(1) X is left node of P, left rotate P
(2) X is right node of P, right rotate P.
(3) repaint S into black, P into red.

	  [P]                   <S>               [S]
	  / \    l-rotate(P)    / \    repaint    / \
	[X] <S>  ==========>  [P] [D]  ======>  <P> [Sd]
	    / \               / \               / \
	 [Sc] [Sd]          [X] [Sc]          [X] [Sc]

rm2: Current node X's parent P is red, the sibling S, nephew node Sc and Sd
is black.
Repaint S into red and P into black.

	  <P>             [P]
	  / \             / \
	[X] [S]  ====>  [X] <S>
	    / \             / \
	 [Sc] [Sd]       [Sc] [Sd]

rm3: All of current node X's parent P, the sibling S, nephew node Sc and Sd
are black.
Paint the S into red to satisfy p4 locally. Then recursive to handle P.

rm4: Current node X's sibling S is black, nephew node Sc is red and Sd
is black. Ignore X's parent P's color (red or black is okay)
(1) If X is left node of P, right rotate S.
(2) If X is right node of P, left rotate S.
(3) Repaint S into red, Sc into black
Enter into rm5 to fix.

	                        {P}                {P}
	  {P}                   / \                / \
	  / \    r-rotate(S)  [X] <Sc>   repaint  [X] [Sc]
	[X] [S]  ==========>        \    ======>       \
	    / \                     [S]                <S>
	  <Sc> [Sd]                   \                  \
	                              [Sd]               [Sd]

rm5: Current node X's sibling S is black, nephew node Sd is red.
Ignore X's parent P's color (red or black is okay)
(1) If X is left node of P, left rotate P.
(2) If X is right node of P, right rotate P.
(3) S takes P's color, P into black.
(4) Repaint Sd into black.

	  {P}                   [S]                {S}
	  / \    l-rotate(P)    / \     repaint    / \
	[X] [S]  ==========>  {P} <Sd>  ======>  [P] [Sd]
	    / \               / \                / \
	 [Sc] <Sd>          [X] [Sc]           [X] [Sc]
*/
func (tree *rbTree[K, V]) removeRebalance(x nodeRef) {
	for x != tree.root && tree.isBlack(x) {
		p := tree.node(x).parent
		dir := tree.direction(x)
		// X carries a black deficit, so its sibling is never a nil leaf.
		s := tree.sibling(x)
		if /* rm1 */ tree.isRed(s) {
			tree.node(s).color = Black
			tree.node(p).color = Red
			switch dir {
			case Left:
				tree.leftRotate(p)
			case Right:
				tree.rightRotate(p)
			default:
				// impossible run to here
				panic( /* debug assertion */ "[rbtree] remove violate (rm1)")
			}
			s = tree.sibling(x)
		}

		var sc, sd nodeRef
		sn := tree.node(s)
		if dir == Left {
			sc, sd = sn.left, sn.right
		} else {
			sc, sd = sn.right, sn.left
		}

		if tree.isBlack(sc) && tree.isBlack(sd) {
			sn.color = Red
			if /* rm2 */ tree.isRed(p) {
				tree.node(p).color = Black
				return
			}
			/* rm3 */
			x = p
			continue
		}

		if /* rm4 */ tree.isBlack(sd) {
			tree.node(sc).color = Black
			sn.color = Red
			if dir == Left {
				tree.rightRotate(s)
			} else {
				tree.leftRotate(s)
			}
			s = tree.sibling(x)
			if dir == Left {
				sd = tree.node(s).right
			} else {
				sd = tree.node(s).left
			}
		}

		/* rm5 */
		tree.node(s).color = tree.node(p).color
		tree.node(p).color = Black
		tree.node(sd).color = Black
		if dir == Left {
			tree.leftRotate(p)
		} else {
			tree.rightRotate(p)
		}
		return
	}
	if x != nilRef {
		tree.node(x).color = Black
	}
}

func (tree *rbTree[K, V]) Remove(key K) (V, error) {
	var zero V
	if tree.count <= 0 {
		return zero, errRemoveFromEmpty
	}
	z := tree.search(key)
	if z == nilRef {
		return zero, ErrKeyNotFound
	}
	_, val := tree.removeNode(z)
	return val, nil
}

func (tree *rbTree[K, V]) RemoveMin() (K, V, error) {
	if tree.count <= 0 {
		var (
			k K
			v V
		)
		return k, v, ErrEmptyTree
	}
	key, val := tree.removeNode(tree.minimum(tree.root))
	return key, val, nil
}

func (tree *rbTree[K, V]) RemoveMax() (K, V, error) {
	if tree.count <= 0 {
		var (
			k K
			v V
		)
		return k, v, ErrEmptyTree
	}
	key, val := tree.removeNode(tree.maximum(tree.root))
	return key, val, nil
}

// Lookup reports the value of key. A missing key is reported
// by the false result only.
func (tree *rbTree[K, V]) Lookup(key K) (V, bool) {
	if ref := tree.search(key); ref != nilRef {
		return tree.node(ref).val, true
	}
	var zero V
	return zero, false
}

func (tree *rbTree[K, V]) Contains(key K) bool {
	return tree.search(key) != nilRef
}

func (tree *rbTree[K, V]) Search(key K) RBNode[K, V] {
	return tree.view(tree.search(key))
}

func (tree *rbTree[K, V]) edge(ref nodeRef) (K, V, bool) {
	if ref == nilRef {
		var (
			k K
			v V
		)
		return k, v, false
	}
	n := tree.node(ref)
	return n.key, n.val, true
}

// Min is the first key in the tree order, the largest one in desc order.
func (tree *rbTree[K, V]) Min() (K, V, bool) {
	return tree.edge(tree.minimum(tree.root))
}

func (tree *rbTree[K, V]) Max() (K, V, bool) {
	return tree.edge(tree.maximum(tree.root))
}

// Inorder traversal to implement the DFS.
func (tree *rbTree[K, V]) Foreach(action func(idx int64, color RBColor, key K, val V) bool) {
	aux := tree.root
	if tree.count <= 0 || aux == nilRef {
		return
	}

	stack := make([]nodeRef, 0, 64)
	for ; aux != nilRef; aux = tree.node(aux).left {
		stack = append(stack, aux)
	}

	for idx := int64(0); len(stack) > 0; idx++ {
		aux = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := tree.node(aux)
		if !action(idx, n.color, n.key, n.val) {
			return
		}
		for aux = n.right; aux != nilRef; aux = tree.node(aux).left {
			stack = append(stack, aux)
		}
	}
}

func (tree *rbTree[K, V]) Keys() []K {
	keys := make([]K, 0, tree.count)
	tree.Foreach(func(_ int64, _ RBColor, key K, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Release drops all nodes at once. The arena keeps its capacity
// for the next inserts.
func (tree *rbTree[K, V]) Release() {
	tree.arena.reset()
	tree.root = nilRef
	tree.count = 0
}

type RBTreeOpt[K infra.OrderedKey, V any] func(*rbTree[K, V])

func WithRBTreeDesc[K infra.OrderedKey, V any]() RBTreeOpt[K, V] {
	return func(tree *rbTree[K, V]) {
		tree.isDesc = true
	}
}

func WithRBTreeRemoveBorrowSucc[K infra.OrderedKey, V any]() RBTreeOpt[K, V] {
	return func(tree *rbTree[K, V]) {
		tree.isRmBorrowSucc = true
	}
}

// WithRBTreeCapacity pre-allocates the node arena.
func WithRBTreeCapacity[K infra.OrderedKey, V any](capacity int) RBTreeOpt[K, V] {
	return func(tree *rbTree[K, V]) {
		tree.arena = newRBArena[K, V](capacity)
	}
}

func NewRBTree[K infra.OrderedKey, V any](opts ...RBTreeOpt[K, V]) RBTree[K, V] {
	return newRBTree[K, V](opts...)
}

func newRBTree[K infra.OrderedKey, V any](opts ...RBTreeOpt[K, V]) *rbTree[K, V] {
	tree := &rbTree[K, V]{}
	for _, o := range opts {
		o(tree)
	}
	if tree.arena == nil {
		tree.arena = newRBArena[K, V](0)
	}
	return tree
}
