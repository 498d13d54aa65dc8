package bench

import (
	"errors"
	"strconv"

	"github.com/google/btree"

	"github.com/qwtsc/yarb-tree/lib/infra"
	"github.com/qwtsc/yarb-tree/lib/tree"
)

const (
	RBTreeContainer = "rbtree"
	BTreeContainer  = "btree"

	btreeDegree = 32
)

func SupportedContainers() []string {
	return []string{RBTreeContainer, BTreeContainer}
}

// Container is an ordered set of uint64 keys under benchmark.
// An instance is only used by a single task.
type Container interface {
	Name() string
	// Insert returns false if the key is already present.
	Insert(key uint64) bool
	Len() int
	// Sorted returns the keys in ascending order.
	Sorted() []uint64
	// Verify checks the container internal rules, nil if the
	// container has none to check.
	Verify() error
	Release()
}

func NewContainer(name string, capacity int) (Container, error) {
	switch name {
	case RBTreeContainer:
		return &rbtreeContainer{
			tree: tree.NewRBTree[uint64, struct{}](tree.WithRBTreeCapacity[uint64, struct{}](capacity)),
		}, nil
	case BTreeContainer:
		return &btreeContainer{
			tree: btree.New(btreeDegree),
		}, nil
	default:
	}
	return nil, infra.NewErrorStack("unknown container " + name)
}

type rbtreeContainer struct {
	tree tree.RBTree[uint64, struct{}]
}

func (c *rbtreeContainer) Name() string {
	return RBTreeContainer
}

func (c *rbtreeContainer) Insert(key uint64) bool {
	err := c.tree.Insert(key, struct{}{})
	if err != nil && !errors.Is(err, tree.ErrDuplicateKey) {
		panic(err)
	}
	return err == nil
}

func (c *rbtreeContainer) Len() int {
	return int(c.tree.Len())
}

func (c *rbtreeContainer) Sorted() []uint64 {
	return c.tree.Keys()
}

func (c *rbtreeContainer) Verify() error {
	return tree.Validate[uint64, struct{}](c.tree)
}

func (c *rbtreeContainer) Release() {
	c.tree.Release()
}

type btreeKey uint64

func (k btreeKey) Less(than btree.Item) bool {
	return k < than.(btreeKey)
}

type btreeContainer struct {
	tree *btree.BTree
}

func (c *btreeContainer) Name() string {
	return BTreeContainer
}

func (c *btreeContainer) Insert(key uint64) bool {
	return c.tree.ReplaceOrInsert(btreeKey(key)) == nil
}

func (c *btreeContainer) Len() int {
	return c.tree.Len()
}

func (c *btreeContainer) Sorted() []uint64 {
	keys := make([]uint64, 0, c.tree.Len())
	c.tree.Ascend(func(item btree.Item) bool {
		keys = append(keys, uint64(item.(btreeKey)))
		return true
	})
	return keys
}

func (c *btreeContainer) Verify() error {
	return nil
}

func (c *btreeContainer) Release() {
	c.tree.Clear(false)
}

// VerifyStrictlyIncreasing checks the container output order.
func VerifyStrictlyIncreasing(name string, keys []uint64) error {
	for i := 1; i < len(keys); i++ {
		if keys[i] <= keys[i-1] {
			return infra.NewErrorStack("wrong " + name + " order at index " + strconv.Itoa(i))
		}
	}
	return nil
}
