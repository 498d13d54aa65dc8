package tree

import (
	"errors"
	"math"
	randv2 "math/rand/v2"
	"sort"
	"strconv"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type checkData struct {
	color RBColor
	key   uint64
}

func requireInorder(t *testing.T, tree RBTree[uint64, uint64], expected []checkData) {
	t.Helper()
	require.Equal(t, int64(len(expected)), tree.Len())
	tree.Foreach(func(idx int64, color RBColor, key uint64, val uint64) bool {
		require.Equal(t, expected[idx].color, color)
		require.Equal(t, expected[idx].key, key)
		return true
	})
	require.NoError(t, Validate[uint64, uint64](tree))
}

// shape is the preorder list of key, parent key and color.
func shape(tree *rbTree[uint64, uint64]) []string {
	res := make([]string, 0, tree.Len())
	_ = preorder[uint64, uint64](tree, func(node RBNode[uint64, uint64]) error {
		p := "nil"
		if node.Parent() != nil {
			p = strconv.FormatUint(node.Parent().Key(), 10)
		}
		res = append(res, strconv.FormatUint(node.Key(), 10)+":"+p+":"+node.Color().String())
		return nil
	})
	return res
}

func TestNilNode(t *testing.T) {
	tree := NewRBTree[uint64, uint64]()
	require.Nil(t, tree.Root())
	require.True(t, tree.IsEmpty())
	require.Equal(t, 0, tree.Height())
	require.Nil(t, tree.Search(1))
	require.NoError(t, Validate[uint64, uint64](tree))

	var view RBNode[uint64, uint64] = rbNodeView[uint64, uint64]{}
	require.NotNil(t, view)
}

func TestRbtree_InsertAscendingThree(t *testing.T) {
	tree := NewRBTree[uint64, uint64]()
	for _, k := range []uint64{10, 20, 30} {
		require.NoError(t, tree.Insert(k, k*10))
	}

	root := tree.Root()
	require.Equal(t, uint64(20), root.Key())
	require.Equal(t, Black, root.Color())
	require.Nil(t, root.Parent())
	require.Equal(t, uint64(10), root.Left().Key())
	require.Equal(t, Red, root.Left().Color())
	require.Equal(t, uint64(30), root.Right().Key())
	require.Equal(t, Red, root.Right().Color())
	require.Equal(t, root, root.Left().Parent())
	require.Equal(t, []uint64{10, 20, 30}, tree.Keys())
	requireInorder(t, tree, []checkData{{Red, 10}, {Black, 20}, {Red, 30}})
}

func TestRbtree_InsertSequentialHeight(t *testing.T) {
	tree := NewRBTree[uint64, uint64]()
	for k := uint64(10); k <= 80; k += 10 {
		require.NoError(t, tree.Insert(k, k))
		require.NoError(t, Validate[uint64, uint64](tree))
	}
	require.Equal(t, int64(8), tree.Len())
	require.LessOrEqual(t, tree.Height(), 6)
	require.LessOrEqual(t, float64(tree.Height()), 2*math.Log2(9))
}

func TestRbtree_DuplicateKey(t *testing.T) {
	tree := newRBTree[uint64, uint64]()
	require.NoError(t, tree.Insert(5, 1))
	err := tree.Insert(5, 2)
	require.ErrorIs(t, err, ErrDuplicateKey)
	require.Equal(t, int64(1), tree.Len())
	v, ok := tree.Lookup(5)
	require.True(t, ok)
	require.Equal(t, uint64(1), v)

	for _, k := range []uint64{3, 8, 1, 4, 7, 9} {
		require.NoError(t, tree.Insert(k, k))
	}
	before := shape(tree)
	for _, k := range []uint64{3, 8, 1, 4, 7, 9, 5} {
		require.ErrorIs(t, tree.Insert(k, 100), ErrDuplicateKey)
		require.ErrorIs(t, tree.Insert(k, 100), ErrDuplicateKey)
	}
	require.Equal(t, before, shape(tree))
	require.Equal(t, int64(7), tree.Len())
}

func TestRbtree_RotateRoundTrip(t *testing.T) {
	tree := newRBTree[uint64, uint64]()
	for k := uint64(1); k <= 31; k++ {
		require.NoError(t, tree.Insert(k, k))
	}
	expected := shape(tree)
	keys := tree.Keys()

	for _, k := range keys {
		x := tree.search(k)
		if tree.node(x).right != nilRef {
			tree.leftRotate(x)
			require.Equal(t, keys, tree.Keys())
			require.NoError(t, LinkViolationValidate[uint64, uint64](tree))
			tree.rightRotate(tree.node(x).parent)
			require.Equal(t, expected, shape(tree))
		}
		if tree.node(x).left != nilRef {
			tree.rightRotate(x)
			require.Equal(t, keys, tree.Keys())
			require.NoError(t, LinkViolationValidate[uint64, uint64](tree))
			tree.leftRotate(tree.node(x).parent)
			require.Equal(t, expected, shape(tree))
		}
	}
	require.NoError(t, Validate[uint64, uint64](tree))
}

func TestRbtree_RotateNilPivot(t *testing.T) {
	tree := newRBTree[uint64, uint64]()
	require.NoError(t, tree.Insert(1, 1))
	require.Panics(t, func() { tree.leftRotate(tree.root) })
	require.Panics(t, func() { tree.rightRotate(tree.root) })
	require.Panics(t, func() { tree.leftRotate(nilRef) })
}

func TestRbtreeLeftAndRightRotate_Pred(t *testing.T) {
	tree := NewRBTree[uint64, uint64]()

	require.NoError(t, tree.Insert(52, 1))
	requireInorder(t, tree, []checkData{{Black, 52}})
	require.NoError(t, tree.Insert(47, 1))
	requireInorder(t, tree, []checkData{{Red, 47}, {Black, 52}})
	require.NoError(t, tree.Insert(3, 1))
	requireInorder(t, tree, []checkData{{Red, 3}, {Black, 47}, {Red, 52}})
	require.NoError(t, tree.Insert(35, 1))
	requireInorder(t, tree, []checkData{{Black, 3}, {Red, 35}, {Black, 47}, {Black, 52}})
	require.NoError(t, tree.Insert(24, 1))
	requireInorder(t, tree, []checkData{{Red, 3}, {Black, 24}, {Red, 35}, {Black, 47}, {Black, 52}})

	// remove

	_, err := tree.Remove(24)
	require.NoError(t, err)
	requireInorder(t, tree, []checkData{{Black, 3}, {Red, 35}, {Black, 47}, {Black, 52}})

	_, err = tree.Remove(47)
	require.NoError(t, err)
	requireInorder(t, tree, []checkData{{Black, 3}, {Black, 35}, {Black, 52}})

	_, err = tree.Remove(52)
	require.NoError(t, err)
	requireInorder(t, tree, []checkData{{Red, 3}, {Black, 35}})

	_, err = tree.Remove(3)
	require.NoError(t, err)
	requireInorder(t, tree, []checkData{{Black, 35}})

	_, err = tree.Remove(35)
	require.NoError(t, err)
	require.Equal(t, int64(0), tree.Len())
	require.Nil(t, tree.Root())

	_, err = tree.Remove(35)
	require.ErrorIs(t, err, ErrEmptyTree)
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestRbtree_RemoveMinMax(t *testing.T) {
	tree := NewRBTree[uint64, uint64]()
	for _, k := range []uint64{52, 47, 3, 35, 24} {
		require.NoError(t, tree.Insert(k, k+1))
	}
	requireInorder(t, tree, []checkData{{Red, 3}, {Black, 24}, {Red, 35}, {Black, 47}, {Black, 52}})

	k, v, err := tree.RemoveMin()
	require.NoError(t, err)
	require.Equal(t, uint64(3), k)
	require.Equal(t, uint64(4), v)
	requireInorder(t, tree, []checkData{{Black, 24}, {Red, 35}, {Black, 47}, {Black, 52}})

	k, _, err = tree.RemoveMin()
	require.NoError(t, err)
	require.Equal(t, uint64(24), k)
	requireInorder(t, tree, []checkData{{Black, 35}, {Black, 47}, {Black, 52}})

	k, _, err = tree.RemoveMin()
	require.NoError(t, err)
	require.Equal(t, uint64(35), k)
	requireInorder(t, tree, []checkData{{Black, 47}, {Red, 52}})

	k, _, err = tree.RemoveMax()
	require.NoError(t, err)
	require.Equal(t, uint64(52), k)
	requireInorder(t, tree, []checkData{{Black, 47}})

	k, _, err = tree.RemoveMax()
	require.NoError(t, err)
	require.Equal(t, uint64(47), k)
	require.True(t, tree.IsEmpty())

	_, _, err = tree.RemoveMin()
	require.ErrorIs(t, err, ErrEmptyTree)
	_, _, err = tree.RemoveMax()
	require.ErrorIs(t, err, ErrEmptyTree)
}

func TestRbtree_LookupAndContains(t *testing.T) {
	tree := NewRBTree[uint64, string]()
	keys := lo.Shuffle(lo.Range(1000))
	for _, k := range keys {
		require.NoError(t, tree.Insert(uint64(k)*2, strconv.Itoa(k)))
	}
	require.Equal(t, int64(1000), tree.Len())

	for _, k := range keys {
		v, ok := tree.Lookup(uint64(k) * 2)
		require.True(t, ok)
		require.Equal(t, strconv.Itoa(k), v)
		require.True(t, tree.Contains(uint64(k)*2))

		v, ok = tree.Lookup(uint64(k)*2 + 1)
		require.False(t, ok)
		require.Empty(t, v)
		require.False(t, tree.Contains(uint64(k)*2+1))
	}

	node := tree.Search(20)
	require.NotNil(t, node)
	require.Equal(t, "10", node.Val())

	_, err := tree.Remove(21)
	require.ErrorIs(t, err, ErrKeyNotFound)
	require.Equal(t, int64(1000), tree.Len())

	k, v, ok := tree.Min()
	require.True(t, ok)
	require.Equal(t, uint64(0), k)
	require.Equal(t, "0", v)
	k, v, ok = tree.Max()
	require.True(t, ok)
	require.Equal(t, uint64(1998), k)
	require.Equal(t, "999", v)
}

func TestRbtree_FloatNaNKey(t *testing.T) {
	tree := NewRBTree[float64, int]()
	nan := math.NaN()
	require.NoError(t, tree.Insert(1, 1))
	require.NoError(t, tree.Insert(nan, 2))
	require.ErrorIs(t, tree.Insert(nan, 3), ErrDuplicateKey)
	require.Equal(t, int64(2), tree.Len())

	require.True(t, tree.Contains(nan))
	v, ok := tree.Lookup(nan)
	require.True(t, ok)
	require.Equal(t, 2, v)
	require.NoError(t, Validate[float64, int](tree))

	k, _, ok := tree.Min()
	require.True(t, ok)
	require.True(t, math.IsNaN(k))

	v, err := tree.Remove(nan)
	require.NoError(t, err)
	require.Equal(t, 2, v)
	require.False(t, tree.Contains(nan))
	require.NoError(t, Validate[float64, int](tree))
}

func TestRbtree_Upsert(t *testing.T) {
	tree := NewRBTree[string, int]()
	require.False(t, tree.Upsert("a", 1))
	require.False(t, tree.Upsert("b", 2))
	require.True(t, tree.Upsert("a", 3))
	require.Equal(t, int64(2), tree.Len())
	v, ok := tree.Lookup("a")
	require.True(t, ok)
	require.Equal(t, 3, v)
	require.NoError(t, Validate[string, int](tree))
}

func TestRbtree_InsertAll(t *testing.T) {
	tree := NewRBTree[int, struct{}]()
	err := tree.InsertAll(1, 2, 23, 0, 15, 100, 2, 23)
	require.ErrorIs(t, err, ErrDuplicateKey)
	require.Len(t, multierr.Errors(err), 2)
	require.Equal(t, []int{0, 1, 2, 15, 23, 100}, tree.Keys())
	require.True(t, tree.Contains(23))

	require.NoError(t, tree.InsertAll(7, 8))
	require.Equal(t, int64(8), tree.Len())
}

func TestRbtree_Foreach_EarlyStop(t *testing.T) {
	tree := NewRBTree[int, int]()
	require.NoError(t, tree.InsertAll(lo.Range(100)...))
	visited := 0
	tree.Foreach(func(idx int64, color RBColor, key int, val int) bool {
		visited++
		return idx < 9
	})
	require.Equal(t, 10, visited)
}

func TestRbtree_Release(t *testing.T) {
	tree := newRBTree[uint64, uint64](WithRBTreeCapacity[uint64, uint64](1024))
	for i := uint64(0); i < 1000; i++ {
		require.NoError(t, tree.Insert(i, i))
	}
	require.Equal(t, 1000, tree.arena.live())
	tree.Release()
	require.Equal(t, int64(0), tree.Len())
	require.Nil(t, tree.Root())
	require.Equal(t, 0, tree.arena.live())

	require.NoError(t, tree.Insert(1, 1))
	requireInorder(t, tree, []checkData{{Black, 1}})
}

func TestRbtree_ArenaReuse(t *testing.T) {
	tree := newRBTree[uint64, uint64]()
	for i := uint64(0); i < 128; i++ {
		require.NoError(t, tree.Insert(i, i))
	}
	slots := len(tree.arena.nodes)
	for i := uint64(0); i < 64; i++ {
		_, err := tree.Remove(i)
		require.NoError(t, err)
	}
	require.Equal(t, 64, tree.arena.live())
	for i := uint64(1000); i < 1064; i++ {
		require.NoError(t, tree.Insert(i, i))
	}
	require.Equal(t, slots, len(tree.arena.nodes))
	require.Equal(t, 128, tree.arena.live())
	require.NoError(t, Validate[uint64, uint64](tree))
}

func TestRbtree_Desc(t *testing.T) {
	tree := NewRBTree[int64, uint64](WithRBTreeDesc[int64, uint64]())
	for i := int64(0); i < 1000; i++ {
		require.NoError(t, tree.Insert(i, 1))
	}
	tree.Foreach(func(idx int64, color RBColor, key int64, val uint64) bool {
		require.Equal(t, 999-idx, key)
		return true
	})
	require.NoError(t, Validate[int64, uint64](tree))
	require.Error(t, OrderViolationValidate[int64, uint64](tree, func(i, j int64) int64 {
		if i == j {
			return 0
		} else if i < j {
			return -1
		}
		return 1
	}))

	k, _, ok := tree.Min()
	require.True(t, ok)
	require.Equal(t, int64(999), k)

	for i := int64(0); i < 500; i++ {
		_, err := tree.Remove(i * 2)
		require.NoError(t, err)
	}
	require.NoError(t, Validate[int64, uint64](tree))
	require.Equal(t, int64(500), tree.Len())
}

func TestValidate_DetectsViolations(t *testing.T) {
	tree := newRBTree[uint64, uint64]()
	require.NoError(t, tree.InsertAll(10, 20, 30))

	tree.node(tree.root).color = Red
	err := Validate[uint64, uint64](tree)
	require.Error(t, err)
	require.Error(t, RootColorValidate[uint64, uint64](tree))
	require.Error(t, RedViolationValidate[uint64, uint64](tree))
	tree.node(tree.root).color = Black

	tree.node(tree.node(tree.root).left).color = Black
	require.Error(t, BlackViolationValidate[uint64, uint64](tree))
	tree.node(tree.node(tree.root).left).color = Red

	l, r := tree.node(tree.root).left, tree.node(tree.root).right
	tree.node(l).key, tree.node(r).key = 30, 10
	require.Error(t, OrderViolationValidate[uint64, uint64](tree, tree.keyCompare))
	tree.node(l).key, tree.node(r).key = 10, 30

	tree.node(l).parent = r
	require.Error(t, LinkViolationValidate[uint64, uint64](tree))
	tree.node(l).parent = tree.root

	tree.count++
	require.Error(t, LinkViolationValidate[uint64, uint64](tree))
	tree.count--

	require.NoError(t, Validate[uint64, uint64](tree))
}

func rbtreeRandomInsertAndRemoveRunCore(t *testing.T, total int, rbRmBySucc bool, violationCheck bool) {
	opts := []RBTreeOpt[uint64, uint64]{}
	if rbRmBySucc {
		opts = append(opts, WithRBTreeRemoveBorrowSucc[uint64, uint64]())
	}
	tree := NewRBTree[uint64, uint64](opts...)

	elements := make([]uint64, 0, total)
	for i := 0; i < total; i++ {
		elements = append(elements, randv2.Uint64N(uint64(total)*4))
	}
	uniq := lo.Uniq(elements)

	duplicates := 0
	for i, e := range elements {
		if err := tree.Insert(e, uint64(i)); err != nil {
			require.True(t, errors.Is(err, ErrDuplicateKey))
			duplicates++
		}
		if violationCheck {
			require.NoError(t, Validate[uint64, uint64](tree))
		}
	}
	require.Equal(t, len(elements)-len(uniq), duplicates)
	require.Equal(t, int64(len(uniq)), tree.Len())
	require.LessOrEqual(t, float64(tree.Height()), 2*math.Log2(float64(tree.Len()+1)))

	sorted := append([]uint64(nil), uniq...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	require.Equal(t, sorted, tree.Keys())

	removed := lo.Shuffle(append([]uint64(nil), uniq...))[:len(uniq)/2]
	for _, e := range removed {
		_, err := tree.Remove(e)
		require.NoError(t, err)
		require.False(t, tree.Contains(e))
		if violationCheck {
			require.NoError(t, Validate[uint64, uint64](tree))
		}
	}
	require.NoError(t, Validate[uint64, uint64](tree))

	remain, _ := lo.Difference(sorted, removed)
	require.Equal(t, remain, tree.Keys())
	for _, e := range remain {
		require.True(t, tree.Contains(e))
	}
}

func TestRbtreeRandomInsertAndRemove(t *testing.T) {
	testcases := []struct {
		name           string
		rbRmBySucc     bool
		total          int
		violationCheck bool
	}{
		{name: "rm by pred 100000", total: 100_000},
		{name: "rm by succ 100000", rbRmBySucc: true, total: 100_000},
		{name: "violation check rm by pred 2000", total: 2000, violationCheck: true},
		{name: "violation check rm by succ 2000", rbRmBySucc: true, total: 2000, violationCheck: true},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(tt *testing.T) {
			rbtreeRandomInsertAndRemoveRunCore(tt, tc.total, tc.rbRmBySucc, tc.violationCheck)
		})
	}
}

func TestRBTreeSequential_Release(t *testing.T) {
	insertTotal := uint64(100_000)
	tree := NewRBTree[uint64, uint64]()

	rand := randv2.Uint64N(1_000)
	for i := uint64(0); i < insertTotal; i++ {
		require.NoError(t, tree.Insert(i, 1))
		if i%1000 == rand {
			require.NoError(t, Validate[uint64, uint64](tree))
		}
	}
	tree.Foreach(func(idx int64, color RBColor, key uint64, val uint64) bool {
		require.Equal(t, uint64(idx), key)
		return true
	})
	require.LessOrEqual(t, float64(tree.Height()), 2*math.Log2(float64(insertTotal+1)))

	for i := uint64(0); i < insertTotal; i += 3 {
		_, err := tree.Remove(i)
		require.NoError(t, err)
	}
	require.NoError(t, Validate[uint64, uint64](tree))

	tree.Release()
	require.Equal(t, int64(0), tree.Len())
	require.Nil(t, tree.Root())
}

func BenchmarkRBTree_Random(b *testing.B) {
	testByBytes := []byte(`abc`)

	b.StopTimer()
	tree := NewRBTree[int, []byte]()

	rngArr := make([]int, 0, b.N)
	for i := 0; i < b.N; i++ {
		rngArr = append(rngArr, randv2.Int())
	}

	b.StartTimer()
	for i := 0; i < b.N; i++ {
		_ = tree.Insert(rngArr[i], testByBytes)
	}
}

func BenchmarkRBTree_Serial(b *testing.B) {
	testByBytes := []byte(`abc`)
	tree := NewRBTree[int, []byte](WithRBTreeCapacity[int, []byte](b.N))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tree.Insert(i, testByBytes)
	}
}
