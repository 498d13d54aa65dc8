package tree

import (
	"errors"
	"fmt"

	"github.com/qwtsc/yarb-tree/lib/infra"
)

// go install golang.org/x/tools/cmd/stringer@latest

//go:generate stringer -type=RBColor
type RBColor uint8

const (
	Black RBColor = iota
	Red
)

//go:generate stringer -type=RBDirection
type RBDirection int8

const (
	Left RBDirection = -1 + iota
	Root
	Right
)

var (
	ErrDuplicateKey = errors.New("[rbtree] duplicate key")
	ErrKeyNotFound  = errors.New("[rbtree] key not found")
	ErrEmptyTree    = errors.New("[rbtree] empty tree")

	// Removing from an empty tree matches both ErrEmptyTree and ErrKeyNotFound.
	errRemoveFromEmpty = fmt.Errorf("%w, %w", ErrEmptyTree, ErrKeyNotFound)
)

// RBNode is a read-only view of a tree node. A view is only
// valid until the next mutation of the tree it came from.
type RBNode[K infra.OrderedKey, V any] interface {
	Key() K
	Val() V
	Color() RBColor
	Left() RBNode[K, V]
	Right() RBNode[K, V]
	Parent() RBNode[K, V]
}

// RBTree is a red-black tree owned by a single goroutine.
// Callers have to serialize the access by themselves.
type RBTree[K infra.OrderedKey, V any] interface {
	Len() int64
	IsEmpty() bool
	Height() int
	Root() RBNode[K, V]
	Insert(key K, val V) error
	InsertAll(keys ...K) error
	Upsert(key K, val V) (replaced bool)
	Lookup(key K) (V, bool)
	Contains(key K) bool
	Search(key K) RBNode[K, V]
	Min() (K, V, bool)
	Max() (K, V, bool)
	Remove(key K) (V, error)
	RemoveMin() (K, V, error)
	RemoveMax() (K, V, error)
	Keys() []K
	Foreach(action func(idx int64, color RBColor, key K, val V) bool)
	Release()
}
