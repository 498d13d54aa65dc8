package infra

import "cmp"

type Signed interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

// Unsigned is a constraint that permits any unsigned integer type.
type Unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

type Integer interface {
	Signed | Unsigned
}

type Float interface {
	~float32 | ~float64
}

// OrderedKey is the key constraint of the ordered containers.
// byte => ~uint8
type OrderedKey interface {
	Integer | Float | ~string
}

// OrderedKeyComparator
// Assume i is the new key.
//  1. i == j (return 0)
//  2. i > j (return 1), turn to right part.
//  3. i < j (return -1), turn to left part.
type OrderedKeyComparator[K OrderedKey] func(i, j K) int64

// AscComparator orders a NaN key before any other float and equal to
// another NaN, so NaN is a regular key.
func AscComparator[K OrderedKey](i, j K) int64 {
	return int64(cmp.Compare(i, j))
}

func DescComparator[K OrderedKey](i, j K) int64 {
	return -AscComparator[K](i, j)
}
