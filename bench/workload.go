package bench

import (
	"math/rand/v2"

	"github.com/samber/lo"
)

// GenerateWorkload builds the keys inserted in one round.
// The random workload draws total keys from [0, total), so it
// contains duplicates like any uniform sample does.
func GenerateWorkload(kind WorkloadKind, total int, seed uint64) []uint64 {
	if total <= 0 {
		return []uint64{}
	}
	switch kind {
	case SequentialWorkload:
		return lo.Map(lo.Range(total), func(i int, _ int) uint64 {
			return uint64(i)
		})
	case ReverseWorkload:
		return lo.Map(lo.RangeWithSteps(total-1, -1, -1), func(i int, _ int) uint64 {
			return uint64(i)
		})
	default:
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	keys := make([]uint64, total)
	for i := range keys {
		keys[i] = rng.Uint64N(uint64(total))
	}
	return keys
}

// UniqueKeys is the expected length of every container after
// inserting the workload.
func UniqueKeys(keys []uint64) int {
	return len(lo.Uniq(keys))
}
