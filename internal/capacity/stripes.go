package capacity

import (
	"context"
	"sort"

	"github.com/bwmarrin/snowflake"
)

const defaultStripes = 256

// stripedMutex serializes work per event inside one process. Events hashing
// to the same stripe share a slot; unrelated events proceed in parallel.
type stripedMutex struct {
	stripes []chan struct{}
}

func newStripedMutex(n int) *stripedMutex {
	if n <= 0 {
		n = defaultStripes
	}
	stripes := make([]chan struct{}, n)
	for i := range stripes {
		stripes[i] = make(chan struct{}, 1)
	}
	return &stripedMutex{stripes: stripes}
}

func (m *stripedMutex) indexes(ids []snowflake.ID) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		idx := m.stripeOf(id)
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// stripeOf mixes every bit of id before reducing it. Snowflake ids keep a
// per-millisecond sequence in their low bits, which is almost always zero.
func (m *stripedMutex) stripeOf(id snowflake.ID) int {
	z := uint64(id)
	z ^= z >> 30
	z *= 0xbf58476d1ce4e5b9
	z ^= z >> 27
	z *= 0x94d049bb133111eb
	z ^= z >> 31
	return int(z % uint64(len(m.stripes)))
}

// lock takes every stripe covering ids in ascending order and returns the
// matching unlock. It gives up when ctx is done.
func (m *stripedMutex) lock(ctx context.Context, ids []snowflake.ID) (func(), error) {
	held := make([]int, 0, len(ids))
	unlock := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-m.stripes[held[i]]
		}
	}
	for _, idx := range m.indexes(ids) {
		select {
		case m.stripes[idx] <- struct{}{}:
			held = append(held, idx)
		case <-ctx.Done():
			unlock()
			return nil, ctx.Err()
		}
	}
	return unlock, nil
}
