package reservation

import (
	"hash/fnv"
	"sync"

	"staybook/internal/domain/units"
)

const lockShards = 64

// unitLocks serializes the check-then-act window of a reservation attempt per
// unit. Different units map to different shards and proceed in parallel; a
// shard collision only costs contention, never correctness.
type unitLocks struct {
	shards [lockShards]sync.Mutex
}

func (l *unitLocks) lock(unit units.UnitID) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(unit))
	mu := &l.shards[h.Sum32()%lockShards]
	mu.Lock()
	return mu
}
