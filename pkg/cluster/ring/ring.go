package ring

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/atlassian/statsrelay"
)

var (
	errNoShards      = errors.New("at least one shard is required")
	errInvalidSize   = errors.New("ring size must be at least 1")
	errNoReplication = errors.New("replication must be at least 1")
)

// Ring is an immutable placement table. It is safe for concurrent use.
type Ring struct {
	shards      []statsrelay.Shard
	size        int
	replication int
}

// NewRing validates shards and builds a Ring. Replication above the number of shards is reduced
// to the number of shards.
func NewRing(logger logrus.FieldLogger, shards []statsrelay.Shard, size, replication int) (*Ring, error) {
	if len(shards) == 0 {
		return nil, errNoShards
	}
	if size < 1 {
		return nil, errInvalidSize
	}
	if replication < 1 {
		return nil, errNoReplication
	}
	sorted := make([]statsrelay.Shard, len(shards))
	copy(sorted, shards)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RingIndex < sorted[j].RingIndex
	})
	for i, s := range sorted {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if s.RingIndex >= size {
			return nil, fmt.Errorf("shard %s: ring index %d is outside of ring size %d", s.Address(), s.RingIndex, size)
		}
		if i > 0 && sorted[i-1].RingIndex == s.RingIndex {
			return nil, fmt.Errorf("shards %s and %s share ring index %d", sorted[i-1].Address(), s.Address(), s.RingIndex)
		}
	}
	if replication > len(sorted) {
		logger.WithFields(logrus.Fields{
			"replication": replication,
			"shards":      len(sorted),
		}).Warn("Replication exceeds the number of shards, every shard will receive every metric")
		replication = len(sorted)
	}
	return &Ring{
		shards:      sorted,
		size:        size,
		replication: replication,
	}, nil
}

// Shards returns a copy of the shards, sorted by ring index.
func (r *Ring) Shards() []statsrelay.Shard {
	shards := make([]statsrelay.Shard, len(r.shards))
	copy(shards, r.shards)
	return shards
}

// Len returns the number of shards.
func (r *Ring) Len() int {
	return len(r.shards)
}

// Size returns the number of ring positions.
func (r *Ring) Size() int {
	return r.size
}

// Replication returns how many shards receive each key.
func (r *Ring) Replication() int {
	return r.replication
}

// Hash is the 31 multiplier string hash wrapped to a signed 32 bit integer. Downstream tooling
// relies on the exact placement so it must not change.
func Hash(key string) int32 {
	var h int32
	for i := 0; i < len(key); i++ {
		h = h*31 + int32(key[i])
	}
	return h
}

// Position maps key onto [0, size).
func Position(key string, size int) int {
	h := int64(Hash(key))
	if h < 0 {
		h = -h
	}
	return int(h % int64(size))
}

// Primary returns the index, in ring order, of the shard owning key. When every shard receives
// every key the first shard is returned without hashing.
func (r *Ring) Primary(key string) int {
	if r.replication == len(r.shards) {
		return 0
	}
	pos := Position(key, r.size)
	for i := len(r.shards) - 1; i >= 0; i-- {
		if pos >= r.shards[i].RingIndex {
			return i
		}
	}
	return len(r.shards) - 1
}

// Placements returns the indexes of every shard receiving key, starting with the primary.
func (r *Ring) Placements(key string) []int {
	placements := make([]int, 0, r.replication)
	idx := r.Primary(key)
	for i := 0; i < r.replication; i++ {
		placements = append(placements, idx)
		idx = (idx + 1) % len(r.shards)
	}
	return placements
}
