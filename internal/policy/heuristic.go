// File: internal/policy/heuristic.go
package policy

import (
	"math/rand"
	"sync"
)

// Heuristic sends items to the least-loaded available conveyor, lowest index
// first on ties. It does not learn.
type Heuristic struct{}

func (Heuristic) Select(obs Observation, mask []bool) int {
	best, bestLoad := -1, 0
	for i, ok := range mask {
		if !ok || i >= len(obs.Conveyors) {
			continue
		}
		if load := obs.Load(i); best < 0 || load < bestLoad {
			best, bestLoad = i, load
		}
	}
	if best < 0 {
		return FirstAvailable(mask)
	}
	return best
}

func (Heuristic) Update(Observation, int, float64, Observation) {}

// Random picks uniformly among available tactics from a seeded source.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom returns a Random policy; equal seeds give equal choice sequences.
func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) Select(_ Observation, mask []bool) int {
	avail := make([]int, 0, len(mask))
	for i, ok := range mask {
		if ok {
			avail = append(avail, i)
		}
	}
	if len(avail) == 0 {
		return FirstAvailable(mask)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return avail[r.rng.Intn(len(avail))]
}

func (r *Random) Update(Observation, int, float64, Observation) {}
