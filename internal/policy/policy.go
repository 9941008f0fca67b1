// File: internal/policy/policy.go
package policy

import (
	"errors"
	"fmt"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
)

// Decision modes selectable per experiment.
const (
	ModePolicy    = "policy"
	ModeHeuristic = "heuristic"
	ModeRandom    = "random"
)

// ErrUnknownMode is returned for a decision mode with no policy behind it.
var ErrUnknownMode = errors.New("unknown decision mode")

// Policy chooses a Classification tactic and learns from the reward that follows.
//
// Select must return an index whose mask entry is true and must be
// deterministic for a fixed model. Update records one experience; it must
// return within a bounded time no matter how often it is called.
type Policy interface {
	Select(obs Observation, mask []bool) int
	Update(prev Observation, action int, rewardDelta float64, next Observation)
}

// Observation is the warehouse state a policy decides on.
type Observation struct {
	Tick       int
	RecentItem schemas.ItemType
	// Conveyors holds the item types on each Repository conveyor, oldest first.
	Conveyors [schemas.NumConveyors][]schemas.ItemType
	Shipment  []schemas.ItemType
	// Orders counts orders per item type that are not yet completed.
	Orders      [schemas.NumItemTypes]int
	AnomalyMask int
}

// queueDigits is how many queue slots the base-5 encoding covers.
const queueDigits = 5

// encodeQueue packs up to five item types into one base-5 number, head first.
func encodeQueue(q []schemas.ItemType) float64 {
	v := 0
	for i, t := range q {
		if i >= queueDigits {
			break
		}
		p := 1
		for k := 0; k < queueDigits-i-1; k++ {
			p *= 5
		}
		v += int(t) * p
	}
	return float64(v)
}

// Vector returns the raw state vector: tick, recent item, the encoded Left,
// Middle, Right and Shipment queues, order counts per type and the anomaly mask.
func (o Observation) Vector() []float64 {
	v := make([]float64, 0, 2+schemas.NumConveyors+1+schemas.NumItemTypes+1)
	v = append(v, float64(o.Tick), float64(o.RecentItem))
	for _, q := range o.Conveyors {
		v = append(v, encodeQueue(q))
	}
	v = append(v, encodeQueue(o.Shipment))
	for _, n := range o.Orders {
		v = append(v, float64(n))
	}
	return append(v, float64(o.AnomalyMask))
}

// Load returns the number of items on conveyor c.
func (o Observation) Load(c int) int { return len(o.Conveyors[c]) }

// FirstAvailable returns the lowest index whose mask entry is true, or
// TacticNoOp when none is.
func FirstAvailable(mask []bool) int {
	for i, ok := range mask {
		if ok {
			return i
		}
	}
	return int(schemas.TacticNoOp)
}

// Valid reports whether action is an index the mask allows.
func Valid(action int, mask []bool) bool {
	return action >= 0 && action < len(mask) && mask[action]
}

// Closer is implemented by policies that own background work.
type Closer interface {
	Close() error
}

// closeAll closes every policy that implements Closer.
func closeAll(ps ...Policy) error {
	var errs []error
	for _, p := range ps {
		if c, ok := p.(Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing %T: %w", p, err))
			}
		}
	}
	return errors.Join(errs...)
}
