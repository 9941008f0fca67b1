// File: internal/anomaly/automaton.go
package anomaly

import (
	"fmt"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
)

// State is the fault state of one conveyor.
type State int

const (
	Normal State = iota
	Active
	Stuck
)

func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case Active:
		return "active"
	case Stuck:
		return "stuck"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// conveyorState is the per-conveyor record. onset == nil means Normal.
type conveyorState struct {
	onset        *int
	stuck        bool
	stuckAt      int
	stuckCounter int
	faultProne   bool
	pending      bool
}

// Recovery reports a conveyor that returned to Normal during a tick.
type Recovery struct {
	Conveyor schemas.Conveyor
	// WasStuck is set when the conveyor left Stuck, which entitles it to one
	// forced advance.
	WasStuck bool
}

// Automaton tracks Normal, Active and Stuck for each Repository conveyor.
// It is not safe for concurrent use; the engine serializes access.
type Automaton struct {
	duration int
	wait     int
	conv     [schemas.NumConveyors]conveyorState
}

// New returns an automaton where only faultProne conveyors can enter Active.
// An anomaly lasts duration ticks; a Stuck conveyor is released after wait ticks.
func New(duration, wait int, faultProne []schemas.Conveyor) *Automaton {
	a := &Automaton{duration: duration, wait: wait}
	for _, c := range faultProne {
		if c.Valid() {
			a.conv[c].faultProne = true
		}
	}
	return a
}

// Reset returns every conveyor to Normal and drops pending triggers.
func (a *Automaton) Reset() {
	for i := range a.conv {
		fp := a.conv[i].faultProne
		a.conv[i] = conveyorState{faultProne: fp}
	}
}

// FaultProne reports whether c can become anomalous at all.
func (a *Automaton) FaultProne(c schemas.Conveyor) bool {
	return c.Valid() && a.conv[c].faultProne
}

// Trigger latches an external fault report for c. It is consumed by the next
// Onset call. Reports for conveyors that cannot fault are ignored.
func (a *Automaton) Trigger(c schemas.Conveyor) bool {
	if !a.FaultProne(c) {
		return false
	}
	a.conv[c].pending = true
	return true
}

// ClearTrigger withdraws a latched report that has not been consumed yet.
func (a *Automaton) ClearTrigger(c schemas.Conveyor) {
	if c.Valid() {
		a.conv[c].pending = false
	}
}

// Onset moves every fault-prone Normal conveyor with an active trigger to
// Active at tick. flags are this tick's external fault flags and are OR-ed
// with latched triggers. All triggers are consumed, including those on
// conveyors that were already Active. It returns the conveyors that changed.
func (a *Automaton) Onset(tick int, flags [schemas.NumConveyors]bool) []schemas.Conveyor {
	var started []schemas.Conveyor
	for i := range a.conv {
		cs := &a.conv[i]
		triggered := cs.pending || flags[i]
		cs.pending = false
		if !triggered || !cs.faultProne || cs.onset != nil {
			continue
		}
		t := tick
		cs.onset = &t
		started = append(started, schemas.Conveyor(i))
	}
	return started
}

// State returns the current state of c.
func (a *Automaton) State(c schemas.Conveyor) State {
	cs := a.conv[c]
	switch {
	case cs.onset == nil:
		return Normal
	case cs.stuck:
		return Stuck
	default:
		return Active
	}
}

// Anomalous reports whether c is Active or Stuck.
func (a *Automaton) Anomalous(c schemas.Conveyor) bool { return a.conv[c].onset != nil }

// IsStuck reports whether c is Stuck.
func (a *Automaton) IsStuck(c schemas.Conveyor) bool { return a.conv[c].stuck }

// OnsetTick returns the tick the current anomaly on c began.
func (a *Automaton) OnsetTick(c schemas.Conveyor) (int, bool) {
	if o := a.conv[c].onset; o != nil {
		return *o, true
	}
	return 0, false
}

// MarkStuck moves an Active conveyor to Stuck at tick. It reports false, and
// changes nothing, when c is not Active.
func (a *Automaton) MarkStuck(c schemas.Conveyor, tick int) bool {
	cs := &a.conv[c]
	if cs.onset == nil || cs.stuck {
		return false
	}
	cs.stuck = true
	cs.stuckAt = tick
	cs.stuckCounter = 0
	return true
}

// Recover advances Stuck counters and returns conveyors to Normal once the
// anomaly has lasted its full duration or the Stuck wait has elapsed. The
// counter does not advance on the tick the conveyor jammed, so a Stuck
// conveyor is held for wait full ticks.
func (a *Automaton) Recover(tick int) []Recovery {
	var out []Recovery
	for i := range a.conv {
		cs := &a.conv[i]
		if cs.onset == nil {
			continue
		}
		if cs.stuck && tick > cs.stuckAt {
			cs.stuckCounter++
		}
		expired := *cs.onset+a.duration <= tick
		released := cs.stuck && cs.stuckCounter >= a.wait
		if !expired && !released {
			continue
		}
		out = append(out, Recovery{Conveyor: schemas.Conveyor(i), WasStuck: cs.stuck})
		cs.onset = nil
		cs.stuck = false
		cs.stuckAt, cs.stuckCounter = 0, 0
	}
	return out
}

// Mask encodes the anomalous conveyors as a bitmask, Left being bit 0.
func (a *Automaton) Mask() int {
	m := 0
	for i := range a.conv {
		if a.conv[i].onset != nil {
			m |= 1 << i
		}
	}
	return m
}
