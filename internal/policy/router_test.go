package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
)

// fixedPolicy always selects the same action and counts updates.
type fixedPolicy struct {
	action  int
	updates int
	closed  bool
}

func (f *fixedPolicy) Select(Observation, []bool) int                { return f.action }
func (f *fixedPolicy) Update(Observation, int, float64, Observation) { f.updates++ }
func (f *fixedPolicy) Close() error                                  { f.closed = true; return nil }

func TestRouter(t *testing.T) {
	general := &fixedPolicy{action: 1}
	left := &fixedPolicy{action: 2}
	r := NewRouter(general, map[int]Policy{SpecialistMask(schemas.ConveyorLeft): left})
	mask := []bool{true, true, true, false}

	assert.Equal(t, 1, r.Select(Observation{}, mask))
	assert.Equal(t, 2, r.Select(Observation{AnomalyMask: 0b001}, mask))
	assert.Equal(t, 1, r.Select(Observation{AnomalyMask: 0b101}, mask), "combined masks fall back to the general model")

	// The model that saw the prior state is the one trained.
	r.Update(Observation{AnomalyMask: 0b001}, 2, 1, Observation{})
	r.Update(Observation{}, 1, 1, Observation{AnomalyMask: 0b001})
	assert.Equal(t, 1, left.updates)
	assert.Equal(t, 1, general.updates)

	assert.NoError(t, r.Close())
	assert.True(t, general.closed)
	assert.True(t, left.closed)
}
