package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
)

func TestObservationVector(t *testing.T) {
	obs := Observation{
		Tick:       12,
		RecentItem: schemas.ItemYellow,
		Conveyors: [schemas.NumConveyors][]schemas.ItemType{
			{schemas.ItemRed},
			{schemas.ItemWhite, schemas.ItemBlue},
			nil,
		},
		Shipment:    []schemas.ItemType{schemas.ItemRed, schemas.ItemRed, schemas.ItemRed, schemas.ItemRed, schemas.ItemRed, schemas.ItemRed},
		Orders:      [schemas.NumItemTypes]int{1, 0, 2, 0},
		AnomalyMask: 0b100,
	}

	v := obs.Vector()
	require.Len(t, v, 11)
	assert.Equal(t, 12.0, v[0])
	assert.Equal(t, 3.0, v[1])
	assert.Equal(t, 625.0, v[2], "head item weighs 5^4")
	assert.Equal(t, 2*625.0+4*125.0, v[3])
	assert.Equal(t, 0.0, v[4])
	assert.Equal(t, 625.0+125+25+5+1, v[5], "only five slots are encoded")
	assert.Equal(t, []float64{1, 0, 2, 0}, v[6:10])
	assert.Equal(t, 4.0, v[10])
}

func TestFirstAvailable(t *testing.T) {
	assert.Equal(t, 1, FirstAvailable([]bool{false, true, true, false}))
	assert.Equal(t, int(schemas.TacticNoOp), FirstAvailable([]bool{false, false, false, false}))
	assert.True(t, Valid(2, []bool{false, false, true, false}))
	assert.False(t, Valid(3, []bool{true, true, true, false}))
	assert.False(t, Valid(-1, []bool{true}))
}

func TestHeuristic(t *testing.T) {
	obs := Observation{Conveyors: [schemas.NumConveyors][]schemas.ItemType{
		{schemas.ItemRed, schemas.ItemRed},
		{schemas.ItemRed},
		{schemas.ItemRed},
	}}
	var h Heuristic

	assert.Equal(t, 1, h.Select(obs, []bool{true, true, true, false}), "least loaded, lowest index on ties")
	assert.Equal(t, 2, h.Select(obs, []bool{true, false, true, false}))
	assert.Equal(t, 0, h.Select(obs, []bool{true, false, false, false}))
}

func TestRandom(t *testing.T) {
	mask := []bool{true, false, true, false}
	a, b := NewRandom(7), NewRandom(7)
	for i := 0; i < 100; i++ {
		got := a.Select(Observation{}, mask)
		assert.True(t, Valid(got, mask))
		assert.Equal(t, got, b.Select(Observation{}, mask), "equal seeds give equal sequences")
	}
}
