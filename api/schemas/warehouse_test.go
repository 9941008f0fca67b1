package schemas_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
)

func TestItemType(t *testing.T) {
	t.Parallel()
	for i, it := range schemas.ItemTypes {
		assert.True(t, it.Valid())
		assert.Equal(t, i, it.Index())
	}
	assert.False(t, schemas.ItemType(0).Valid())
	assert.False(t, schemas.ItemType(5).Valid())
}

func TestLocation_OnHand(t *testing.T) {
	t.Parallel()
	for _, c := range schemas.Conveyors {
		assert.True(t, c.Location().OnHand(), c.String())
	}
	assert.True(t, schemas.LocationShipment.OnHand())
	assert.False(t, schemas.LocationStuck.OnHand(), "jammed items are not stock")
	assert.False(t, schemas.LocationCompleted.OnHand())
}

func TestDestination_Valid(t *testing.T) {
	t.Parallel()
	assert.True(t, schemas.Destination(0).Valid())
	assert.True(t, schemas.Destination(2).Valid())
	assert.False(t, schemas.Destination(3).Valid())
	assert.False(t, schemas.DestinationTrash.Valid())
}

func TestTactic_Conveyor(t *testing.T) {
	t.Parallel()
	c, ok := schemas.TacticRight.Conveyor()
	assert.True(t, ok)
	assert.Equal(t, schemas.ConveyorRight, c)

	for _, tactic := range []schemas.Tactic{schemas.TacticNoOp, schemas.TacticDiscard} {
		_, ok := tactic.Conveyor()
		assert.False(t, ok, "tactic %d", tactic)
	}
}

func TestOrderStatus_Outstanding(t *testing.T) {
	t.Parallel()
	assert.True(t, schemas.OrderReceived.Outstanding())
	assert.True(t, schemas.OrderShipmentProcessing.Outstanding())
	assert.False(t, schemas.OrderCompleted.Outstanding())
}

func TestProcessPayload_Faults(t *testing.T) {
	t.Parallel()
	p := schemas.ProcessPayload{AnomalyRight: true}
	assert.Equal(t, [schemas.NumConveyors]bool{false, false, true}, p.Faults())
}

func TestDecision_ConveyorFlags(t *testing.T) {
	t.Parallel()
	var d schemas.Decision
	d.SetConveyorFlags(schemas.ConveyorLeft, true, true)
	d.SetConveyorFlags(schemas.ConveyorRight, true, false)

	assert.Equal(t, 1, d.Anomaly(schemas.ConveyorLeft))
	assert.Equal(t, 0, d.Anomaly(schemas.ConveyorMiddle))
	assert.Equal(t, 1, d.Anomaly(schemas.ConveyorRight))
	assert.Equal(t, 1, d.StuckLeft)
	assert.Equal(t, 0, d.StuckRight)
}
