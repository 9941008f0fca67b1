// File: api/schemas/warehouse.go
package schemas

import "fmt"

// -- Item Types --

// ItemType identifies the colour class an item is sorted by.
type ItemType int

const (
	ItemRed    ItemType = 1
	ItemWhite  ItemType = 2
	ItemYellow ItemType = 3
	ItemBlue   ItemType = 4
)

// ItemTypes lists every valid item type in index order.
var ItemTypes = [...]ItemType{ItemRed, ItemWhite, ItemYellow, ItemBlue}

// NumItemTypes is the size of per-type counter arrays.
const NumItemTypes = len(ItemTypes)

func (t ItemType) String() string {
	switch t {
	case ItemRed:
		return "Red"
	case ItemWhite:
		return "White"
	case ItemYellow:
		return "Yellow"
	case ItemBlue:
		return "Blue"
	default:
		return fmt.Sprintf("ItemType(%d)", int(t))
	}
}

// Valid reports whether t is one of the four known item types.
func (t ItemType) Valid() bool {
	return t >= ItemRed && t <= ItemBlue
}

// Index maps an item type onto a zero-based counter slot.
func (t ItemType) Index() int {
	return int(t) - 1
}

// -- Conveyors and Locations --

// Conveyor is one of the three parallel Repository-stage buffers.
type Conveyor int

const (
	ConveyorLeft   Conveyor = 0
	ConveyorMiddle Conveyor = 1
	ConveyorRight  Conveyor = 2
)

// NumConveyors is the number of Repository conveyors.
const NumConveyors = 3

// Conveyors lists the conveyors in index order.
var Conveyors = [NumConveyors]Conveyor{ConveyorLeft, ConveyorMiddle, ConveyorRight}

// RepositoryPriority is the fixed order in which the engine considers advancing conveyors.
var RepositoryPriority = [NumConveyors]Conveyor{ConveyorMiddle, ConveyorLeft, ConveyorRight}

func (c Conveyor) String() string {
	switch c {
	case ConveyorLeft:
		return "Left"
	case ConveyorMiddle:
		return "Middle"
	case ConveyorRight:
		return "Right"
	default:
		return fmt.Sprintf("Conveyor(%d)", int(c))
	}
}

// Valid reports whether c names a real conveyor.
func (c Conveyor) Valid() bool {
	return c >= ConveyorLeft && c <= ConveyorRight
}

// Location returns the inventory location matching the conveyor.
func (c Conveyor) Location() Location {
	return Location(c)
}

// Location is where an inventory item currently sits.
type Location int

const (
	LocationLeft      Location = 0
	LocationMiddle    Location = 1
	LocationRight     Location = 2
	LocationShipment  Location = 3
	LocationStuck     Location = 4
	LocationCompleted Location = 5
)

func (l Location) String() string {
	switch l {
	case LocationLeft:
		return "Left"
	case LocationMiddle:
		return "Middle"
	case LocationRight:
		return "Right"
	case LocationShipment:
		return "Shipment"
	case LocationStuck:
		return "Stuck"
	case LocationCompleted:
		return "Completed"
	default:
		return fmt.Sprintf("Location(%d)", int(l))
	}
}

// OnHand reports whether an item at this location counts as available stock.
// Jammed and shipped items do not.
func (l Location) OnHand() bool {
	return l >= LocationLeft && l <= LocationShipment
}

// -- Orders --

// OrderStatus tracks an order through the pipeline.
type OrderStatus int

const (
	OrderReceived             OrderStatus = 1
	OrderRepositoryProcessing OrderStatus = 2
	OrderShipmentProcessing   OrderStatus = 3
	OrderCompleted            OrderStatus = 4
)

func (s OrderStatus) String() string {
	switch s {
	case OrderReceived:
		return "Order Received"
	case OrderRepositoryProcessing:
		return "Repository Processing"
	case OrderShipmentProcessing:
		return "Shipment Processing"
	case OrderCompleted:
		return "Order Completed"
	default:
		return fmt.Sprintf("OrderStatus(%d)", int(s))
	}
}

// Outstanding reports whether the order still waits on the warehouse.
func (s OrderStatus) Outstanding() bool {
	return s != OrderCompleted
}

// Destination is a shipping lane at the Shipment station.
type Destination int

// DestinationTrash is the pseudo-destination for force-discarded items.
const DestinationTrash Destination = -1

// NumDestinations is the number of real shipping lanes.
const NumDestinations = 3

// Valid reports whether d is a real shipping lane.
func (d Destination) Valid() bool {
	return d >= 0 && d < NumDestinations
}

func (d Destination) String() string {
	if d == DestinationTrash {
		return "trash"
	}
	return fmt.Sprintf("lane-%d", int(d))
}

// -- Tactics --

// Tactic is the decision output of a stage.
// 0-2 select a conveyor (or a shipping lane at Shipment), 3 is a no-op and
// -1 discards at Shipment.
type Tactic int

const (
	TacticLeft    Tactic = 0
	TacticMiddle  Tactic = 1
	TacticRight   Tactic = 2
	TacticNoOp    Tactic = 3
	TacticDiscard Tactic = -1
)

// NumTactics is the width of a Classification availability mask.
const NumTactics = 4

// Conveyor converts a conveyor tactic into its conveyor.
func (t Tactic) Conveyor() (Conveyor, bool) {
	if t < TacticLeft || t > TacticRight {
		return 0, false
	}
	return Conveyor(t), true
}
