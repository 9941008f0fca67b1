// File: api/schemas/messages.go
package schemas

import (
	"encoding/json"
	"fmt"
)

// -- Protocol Vocabulary --

// Sender identifies who sent a message. Values match the edge protocol.
type Sender int

const (
	SenderUser           Sender = 0
	SenderCloud          Sender = 1
	SenderClassification Sender = 11
	SenderRepository     Sender = 12
	SenderShipment       Sender = 13
)

func (s Sender) String() string {
	switch s {
	case SenderUser:
		return "User"
	case SenderCloud:
		return "Cloud"
	case SenderClassification:
		return "[Edge] Classification"
	case SenderRepository:
		return "[Edge] Repository"
	case SenderShipment:
		return "[Edge] Shipment"
	default:
		return fmt.Sprintf("Sender(%d)", int(s))
	}
}

// Message titles understood by the coordinator.
const (
	TitleStart                   = "Start"
	TitleStop                    = "Stop"
	TitleProcess                 = "Process"
	TitleClassificationProcessed = "Classification Processed"
	TitleSASCheck                = "SAS Check"
	TitleOrderProcessed          = "Order Processed"
	TitleAnomalyOccurred         = "Anomaly Occurred"
	TitleAnomalySolved           = "Anomaly Solved"

	// Outbound titles sent from the coordinator to edge controllers.
	TitleOrderCreated = "Order Created"
)

// Envelope is the wire form of a message in either direction.
type Envelope struct {
	Sender Sender          `json:"sender"`
	Title  string          `json:"title"`
	Msg    json.RawMessage `json:"msg,omitempty"`
}

// -- Payloads --

// StartPayload configures a new experiment run.
type StartPayload struct {
	ExperimentType string `json:"experiment_type"`
	DecisionMode   string `json:"dm_type"`
}

// ProcessPayload carries fault flags observed by the edge for this tick.
type ProcessPayload struct {
	AnomalyLeft   bool `json:"anomaly_0"`
	AnomalyMiddle bool `json:"anomaly_1"`
	AnomalyRight  bool `json:"anomaly_2"`
}

// Faults returns the flags indexed by conveyor.
func (p ProcessPayload) Faults() [NumConveyors]bool {
	return [NumConveyors]bool{p.AnomalyLeft, p.AnomalyMiddle, p.AnomalyRight}
}

// ItemPayload names an item type.
type ItemPayload struct {
	ItemType ItemType `json:"item_type"`
}

// ConveyorPayload names a Repository conveyor.
type ConveyorPayload struct {
	Conveyor Conveyor `json:"stored"`
}

// ClassifiedPayload reports an item placed on a conveyor.
type ClassifiedPayload struct {
	ItemType ItemType `json:"item_type"`
	Conveyor Conveyor `json:"stored"`
}

// ShippedPayload reports an item dispatched to a destination.
type ShippedPayload struct {
	ItemType    ItemType    `json:"item_type"`
	Destination Destination `json:"dest"`
}

// OrderRequest is the body of an order intake request.
type OrderRequest struct {
	ItemType    ItemType    `json:"item_type"`
	Destination Destination `json:"dest"`
}
