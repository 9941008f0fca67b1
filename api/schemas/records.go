// File: api/schemas/records.go
package schemas

import (
	"encoding/json"
	"time"
)

// -- Domain Records --

// InventoryItem is one physical item tracked through the pipeline.
type InventoryItem struct {
	ID       int64    `json:"id"`
	ItemType ItemType `json:"item_type"`
	Location Location `json:"stored"`
	// Conveyor remembers which Repository conveyor the item was classified onto.
	Conveyor Conveyor  `json:"conveyor"`
	Updated  time.Time `json:"updated"`
}

// Order is a customer request for one item of a type to a destination.
type Order struct {
	ID          int64       `json:"id"`
	Made        time.Time   `json:"made"`
	Completed   *time.Time  `json:"completed,omitempty"`
	ItemType    ItemType    `json:"item_type"`
	Destination Destination `json:"dest"`
	Status      OrderStatus `json:"status"`
}

// Message is the journal entry for one inbound command.
type Message struct {
	ID       string          `json:"id"`
	Sender   Sender          `json:"sender"`
	Title    string          `json:"title"`
	Payload  json.RawMessage `json:"msg,omitempty"`
	Received time.Time       `json:"datetime"`
}
