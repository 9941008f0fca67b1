// File: internal/gate/gate.go
package gate

import (
	"fmt"
	"sync"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
)

// Stage names a pipeline station that holds a gate.
type Stage int

const (
	Classification Stage = iota
	Repository
	Shipment
)

func (s Stage) String() string {
	switch s {
	case Classification:
		return "classification"
	case Repository:
		return "repository"
	case Shipment:
		return "shipment"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Set is the three one-shot gates published by one tick.
// A gate holds a decision until the matching edge consumes it with a check,
// or the next tick overwrites it.
type Set struct {
	mu sync.Mutex

	classification    schemas.Tactic
	hasClassification bool
	repository        [schemas.NumConveyors]bool
	shipment          schemas.Tactic
	hasShipment       bool
}

// Decision is the value published for all three stages at once.
type Decision struct {
	// Classification is the chosen conveyor; TacticNoOp publishes nothing.
	Classification schemas.Tactic
	Repository     [schemas.NumConveyors]bool
	// Shipment is a destination lane or TacticDiscard; TacticNoOp publishes nothing.
	Shipment schemas.Tactic
}

// Publish overwrites every gate with d. Unconsumed values from the previous
// tick are discarded.
func (g *Set) Publish(d Decision) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.classification, g.hasClassification = d.Classification, d.Classification != schemas.TacticNoOp
	g.repository = d.Repository
	g.shipment, g.hasShipment = d.Shipment, d.Shipment != schemas.TacticNoOp
}

// Clear closes every gate.
func (g *Set) Clear() {
	g.Publish(Decision{Classification: schemas.TacticNoOp, Shipment: schemas.TacticNoOp})
}

// CheckClassification consumes the Classification gate.
func (g *Set) CheckClassification() (schemas.Tactic, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.hasClassification {
		return schemas.TacticNoOp, false
	}
	g.hasClassification = false
	return g.classification, true
}

// CheckRepository consumes the permission for conveyor c.
func (g *Set) CheckRepository(c schemas.Conveyor) bool {
	if !c.Valid() {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.repository[c] {
		return false
	}
	g.repository[c] = false
	return true
}

// CheckShipment consumes the Shipment gate and returns the destination.
func (g *Set) CheckShipment() (schemas.Tactic, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.hasShipment {
		return schemas.TacticNoOp, false
	}
	g.hasShipment = false
	return g.shipment, true
}

// Pending reports which gates still hold an unconsumed value.
func (g *Set) Pending() (classification bool, repository [schemas.NumConveyors]bool, shipment bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hasClassification, g.repository, g.hasShipment
}
