// File: api/schemas/decision.go
package schemas

// Decision is the bundle returned for one engine tick.
// A bundle with Ended set is a termination summary; only Tick, Reward and
// RunID are meaningful then.
type Decision struct {
	RunID  string  `json:"run_id"`
	Tick   int     `json:"tick"`
	Reward float64 `json:"reward"`
	Ended  bool    `json:"ended"`

	AnomalyLeft   int `json:"anomaly_left"`
	AnomalyMiddle int `json:"anomaly_middle"`
	AnomalyRight  int `json:"anomaly_right"`
	StuckLeft     int `json:"stuck_left"`
	StuckMiddle   int `json:"stuck_middle"`
	StuckRight    int `json:"stuck_right"`

	Classification Tactic             `json:"c_decision"`
	Repository     [NumConveyors]bool `json:"r_decision"`
	// Shipment holds a destination lane, TacticDiscard, or TacticNoOp.
	Shipment Tactic `json:"s_decision"`

	Purchases    []ItemType        `json:"purchases"`
	InFlight     [NumItemTypes]int `json:"in_flight"`
	Loads        [NumConveyors]int `json:"loads"`
	ShipmentLoad int               `json:"shipment_load"`
	Outstanding  int               `json:"outstanding"`
	// NewOrders lists orders generated by the engine during this tick.
	NewOrders []Order `json:"new_orders,omitempty"`
}

// SetConveyorFlags records the anomaly and stuck flags for one conveyor.
func (d *Decision) SetConveyorFlags(c Conveyor, anomalous, stuck bool) {
	a, s := boolToInt(anomalous), boolToInt(stuck)
	switch c {
	case ConveyorLeft:
		d.AnomalyLeft, d.StuckLeft = a, s
	case ConveyorMiddle:
		d.AnomalyMiddle, d.StuckMiddle = a, s
	case ConveyorRight:
		d.AnomalyRight, d.StuckRight = a, s
	}
}

// Anomaly returns the anomaly flag reported for conveyor c.
func (d Decision) Anomaly(c Conveyor) int {
	switch c {
	case ConveyorLeft:
		return d.AnomalyLeft
	case ConveyorMiddle:
		return d.AnomalyMiddle
	case ConveyorRight:
		return d.AnomalyRight
	}
	return 0
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ConveyorStatus is the externally visible anomaly state of one conveyor.
type ConveyorStatus struct {
	Conveyor  Conveyor `json:"conveyor"`
	Anomalous bool     `json:"anomalous"`
	Stuck     bool     `json:"stuck"`
	OnsetTick *int     `json:"onset_tick,omitempty"`
	Load      int      `json:"load"`
}

// RunStatus is a read-only snapshot of the engine run state.
type RunStatus struct {
	RunID          string            `json:"run_id"`
	Running        bool              `json:"running"`
	ExperimentType string            `json:"experiment_type"`
	DecisionMode   string            `json:"dm_type"`
	Tick           int               `json:"tick"`
	Reward         float64           `json:"reward"`
	InFlight       [NumItemTypes]int `json:"in_flight"`
	Conveyors      []ConveyorStatus  `json:"conveyors"`
	ShipmentLoad   int               `json:"shipment_load"`
}
