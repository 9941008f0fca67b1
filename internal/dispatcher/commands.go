// File: internal/dispatcher/commands.go
package dispatcher

import (
	"errors"
	"fmt"

	json "github.com/json-iterator/go"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
)

var (
	// ErrUnknownCommand is returned for a sender and title pair outside the protocol.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMalformedPayload is returned when a message body does not decode or
	// carries out-of-range values.
	ErrMalformedPayload = errors.New("malformed payload")
)

// Command is one decoded inbound message. The set of implementations is
// closed; Decode is the only way to build one from the wire.
type Command interface {
	command()
}

// Start begins a new experiment run.
type Start struct {
	Experiment string
	Mode       string
}

// Stop freezes the current run.
type Stop struct{}

// Process asks for one tick.
type Process struct {
	Faults [schemas.NumConveyors]bool
}

// Classified reports an item placed on a Repository conveyor.
type Classified struct {
	ItemType schemas.ItemType
	Conveyor schemas.Conveyor
}

// ClassificationCheck polls the Classification gate.
type ClassificationCheck struct {
	ItemType schemas.ItemType
}

// RepositoryProcessed reports an item moved from a conveyor to Shipment.
type RepositoryProcessed struct {
	Conveyor schemas.Conveyor
}

// RepositoryCheck polls the grant for one conveyor.
type RepositoryCheck struct {
	Conveyor schemas.Conveyor
}

// AnomalyOccurred reports a conveyor fault.
type AnomalyOccurred struct {
	Conveyor schemas.Conveyor
}

// AnomalySolved withdraws a conveyor fault report.
type AnomalySolved struct {
	Conveyor schemas.Conveyor
}

// Shipped reports an item dispatched to a destination.
type Shipped struct {
	ItemType    schemas.ItemType
	Destination schemas.Destination
}

// ShipmentCheck polls the Shipment gate.
type ShipmentCheck struct {
	ItemType schemas.ItemType
}

func (Start) command()               {}
func (Stop) command()                {}
func (Process) command()             {}
func (Classified) command()          {}
func (ClassificationCheck) command() {}
func (RepositoryProcessed) command() {}
func (RepositoryCheck) command()     {}
func (AnomalyOccurred) command()     {}
func (AnomalySolved) command()       {}
func (Shipped) command()             {}
func (ShipmentCheck) command()       {}

type commandKey struct {
	sender schemas.Sender
	title  string
}

type decoder func(msg []byte) (Command, error)

var decoders = map[commandKey]decoder{
	{schemas.SenderUser, schemas.TitleStart}: decodeStart,
	{schemas.SenderUser, schemas.TitleStop}:  func([]byte) (Command, error) { return Stop{}, nil },

	{schemas.SenderClassification, schemas.TitleProcess}:                 decodeProcess,
	{schemas.SenderClassification, schemas.TitleClassificationProcessed}: decodeClassified,
	{schemas.SenderClassification, schemas.TitleSASCheck}:                decodeClassificationCheck,

	{schemas.SenderRepository, schemas.TitleOrderProcessed}:  conveyorCommand(func(c schemas.Conveyor) Command { return RepositoryProcessed{Conveyor: c} }),
	{schemas.SenderRepository, schemas.TitleSASCheck}:        conveyorCommand(func(c schemas.Conveyor) Command { return RepositoryCheck{Conveyor: c} }),
	{schemas.SenderRepository, schemas.TitleAnomalyOccurred}: conveyorCommand(func(c schemas.Conveyor) Command { return AnomalyOccurred{Conveyor: c} }),
	{schemas.SenderRepository, schemas.TitleAnomalySolved}:   conveyorCommand(func(c schemas.Conveyor) Command { return AnomalySolved{Conveyor: c} }),

	{schemas.SenderShipment, schemas.TitleOrderProcessed}: decodeShipped,
	{schemas.SenderShipment, schemas.TitleSASCheck}:       decodeShipmentCheck,
}

// Decode turns an envelope into a typed command. It never touches run state.
func Decode(env schemas.Envelope) (Command, error) {
	dec, ok := decoders[commandKey{env.Sender, env.Title}]
	if !ok {
		return nil, fmt.Errorf("%w: %s / %q", ErrUnknownCommand, env.Sender, env.Title)
	}
	cmd, err := dec(env.Msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s / %q: %v", ErrMalformedPayload, env.Sender, env.Title, err)
	}
	return cmd, nil
}

// unmarshal decodes msg into v. An absent body leaves v zeroed.
func unmarshal(msg []byte, v interface{}) error {
	if len(msg) == 0 || string(msg) == "null" {
		return nil
	}
	return json.Unmarshal(msg, v)
}

func decodeStart(msg []byte) (Command, error) {
	var p schemas.StartPayload
	if err := unmarshal(msg, &p); err != nil {
		return nil, err
	}
	if p.ExperimentType == "" || p.DecisionMode == "" {
		return nil, errors.New("experiment_type and dm_type are required")
	}
	return Start{Experiment: p.ExperimentType, Mode: p.DecisionMode}, nil
}

func decodeProcess(msg []byte) (Command, error) {
	var p schemas.ProcessPayload
	if err := unmarshal(msg, &p); err != nil {
		return nil, err
	}
	return Process{Faults: p.Faults()}, nil
}

func decodeClassified(msg []byte) (Command, error) {
	var p schemas.ClassifiedPayload
	if err := unmarshal(msg, &p); err != nil {
		return nil, err
	}
	if err := validItem(p.ItemType); err != nil {
		return nil, err
	}
	if err := validConveyor(p.Conveyor); err != nil {
		return nil, err
	}
	return Classified{ItemType: p.ItemType, Conveyor: p.Conveyor}, nil
}

func decodeClassificationCheck(msg []byte) (Command, error) {
	t, err := optionalItem(msg)
	if err != nil {
		return nil, err
	}
	return ClassificationCheck{ItemType: t}, nil
}

func decodeShipmentCheck(msg []byte) (Command, error) {
	t, err := optionalItem(msg)
	if err != nil {
		return nil, err
	}
	return ShipmentCheck{ItemType: t}, nil
}

// optionalItem decodes the item_type carried by gate polls. Edges may omit it,
// but a value that is present must be in range.
func optionalItem(msg []byte) (schemas.ItemType, error) {
	var p schemas.ItemPayload
	if err := unmarshal(msg, &p); err != nil {
		return 0, err
	}
	if p.ItemType != 0 {
		if err := validItem(p.ItemType); err != nil {
			return 0, err
		}
	}
	return p.ItemType, nil
}

func conveyorCommand(build func(schemas.Conveyor) Command) decoder {
	return func(msg []byte) (Command, error) {
		if len(msg) == 0 {
			return nil, errors.New("stored is required")
		}
		var p schemas.ConveyorPayload
		if err := unmarshal(msg, &p); err != nil {
			return nil, err
		}
		if err := validConveyor(p.Conveyor); err != nil {
			return nil, err
		}
		return build(p.Conveyor), nil
	}
}

func decodeShipped(msg []byte) (Command, error) {
	var p schemas.ShippedPayload
	if err := unmarshal(msg, &p); err != nil {
		return nil, err
	}
	if err := validItem(p.ItemType); err != nil {
		return nil, err
	}
	if !p.Destination.Valid() {
		return nil, fmt.Errorf("dest %d out of range", p.Destination)
	}
	return Shipped{ItemType: p.ItemType, Destination: p.Destination}, nil
}

func validItem(t schemas.ItemType) error {
	if !t.Valid() {
		return fmt.Errorf("item_type %d out of range", t)
	}
	return nil
}

func validConveyor(c schemas.Conveyor) error {
	if !c.Valid() {
		return fmt.Errorf("stored %d out of range", c)
	}
	return nil
}
