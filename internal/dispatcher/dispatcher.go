// File: internal/dispatcher/dispatcher.go
package dispatcher

import (
	"context"
	"errors"
	"fmt"

	json "github.com/json-iterator/go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/engine"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/observability"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/policy"
)

// Outcome classifies how a command was handled.
type Outcome string

const (
	// OutcomeOK means the command was applied, or acknowledged with nothing to do.
	OutcomeOK Outcome = "ok"
	// OutcomeDenied means a gate poll found nothing pending. It is not an error.
	OutcomeDenied Outcome = "denied"
	// OutcomeRejected means the command was refused without touching run state.
	OutcomeRejected Outcome = "rejected"
	// OutcomeError means the command failed inside the coordinator.
	OutcomeError Outcome = "error"
)

// Result is the reply to one dispatched command.
type Result struct {
	Outcome   Outcome     `json:"status"`
	MessageID string      `json:"message_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// -- Interfaces for Dependency Inversion --

// Engine is the coordinator surface the dispatcher drives.
type Engine interface {
	Start(ctx context.Context, experiment, mode string) (string, error)
	Stop()
	Status() schemas.RunStatus
	Process(ctx context.Context, faults [schemas.NumConveyors]bool) (schemas.Decision, error)

	ClassificationProcessed(ctx context.Context, t schemas.ItemType, c schemas.Conveyor) (schemas.InventoryItem, error)
	RepositoryProcessed(ctx context.Context, c schemas.Conveyor) (bool, error)
	ShipmentProcessed(ctx context.Context, t schemas.ItemType, dest schemas.Destination) (bool, error)
	AnomalyOccurred(c schemas.Conveyor) (bool, error)
	AnomalySolved(c schemas.Conveyor) error

	CheckClassification() (schemas.Tactic, bool)
	CheckRepository(c schemas.Conveyor) bool
	CheckShipment() (schemas.Tactic, bool)

	CreateOrder(ctx context.Context, t schemas.ItemType, dest schemas.Destination) (schemas.Order, error)
	AcceptOrder(ctx context.Context, id int64) (schemas.Order, error)
}

// Notifier delivers coordinator messages to edge controllers.
type Notifier interface {
	Broadcast(ctx context.Context, env schemas.Envelope, edges ...schemas.Sender) error
}

// Dispatcher routes inbound messages to the engine. Engine calls hold the run
// lock only for their own duration; edge notifications happen after they return.
type Dispatcher struct {
	engine   Engine
	notifier Notifier
	journal  *Journal
	logger   *zap.Logger
}

// New creates a dispatcher. journal may be nil to disable message journaling.
func New(eng Engine, notifier Notifier, journal *Journal, logger *zap.Logger) (*Dispatcher, error) {
	if eng == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if notifier == nil {
		return nil, errors.New("notifier cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Dispatcher{
		engine:   eng,
		notifier: notifier,
		journal:  journal,
		logger:   logger.With(zap.String("component", "dispatcher")),
	}, nil
}

// Status returns the current run snapshot.
func (d *Dispatcher) Status() schemas.RunStatus {
	return d.engine.Status()
}

// Dispatch handles one inbound message. A non-nil error accompanies every
// rejected or failed outcome. It also accompanies an applied command whose
// follow-up edge notification failed; the state change stands in that case.
func (d *Dispatcher) Dispatch(ctx context.Context, env schemas.Envelope) (Result, error) {
	ctx, span := observability.Tracer().Start(ctx, "dispatcher.Dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.Int("sender", int(env.Sender)),
		attribute.String("title", env.Title),
	)

	var id string
	if d.journal != nil {
		id = d.journal.Record(env)
	}

	res, err := d.dispatch(ctx, env)
	res.MessageID = id
	span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
	if err != nil {
		span.RecordError(err)
		if res.Outcome != OutcomeOK {
			span.SetStatus(codes.Error, err.Error())
		}
		d.logger.Warn("Command not applied cleanly.",
			zap.Stringer("sender", env.Sender), zap.String("title", env.Title),
			zap.String("outcome", string(res.Outcome)), zap.Error(err))
	}
	return res, err
}

func (d *Dispatcher) dispatch(ctx context.Context, env schemas.Envelope) (Result, error) {
	cmd, err := Decode(env)
	if err != nil {
		return Result{Outcome: OutcomeRejected}, err
	}

	switch c := cmd.(type) {
	case Start:
		runID, err := d.engine.Start(ctx, c.Experiment, c.Mode)
		if err != nil {
			return failure(err)
		}
		return Result{Outcome: OutcomeOK, Data: map[string]string{"run_id": runID}}, nil

	case Stop:
		d.engine.Stop()
		return Result{Outcome: OutcomeOK}, d.broadcastStop(ctx)

	case Process:
		decision, err := d.engine.Process(ctx, c.Faults)
		if err != nil {
			return failure(err)
		}
		res := Result{Outcome: OutcomeOK, Data: decision}
		if decision.Ended {
			d.logger.Info("Experiment ended.", zap.String("run_id", decision.RunID),
				zap.Int("tick", decision.Tick), zap.Float64("reward", decision.Reward))
			return res, d.broadcastStop(ctx)
		}
		return res, nil

	case Classified:
		item, err := d.engine.ClassificationProcessed(ctx, c.ItemType, c.Conveyor)
		if err != nil {
			return failure(err)
		}
		return Result{Outcome: OutcomeOK, Data: item}, nil

	case ClassificationCheck:
		tactic, ok := d.engine.CheckClassification()
		if !ok {
			return Result{Outcome: OutcomeDenied}, nil
		}
		return Result{Outcome: OutcomeOK, Data: map[string]schemas.Tactic{"c_decision": tactic}}, nil

	case RepositoryProcessed:
		matched, err := d.engine.RepositoryProcessed(ctx, c.Conveyor)
		if err != nil {
			return failure(err)
		}
		return Result{Outcome: OutcomeOK, Data: map[string]bool{"matched": matched}}, nil

	case RepositoryCheck:
		if !d.engine.CheckRepository(c.Conveyor) {
			return Result{Outcome: OutcomeDenied}, nil
		}
		return Result{Outcome: OutcomeOK, Data: map[string]bool{"granted": true}}, nil

	case AnomalyOccurred:
		accepted, err := d.engine.AnomalyOccurred(c.Conveyor)
		if err != nil {
			return failure(err)
		}
		return Result{Outcome: OutcomeOK, Data: map[string]bool{"accepted": accepted}}, nil

	case AnomalySolved:
		if err := d.engine.AnomalySolved(c.Conveyor); err != nil {
			return failure(err)
		}
		return Result{Outcome: OutcomeOK}, nil

	case Shipped:
		matched, err := d.engine.ShipmentProcessed(ctx, c.ItemType, c.Destination)
		if err != nil {
			return failure(err)
		}
		return Result{Outcome: OutcomeOK, Data: map[string]bool{"matched": matched}}, nil

	case ShipmentCheck:
		dest, ok := d.engine.CheckShipment()
		if !ok {
			return Result{Outcome: OutcomeDenied}, nil
		}
		return Result{Outcome: OutcomeOK, Data: map[string]schemas.Tactic{"s_decision": dest}}, nil
	}
	return Result{Outcome: OutcomeRejected}, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
}

// PlaceOrder records a customer order, tells the Repository and Shipment
// edges about it and releases it for processing. A notification failure is
// returned alongside the accepted order.
func (d *Dispatcher) PlaceOrder(ctx context.Context, req schemas.OrderRequest) (schemas.Order, error) {
	ctx, span := observability.Tracer().Start(ctx, "dispatcher.PlaceOrder")
	defer span.End()

	o, err := d.engine.CreateOrder(ctx, req.ItemType, req.Destination)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return schemas.Order{}, err
	}
	span.SetAttributes(attribute.Int64("order_id", o.ID))

	body, err := json.Marshal(o)
	if err != nil {
		return o, fmt.Errorf("failed to encode order %d: %w", o.ID, err)
	}
	notifyErr := d.notifier.Broadcast(ctx,
		schemas.Envelope{Sender: schemas.SenderCloud, Title: schemas.TitleOrderCreated, Msg: body},
		schemas.SenderRepository, schemas.SenderShipment)
	if notifyErr != nil {
		span.RecordError(notifyErr)
		d.logger.Warn("Order recorded but edges were not all notified.", zap.Int64("order_id", o.ID), zap.Error(notifyErr))
	}

	accepted, err := d.engine.AcceptOrder(ctx, o.ID)
	if err != nil {
		return o, fmt.Errorf("failed to accept order %d: %w", o.ID, err)
	}
	return accepted, notifyErr
}

func (d *Dispatcher) broadcastStop(ctx context.Context) error {
	return d.notifier.Broadcast(ctx, schemas.Envelope{Sender: schemas.SenderCloud, Title: schemas.TitleStop})
}

// failure maps engine errors onto an outcome. Argument and run-state errors
// are the caller's fault and leave state untouched.
func failure(err error) (Result, error) {
	if IsRejection(err) {
		return Result{Outcome: OutcomeRejected}, err
	}
	return Result{Outcome: OutcomeError}, err
}

// IsRejection reports whether err means the command was refused as invalid.
func IsRejection(err error) bool {
	return errors.Is(err, ErrUnknownCommand) ||
		errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, engine.ErrNotRunning) ||
		errors.Is(err, engine.ErrInvalidArgument) ||
		errors.Is(err, engine.ErrUnknownExperiment) ||
		errors.Is(err, policy.ErrUnknownMode)
}
