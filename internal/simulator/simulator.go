// File: internal/simulator/simulator.go
package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/dispatcher"
)

// ErrTickLimit is returned when a run does not end within Options.MaxTicks.
var ErrTickLimit = errors.New("run did not end within the tick limit")

// Dispatcher is the coordinator surface the simulated edges talk to.
type Dispatcher interface {
	Dispatch(ctx context.Context, env schemas.Envelope) (dispatcher.Result, error)
	PlaceOrder(ctx context.Context, req schemas.OrderRequest) (schemas.Order, error)
}

// Options configures one simulated experiment.
type Options struct {
	Experiment string
	Mode       string
	// ManualOrders is the number of random orders placed up front.
	ManualOrders int
	MaxTicks     int
	Seed         int64
}

// Report summarizes a finished run.
type Report struct {
	RunID     string  `json:"run_id"`
	Ticks     int     `json:"ticks"`
	Reward    float64 `json:"reward"`
	Ended     bool    `json:"ended"`
	Completed int     `json:"completed"`
	Discarded int     `json:"discarded"`
	// Denied counts gate polls that found nothing pending.
	Denied    int `json:"denied"`
	Anomalies int `json:"anomaly_ticks"`
}

// Simulator plays the three edge controllers against a dispatcher. Each edge
// keeps its own model of the items it physically holds.
type Simulator struct {
	d      Dispatcher
	logger *zap.Logger

	mu        sync.Mutex
	purchases []schemas.ItemType
	conveyors [schemas.NumConveyors][]schemas.ItemType
	shipment  []schemas.ItemType
	report    Report
}

// New creates a simulator driving d.
func New(d Dispatcher, logger *zap.Logger) (*Simulator, error) {
	if d == nil {
		return nil, errors.New("dispatcher cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Simulator{d: d, logger: logger.Named("simulator")}, nil
}

// Run starts an experiment and ticks it until it ends.
func (s *Simulator) Run(ctx context.Context, opts Options) (Report, error) {
	s.reset()

	start, err := json.Marshal(schemas.StartPayload{ExperimentType: opts.Experiment, DecisionMode: opts.Mode})
	if err != nil {
		return Report{}, err
	}
	res, err := s.d.Dispatch(ctx, schemas.Envelope{Sender: schemas.SenderUser, Title: schemas.TitleStart, Msg: start})
	if err != nil {
		return Report{}, fmt.Errorf("start: %w", err)
	}
	if data, ok := res.Data.(map[string]string); ok {
		s.report.RunID = data["run_id"]
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	for i := 0; i < opts.ManualOrders; i++ {
		req := schemas.OrderRequest{
			ItemType:    schemas.ItemTypes[rng.Intn(schemas.NumItemTypes)],
			Destination: schemas.Destination(rng.Intn(schemas.NumDestinations)),
		}
		if _, err := s.d.PlaceOrder(ctx, req); err != nil {
			return s.snapshot(), fmt.Errorf("order %d: %w", i+1, err)
		}
	}

	for tick := 0; opts.MaxTicks <= 0 || tick < opts.MaxTicks; tick++ {
		if err := ctx.Err(); err != nil {
			return s.snapshot(), err
		}
		d, err := s.process(ctx)
		if err != nil {
			return s.snapshot(), err
		}
		if d.Ended {
			s.mu.Lock()
			s.report.Ended = true
			s.report.Ticks, s.report.Reward = d.Tick, d.Reward
			s.mu.Unlock()
			s.logger.Info("Simulated run ended.", zap.String("run_id", d.RunID),
				zap.Int("ticks", d.Tick), zap.Float64("reward", d.Reward))
			return s.snapshot(), nil
		}
		if err := s.actEdges(ctx); err != nil {
			return s.snapshot(), err
		}
	}
	return s.snapshot(), ErrTickLimit
}

func (s *Simulator) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchases = nil
	s.conveyors = [schemas.NumConveyors][]schemas.ItemType{}
	s.shipment = nil
	s.report = Report{}
}

func (s *Simulator) snapshot() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// process asks for a tick and records what the Classification edge learns
// from the bundle.
func (s *Simulator) process(ctx context.Context) (schemas.Decision, error) {
	res, err := s.d.Dispatch(ctx, schemas.Envelope{Sender: schemas.SenderClassification, Title: schemas.TitleProcess})
	// A failed Stop broadcast on the last tick still carries the summary.
	d, ok := res.Data.(schemas.Decision)
	if err != nil && !(ok && d.Ended) {
		return schemas.Decision{}, fmt.Errorf("process: %w", err)
	}
	if !ok {
		return schemas.Decision{}, fmt.Errorf("process: unexpected reply %T", res.Data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchases = append(s.purchases, d.Purchases...)
	s.report.Ticks, s.report.Reward = d.Tick, d.Reward
	for _, c := range schemas.Conveyors {
		if d.Anomaly(c) == 1 {
			s.report.Anomalies++
			break
		}
	}
	return d, nil
}

// actEdges lets the three edges poll their gates concurrently.
func (s *Simulator) actEdges(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.classificationEdge(gctx) })
	g.Go(func() error { return s.repositoryEdge(gctx) })
	g.Go(func() error { return s.shipmentEdge(gctx) })
	return g.Wait()
}

func (s *Simulator) classificationEdge(ctx context.Context) error {
	res, err := s.d.Dispatch(ctx, schemas.Envelope{Sender: schemas.SenderClassification, Title: schemas.TitleSASCheck})
	if err != nil {
		return fmt.Errorf("classification check: %w", err)
	}
	if res.Outcome == dispatcher.OutcomeDenied {
		s.denied()
		return nil
	}
	tactic := res.Data.(map[string]schemas.Tactic)["c_decision"]
	c, ok := tactic.Conveyor()
	if !ok {
		return fmt.Errorf("classification check: tactic %d is not a conveyor", tactic)
	}

	s.mu.Lock()
	if len(s.purchases) == 0 {
		s.mu.Unlock()
		s.logger.Warn("Routing granted with nothing to route.", zap.Stringer("conveyor", c))
		return nil
	}
	item := s.purchases[0]
	s.purchases = s.purchases[1:]
	s.conveyors[c] = append(s.conveyors[c], item)
	s.mu.Unlock()

	msg, err := json.Marshal(schemas.ClassifiedPayload{ItemType: item, Conveyor: c})
	if err != nil {
		return err
	}
	_, err = s.d.Dispatch(ctx, schemas.Envelope{Sender: schemas.SenderClassification, Title: schemas.TitleClassificationProcessed, Msg: msg})
	return err
}

func (s *Simulator) repositoryEdge(ctx context.Context) error {
	for _, c := range schemas.Conveyors {
		msg, err := json.Marshal(schemas.ConveyorPayload{Conveyor: c})
		if err != nil {
			return err
		}
		res, err := s.d.Dispatch(ctx, schemas.Envelope{Sender: schemas.SenderRepository, Title: schemas.TitleSASCheck, Msg: msg})
		if err != nil {
			return fmt.Errorf("repository check %s: %w", c, err)
		}
		if res.Outcome == dispatcher.OutcomeDenied {
			s.denied()
			continue
		}

		s.mu.Lock()
		if len(s.conveyors[c]) > 0 {
			item := s.conveyors[c][0]
			s.conveyors[c] = s.conveyors[c][1:]
			s.shipment = append(s.shipment, item)
		}
		s.mu.Unlock()

		if _, err := s.d.Dispatch(ctx, schemas.Envelope{Sender: schemas.SenderRepository, Title: schemas.TitleOrderProcessed, Msg: msg}); err != nil {
			return fmt.Errorf("repository processed %s: %w", c, err)
		}
	}
	return nil
}

func (s *Simulator) shipmentEdge(ctx context.Context) error {
	res, err := s.d.Dispatch(ctx, schemas.Envelope{Sender: schemas.SenderShipment, Title: schemas.TitleSASCheck})
	if err != nil {
		return fmt.Errorf("shipment check: %w", err)
	}
	if res.Outcome == dispatcher.OutcomeDenied {
		s.denied()
		return nil
	}
	dest := res.Data.(map[string]schemas.Tactic)["s_decision"]

	s.mu.Lock()
	if len(s.shipment) == 0 {
		s.mu.Unlock()
		s.logger.Warn("Shipment granted with an empty queue.", zap.Int("dest", int(dest)))
		return nil
	}
	item := s.shipment[0]
	s.shipment = s.shipment[1:]
	if dest == schemas.TacticDiscard {
		s.report.Discarded++
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	msg, err := json.Marshal(schemas.ShippedPayload{ItemType: item, Destination: schemas.Destination(dest)})
	if err != nil {
		return err
	}
	res, err = s.d.Dispatch(ctx, schemas.Envelope{Sender: schemas.SenderShipment, Title: schemas.TitleOrderProcessed, Msg: msg})
	if err != nil {
		return fmt.Errorf("shipment processed: %w", err)
	}
	if data, ok := res.Data.(map[string]bool); ok && data["matched"] {
		s.mu.Lock()
		s.report.Completed++
		s.mu.Unlock()
	}
	return nil
}

func (s *Simulator) denied() {
	s.mu.Lock()
	s.report.Denied++
	s.mu.Unlock()
}
