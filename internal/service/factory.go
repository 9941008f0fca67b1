// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/config"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/dispatcher"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/engine"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/notify"
)

// ComponentFactory creates the full set of coordinator components. The
// abstraction lets commands be tested without a database or edges.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct{}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create wires the coordinator. ctx bounds initialization and the journal
// consumer; cancelling it later makes the journal drain and stop.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	components := &Components{}

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Tracing, first so every later component reports spans.
	shutdownTracing, err := InitializeTracing(ctx, cfg, logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.tracingShutdown = shutdownTracing

	// 2. Record store
	st, err := InitializeStore(ctx, cfg.Database(), logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.Store = st
	logger.Debug("Record store initialized.")

	// 3. Decision policies
	policies, err := InitializePolicies(cfg, logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.Policies = policies
	logger.Debug("Decision policies initialized.")

	// 4. Engine
	eng, err := engine.New(cfg.Warehouse(), logger, st, policies)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize engine: %w", err)
		return nil, initializationErr
	}
	components.Engine = eng

	// 5. Edge notifier
	components.Notifier = notify.New(cfg.Edges(), logger)

	// 6. Message journal and its consumer
	components.Journal = dispatcher.NewJournal(st, logger)
	components.Journal.Start(ctx)
	logger.Debug("Message journal consumer started.")

	// 7. Dispatcher
	d, err := dispatcher.New(eng, components.Notifier, components.Journal, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize dispatcher: %w", err)
		return nil, initializationErr
	}
	components.Dispatcher = d

	logger.Info("Coordinator components initialized.")
	return components, nil
}
