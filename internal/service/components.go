// File: internal/service/components.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/dispatcher"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/engine"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/notify"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/observability"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/store"
)

const shutdownTimeout = 30 * time.Second

// -- Interfaces for Dependency Inversion --

// PolicySet is the lifecycle view of the decision policies.
type PolicySet interface {
	engine.Policies
	Close() error
}

// Components holds every initialized part of the coordinator and owns their
// lifecycle.
type Components struct {
	Store      store.Repository
	Policies   PolicySet
	Engine     *engine.Engine
	Notifier   *notify.Notifier
	Journal    *dispatcher.Journal
	Dispatcher *dispatcher.Dispatcher

	// tracingShutdown flushes pending spans; nil when tracing is off.
	tracingShutdown observability.ShutdownFunc
}

// Shutdown releases the components in dependency order: stop the run, flush
// the journal, save the policies, then close tracing and the store.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	// 1. Stop the run so no further ticks execute.
	if c.Engine != nil {
		c.Engine.Stop()
		logger.Debug("Engine stopped.")
	}

	// 2. Flush buffered journal entries while the store is still open.
	if c.Journal != nil {
		done := make(chan struct{})
		go func() {
			c.Journal.Close()
			close(done)
		}()
		if !timedWait(done, shutdownTimeout) {
			logger.Warn("Timed out waiting for the journal to flush.")
		} else {
			logger.Debug("Journal flushed.")
		}
	}

	// 3. Stop the trainers and persist policy snapshots.
	if c.Policies != nil {
		if err := c.Policies.Close(); err != nil {
			logger.Warn("Error while closing policies.", zap.Error(err))
		} else {
			logger.Debug("Policies closed.")
		}
	}

	// 4. Flush spans.
	if c.tracingShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := c.tracingShutdown(ctx); err != nil {
			logger.Warn("Error during tracer shutdown.", zap.Error(err))
		}
	}

	// 5. Close the record store last.
	if c.Store != nil {
		c.Store.Close()
		logger.Debug("Record store closed.")
	}

	logger.Info("All coordinator components shut down.")
}

// timedWait waits for done, giving up after timeout. It reports whether done closed.
func timedWait(done <-chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
