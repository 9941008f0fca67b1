// File: internal/dispatcher/journal.go
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
)

const (
	journalBuffer       = 1024
	journalBatchSize    = 50
	journalBatchTimeout = 2 * time.Second
	journalPersistLimit = 30 * time.Second
)

// MessageAppender persists a batch of journal entries.
type MessageAppender interface {
	AppendMessages(ctx context.Context, msgs []schemas.Message) error
}

// Journal records every inbound message off the request path. Entries are
// buffered and written in batches by a single consumer goroutine.
type Journal struct {
	entries chan schemas.Message
	store   MessageAppender
	logger  *zap.Logger
	now     func() time.Time

	batchSize    int
	batchTimeout time.Duration

	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewJournal creates a journal writing to st. Call Start to begin persisting.
func NewJournal(st MessageAppender, logger *zap.Logger) *Journal {
	return &Journal{
		entries:      make(chan schemas.Message, journalBuffer),
		store:        st,
		logger:       logger.Named("journal"),
		now:          time.Now,
		batchSize:    journalBatchSize,
		batchTimeout: journalBatchTimeout,
	}
}

// Record queues env for persistence and returns the journal id. A full buffer
// drops the entry rather than stall the handler.
func (j *Journal) Record(env schemas.Envelope) string {
	msg := schemas.Message{
		ID:       uuid.NewString(),
		Sender:   env.Sender,
		Title:    env.Title,
		Payload:  env.Msg,
		Received: j.now(),
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return msg.ID
	}
	select {
	case j.entries <- msg:
	default:
		j.logger.Warn("Journal buffer full, dropping message.",
			zap.String("message_id", msg.ID), zap.String("title", msg.Title))
	}
	return msg.ID
}

// Start runs the batching consumer until Close is called or ctx is done.
func (j *Journal) Start(ctx context.Context) {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.logger.Debug("Journal consumer started.")
		defer j.logger.Debug("Journal consumer shut down.")

		batch := make([]schemas.Message, 0, j.batchSize)
		ticker := time.NewTicker(j.batchTimeout)
		defer ticker.Stop()

		flush := func() {
			if len(batch) == 0 {
				return
			}
			// Persistence outlives the caller's context so a shutdown still flushes.
			persistCtx, cancel := context.WithTimeout(context.Background(), journalPersistLimit)
			defer cancel()
			if err := j.store.AppendMessages(persistCtx, batch); err != nil {
				j.logger.Error("Failed to persist journal batch.", zap.Error(err), zap.Int("batch_size", len(batch)))
			}
			batch = batch[:0]
		}

		for {
			select {
			case msg, ok := <-j.entries:
				if !ok {
					flush()
					return
				}
				batch = append(batch, msg)
				if len(batch) >= j.batchSize {
					flush()
					ticker.Reset(j.batchTimeout)
				}
			case <-ticker.C:
				flush()
			case <-ctx.Done():
				j.drain(&batch)
				flush()
				return
			}
		}
	}()
}

// drain moves whatever is still buffered into the batch without blocking.
func (j *Journal) drain(batch *[]schemas.Message) {
	for {
		select {
		case msg, ok := <-j.entries:
			if !ok {
				return
			}
			*batch = append(*batch, msg)
		default:
			return
		}
	}
}

// Close stops accepting entries and waits for the consumer to flush.
func (j *Journal) Close() {
	j.closeOnce.Do(func() {
		j.mu.Lock()
		j.closed = true
		close(j.entries)
		j.mu.Unlock()
	})
	j.wg.Wait()
}
