// File: internal/server/types.go
package server

import (
	"context"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/dispatcher"
)

// CommandResponse is the JSON envelope of every API reply.
type CommandResponse struct {
	Status    string      `json:"status"` // "ok", "denied", "rejected", "error"
	MessageID string      `json:"message_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Dispatcher is the command surface served over HTTP.
type Dispatcher interface {
	Dispatch(ctx context.Context, env schemas.Envelope) (dispatcher.Result, error)
	PlaceOrder(ctx context.Context, req schemas.OrderRequest) (schemas.Order, error)
	Status() schemas.RunStatus
}

// MessageLister reads back the message journal.
type MessageLister interface {
	ListMessages(ctx context.Context, limit int) ([]schemas.Message, error)
}
