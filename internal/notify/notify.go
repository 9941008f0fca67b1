// internal/notify/notify.go
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/config"
)

// ErrDeliveryFailed wraps every failure to hand a message to an edge.
var ErrDeliveryFailed = errors.New("edge delivery failed")

// messagePath is where every edge controller accepts messages.
const messagePath = "/api/message/"

// Edges lists every edge controller in broadcast order.
var Edges = []schemas.Sender{
	schemas.SenderClassification,
	schemas.SenderRepository,
	schemas.SenderShipment,
}

// Notifier posts envelopes to edge controllers. It never retries; failures
// are returned to the caller.
type Notifier struct {
	client  *http.Client
	urls    map[schemas.Sender]string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New builds a notifier for the configured edges. Edges without a URL are
// skipped silently, which is how a coordinator runs without physical edges.
func New(cfg config.EdgesConfig, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: timeout, KeepAlive: 15 * time.Second}).DialContext,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       30 * time.Second,
		ResponseHeaderTimeout: timeout,
	}

	return &Notifier{
		client: &http.Client{Transport: transport, Timeout: timeout},
		urls: map[schemas.Sender]string{
			schemas.SenderClassification: strings.TrimRight(cfg.ClassificationURL, "/"),
			schemas.SenderRepository:     strings.TrimRight(cfg.RepositoryURL, "/"),
			schemas.SenderShipment:       strings.TrimRight(cfg.ShipmentURL, "/"),
		},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.Named("notify"),
	}
}

// Send posts env to one edge.
func (n *Notifier) Send(ctx context.Context, edge schemas.Sender, env schemas.Envelope) error {
	base, ok := n.urls[edge]
	if !ok {
		return fmt.Errorf("%w: %s is not an edge controller", ErrDeliveryFailed, edge)
	}
	if base == "" {
		n.logger.Debug("Edge not configured; skipping notification.", zap.Stringer("edge", edge), zap.String("title", env.Title))
		return nil
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDeliveryFailed, edge, err)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode %q message: %w", env.Title, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+messagePath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDeliveryFailed, edge, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDeliveryFailed, edge, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s answered %d", ErrDeliveryFailed, edge, resp.StatusCode)
	}
	n.logger.Debug("Notified edge.", zap.Stringer("edge", edge), zap.String("title", env.Title))
	return nil
}

// Broadcast posts env to every listed edge concurrently and joins the
// failures. Every edge is attempted even when one fails.
func (n *Notifier) Broadcast(ctx context.Context, env schemas.Envelope, edges ...schemas.Sender) error {
	if len(edges) == 0 {
		edges = Edges
	}
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, edge := range edges {
		g.Go(func() error {
			if err := n.Send(ctx, edge, env); err != nil {
				n.logger.Warn("Edge notification failed.", zap.Stringer("edge", edge), zap.String("title", env.Title), zap.Error(err))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
