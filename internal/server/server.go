// File: internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/config"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/dispatcher"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/engine"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/notify"
)

const (
	maxBodyBytes        = 1 << 20
	defaultMessageLimit = 100
)

// Server exposes the dispatcher over HTTP. Command handlers run on a bounded
// pool; a request that cannot get a slot in time is turned away with 503.
type Server struct {
	cfg        config.ServerConfig
	dispatcher Dispatcher
	messages   MessageLister
	pool       *semaphore.Weighted
	logger     *zap.Logger
	httpServer *http.Server
}

// New creates a server. messages may be nil, which disables the journal listing.
func New(cfg config.ServerConfig, d Dispatcher, messages MessageLister, logger *zap.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("dispatcher cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	workers := cfg.WorkerConcurrency
	if workers <= 0 {
		workers = 1
	}
	return &Server{
		cfg:        cfg,
		dispatcher: d,
		messages:   messages,
		pool:       semaphore.NewWeighted(int64(workers)),
		logger:     logger.Named("server"),
	}, nil
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}

	r.Get("/healthz", s.handleHealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/message", s.handleListMessages)

		r.Group(func(r chi.Router) {
			r.Use(s.bounded)
			r.Post("/message", s.handleMessage)
			r.Post("/order", s.handleOrder)
		})
	})
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Coordinator listening.", zap.String("address", s.cfg.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("Shutting down HTTP server.")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// -- Middleware --

// bounded admits a request once a pool slot is free.
func (s *Server) bounded(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.cfg.AcquireTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.AcquireTimeout)
			defer cancel()
		}
		if err := s.pool.Acquire(ctx, 1); err != nil {
			s.logger.Warn("Handler pool exhausted.", zap.String("path", r.URL.Path))
			s.respondWithError(w, http.StatusServiceUnavailable, "", "coordinator is busy, retry later")
			return
		}
		defer s.pool.Release(1)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request served.",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// -- Handlers --

func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.respondWithStatus(w, http.StatusOK, string(dispatcher.OutcomeOK), "", s.dispatcher.Status())
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	if s.messages == nil {
		s.respondWithError(w, http.StatusServiceUnavailable, "", "message journal is not available")
		return
	}
	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.respondWithError(w, http.StatusBadRequest, "", fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	msgs, err := s.messages.ListMessages(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list messages.", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "", "internal error reading the journal")
		return
	}
	s.respondWithStatus(w, http.StatusOK, string(dispatcher.OutcomeOK), "", msgs)
}

// handleMessage is the single entry point for edge and user protocol messages.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var env schemas.Envelope
	if err := s.decode(w, r, &env); err != nil {
		s.respondWithStatus(w, http.StatusBadRequest, string(dispatcher.OutcomeRejected), "",
			map[string]string{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	res, err := s.dispatcher.Dispatch(r.Context(), env)
	if err == nil {
		s.respondWithStatus(w, http.StatusOK, string(res.Outcome), res.MessageID, res.Data)
		return
	}
	code := statusFor(res.Outcome, err)
	if code == http.StatusInternalServerError {
		s.logger.Error("Command failed.", zap.Stringer("sender", env.Sender), zap.String("title", env.Title), zap.Error(err))
	}
	s.respond(w, code, CommandResponse{
		Status:    string(res.Outcome),
		MessageID: res.MessageID,
		Data:      res.Data,
		Error:     err.Error(),
	})
}

// handleOrder takes a customer order.
func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	var req schemas.OrderRequest
	if err := s.decode(w, r, &req); err != nil {
		s.respondWithStatus(w, http.StatusBadRequest, string(dispatcher.OutcomeRejected), "",
			map[string]string{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	o, err := s.dispatcher.PlaceOrder(r.Context(), req)
	switch {
	case err == nil:
		s.respondWithStatus(w, http.StatusCreated, string(dispatcher.OutcomeOK), "", o)
	case dispatcher.IsRejection(err):
		s.respondWithStatus(w, statusFor(dispatcher.OutcomeRejected, err), string(dispatcher.OutcomeRejected), "", map[string]string{"error": err.Error()})
	case errors.Is(err, notify.ErrDeliveryFailed) && o.ID != 0:
		// The order is recorded; only the edges missed it.
		s.respond(w, http.StatusBadGateway, CommandResponse{Status: string(dispatcher.OutcomeOK), Data: o, Error: err.Error()})
	default:
		s.logger.Error("Order intake failed.", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "", "internal error recording the order")
	}
}

// statusFor maps a dispatch failure onto an HTTP status.
func statusFor(outcome dispatcher.Outcome, err error) int {
	switch {
	case errors.Is(err, engine.ErrNotRunning):
		return http.StatusConflict
	case dispatcher.IsRejection(err):
		return http.StatusBadRequest
	case outcome == dispatcher.OutcomeOK && errors.Is(err, notify.ErrDeliveryFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// -- Responses --

func (s *Server) respondWithError(w http.ResponseWriter, statusCode int, messageID, message string) {
	s.respondWithStatus(w, statusCode, string(dispatcher.OutcomeError), messageID, map[string]string{"error": message})
}

// respondWithStatus sends the standard envelope. A map holding an "error" key
// fills the error field instead of data.
func (s *Server) respondWithStatus(w http.ResponseWriter, statusCode int, status, messageID string, data interface{}) {
	resp := CommandResponse{Status: status, MessageID: messageID}
	if errMap, ok := data.(map[string]string); ok && errMap["error"] != "" {
		resp.Error = errMap["error"]
	} else {
		resp.Data = data
	}
	s.respond(w, statusCode, resp)
}

func (s *Server) respond(w http.ResponseWriter, statusCode int, resp CommandResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Failed to encode response.", zap.Error(err))
	}
}
