package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"gigpay/auth"
	"gigpay/fees"
	"gigpay/gateway"
	"gigpay/middleware"
	"gigpay/models"
	"gigpay/payments"
)

// maxBodyBytes caps request bodies on every route.
const maxBodyBytes = 64 << 10

// Config wires the HTTP surface.
type Config struct {
	DB            *gorm.DB
	Processor     *payments.Processor
	Authenticator *auth.Authenticator
	Logger        *slog.Logger
	// WebhookRate is callbacks per second tolerated per provider route.
	WebhookRate  float64
	WebhookBurst int
}

// Server exposes the payment API over HTTP.
type Server struct {
	db        *gorm.DB
	processor *payments.Processor
	auth      *auth.Authenticator
	log       *slog.Logger
	router    http.Handler
	webhooks  *webhookHandler
}

// New constructs the server and its routes.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		db:        cfg.DB,
		processor: cfg.Processor,
		auth:      cfg.Authenticator,
		log:       cfg.Logger,
	}
	s.webhooks = newWebhookHandler(cfg.Processor, cfg.Logger, cfg.WebhookRate, cfg.WebhookBurst)
	s.router = s.buildRouter()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/khalti", s.webhooks.khalti)
		r.Post("/esewa", s.webhooks.esewa)
	})

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.With(auth.RequireRole(auth.RoleClient)).
			Method(http.MethodPost, "/initiate", middleware.WithIdempotency(s.db, http.HandlerFunc(s.handleInitiate)))
		r.With(auth.RequireRole(auth.RoleAdmin)).Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.With(auth.RequireRole(auth.RoleClient, auth.RoleAdmin)).Post("/{id}/verify", s.handleVerify)
		r.With(auth.RequireRole(auth.RoleClient, auth.RoleAdmin)).
			Method(http.MethodPost, "/{id}/release", middleware.WithIdempotency(s.db, http.HandlerFunc(s.handleRelease)))
		r.With(auth.RequireRole(auth.RoleClient)).Post("/{id}/refund-request", s.handleRefundRequest)
		r.With(auth.RequireRole(auth.RoleAdmin)).Post("/{id}/resolve", s.handleResolveDispute)
	})
	return otelhttp.NewHandler(r, "gigpay.http")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if sqlDB, err := s.db.DB(); err != nil || sqlDB.PingContext(r.Context()) != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

type initiateRequest struct {
	ProjectID     string `json:"project_id"`
	ProposalID    string `json:"proposal_id"`
	PaymentMethod string `json:"payment_method"`
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req initiateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project_id")
		return
	}
	proposalID, err := uuid.Parse(req.ProposalID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proposal_id")
		return
	}
	method := models.PaymentMethod(req.PaymentMethod)
	if !method.Valid() {
		writeError(w, http.StatusBadRequest, "unsupported payment_method")
		return
	}
	out, err := s.processor.Initiate(r.Context(), projectID, proposalID, actor, method)
	if err != nil {
		s.writeProcessorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	txn, err := s.processor.Verify(r.Context(), id, actor)
	if err != nil {
		s.writeProcessorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	txn, err := s.processor.Release(r.Context(), id, actor)
	if err != nil {
		s.writeProcessorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleRefundRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ledger, err := s.processor.RequestRefund(r.Context(), id, actor, req.Reason)
	if err != nil {
		s.writeProcessorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ledger)
}

type resolveRequest struct {
	Resolution string `json:"resolution"`
	Notes      string `json:"notes"`
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	txn, err := s.processor.ResolveDispute(r.Context(), id, actor, req.Resolution, req.Notes)
	if err != nil {
		s.writeProcessorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	txn, err := s.processor.Get(r.Context(), id, actor)
	if err != nil {
		s.writeProcessorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter := payments.ListFilter{
		Status: r.URL.Query().Get("status"),
		Method: r.URL.Query().Get("method"),
	}
	filter.Limit = queryInt(r, "limit")
	filter.Offset = queryInt(r, "offset")
	txns, err := s.processor.List(r.Context(), filter)
	if err != nil {
		s.writeProcessorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txns,
		"count":        len(txns),
	})
}

// actor resolves the authenticated claims into a processor actor.
func (s *Server) actor(w http.ResponseWriter, r *http.Request) (payments.Actor, bool) {
	claims, err := auth.FromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return payments.Actor{}, false
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "subject is not a valid user id")
		return payments.Actor{}, false
	}
	return payments.Actor{ID: id, Role: string(claims.Role)}, true
}

// writeProcessorError maps orchestrator sentinel errors onto HTTP statuses.
func (s *Server) writeProcessorError(w http.ResponseWriter, r *http.Request, err error) {
	var code int
	switch {
	case errors.Is(err, payments.ErrNotFound),
		errors.Is(err, payments.ErrProjectNotFound),
		errors.Is(err, payments.ErrProposalNotFound):
		code = http.StatusNotFound
	case errors.Is(err, payments.ErrNotAuthorized):
		code = http.StatusForbidden
	case errors.Is(err, payments.ErrAlreadyInitiated),
		errors.Is(err, payments.ErrInvalidTransactionState),
		errors.Is(err, payments.ErrProposalNotAccepted):
		code = http.StatusConflict
	case errors.Is(err, payments.ErrReasonTooShort),
		errors.Is(err, payments.ErrProposalMismatch),
		errors.Is(err, payments.ErrNoGatewayReference),
		errors.Is(err, fees.ErrInvalidAmount):
		code = http.StatusBadRequest
	case errors.Is(err, gateway.ErrGatewayError),
		errors.Is(err, gateway.ErrUnavailable):
		code = http.StatusBadGateway
	case errors.Is(err, payments.ErrIntegrityViolation):
		code = http.StatusInternalServerError
	default:
		code = http.StatusInternalServerError
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("payment request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	writeError(w, code, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
