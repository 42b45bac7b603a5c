// Package api serves operator endpoints and platform webhooks. Every handler that affects a
// running case writes to the store first and then signals the workflow.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"case-outreach-service/internal/dedupe"
	"case-outreach-service/internal/metrics"
	"case-outreach-service/internal/store"
	"case-outreach-service/internal/workflows"
)

// Options carries the defaults new cases start with and webhook settings.
type Options struct {
	TaskQueue           string
	Outreach            workflows.OutreachInput
	VerificationTimeout time.Duration
	Schedule            workflows.PollSchedule
	CORSOrigins         []string

	// TwilioAuthToken enables X-Twilio-Signature checks on the SMS webhook. PublicURL is the
	// externally visible base URL Twilio signs against.
	TwilioAuthToken string
	PublicURL       string
}

type Server struct {
	tc      client.Client
	store   store.Store
	dedupe  *dedupe.Deduper
	metrics *metrics.Metrics
	opts    Options
	log     *zap.Logger
}

// New builds the API server. A nil deduper disables webhook deduplication.
func New(tc client.Client, st store.Store, d *dedupe.Deduper, m *metrics.Metrics, opts Options) *Server {
	return &Server{
		tc:      tc,
		store:   st,
		dedupe:  d,
		metrics: m,
		opts:    opts,
		log:     zap.L().Named("api"),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/cases", func(r chi.Router) {
		r.Post("/", s.handleStartCase)
		r.Get("/{caseID}", s.handleGetCase)
		r.Get("/{caseID}/instances", s.handleCaseInstances)
	})
	r.Get("/instances/{instanceID}", s.handleGetInstance)

	r.Route("/workflows", func(r chi.Router) {
		r.Get("/", s.handleListWorkflows)
		r.Get("/{workflowID}/state", s.handleQuery(workflows.StateQuery))
		r.Get("/{workflowID}/audit", s.handleQuery(workflows.AuditLogQuery))
		r.Post("/{workflowID}/pause", s.handlePause)
		r.Post("/{workflowID}/resume", s.handleResume)
	})

	r.Post("/verifications/{verificationID}/resolve", s.handleResolveVerification)

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/sms", s.handleInboundSMS)
		r.Post("/calls", s.handleCallCompleted)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps store and Temporal lookups that found nothing to 404.
func statusFor(err error) int {
	var nf *serviceerror.NotFound
	switch {
	case eris.Is(err, store.ErrNotFound), errors.As(err, &nf):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// isWorkflowGone reports whether a signal failed because the target is not running.
func isWorkflowGone(err error) bool {
	var nf *serviceerror.NotFound
	return errors.As(err, &nf)
}
