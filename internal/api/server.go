package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/dxywop/cf-clearance-scraper/internal/admission"
	"github.com/dxywop/cf-clearance-scraper/internal/config"
	"github.com/dxywop/cf-clearance-scraper/internal/job"
	"github.com/dxywop/cf-clearance-scraper/internal/journal"
	"github.com/dxywop/cf-clearance-scraper/internal/metrics"
	"github.com/dxywop/cf-clearance-scraper/internal/validate"
)

// ScrapePath is the single public job route.
const ScrapePath = "/cf-clearance-scraper"

// Envelope messages written by the gateway itself.
const (
	MsgBadRequest      = "Bad Request"
	MsgUnauthorized    = "Unauthorized"
	MsgTooManyRequests = "Too Many Requests"
	MsgNotReady        = "The scanner is not ready yet. Please try again a little later."
	MsgNotFound        = "Not Found"
	MsgInternal        = "Internal Server Error"
)

const maxBodyBytes = 1 << 20

// Validator checks a raw job document.
type Validator interface {
	Validate(raw []byte) validate.Result
}

// Admitter hands out resource slots.
type Admitter interface {
	Admit() (*admission.Slot, error)
}

// Dispatcher runs an admitted job.
type Dispatcher interface {
	Dispatch(ctx context.Context, d job.Descriptor) job.Envelope
}

// Server wires the job route to validation, admission and dispatch.
type Server struct {
	router     chi.Router
	validator  Validator
	admitter   Admitter
	dispatcher Dispatcher
	journal    journal.Recorder
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	validator Validator,
	admitter Admitter,
	dispatcher Dispatcher,
	recorder journal.Recorder,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = journal.Nop{}
	}
	s := &Server{
		validator:  validator,
		admitter:   admitter,
		dispatcher: dispatcher,
		journal:    recorder,
		cfg:        cfg,
		logger:     logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins(cfg.Server.CORSOrigins),
		AllowedMethods: []string{http.MethodPost},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{requestIDHeader},
	}))

	r.Post(ScrapePath, s.scrape)
	r.NotFound(s.notFound)
	r.MethodNotAllowed(s.notFound)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	raw, err := readJob(w, r)
	if err != nil {
		s.badRequest(w, validate.Invalid("", err.Error()))
		return
	}
	if res := s.validator.Validate(raw); !res.Valid() {
		s.badRequest(w, res)
		return
	}
	desc, err := job.Parse(raw)
	if err != nil {
		s.badRequest(w, validate.Invalid("", err.Error()))
		return
	}
	if err := s.authorize(desc); err != nil {
		writeEnvelope(s.logger, w, job.Fail(http.StatusUnauthorized, MsgUnauthorized))
		return
	}

	start := time.Now()
	env, dispatched := s.run(r.Context(), desc)
	writeEnvelope(s.logger, w, env)
	if dispatched {
		s.record(r.Context(), desc, env, time.Since(start))
	}
}

// run admits and dispatches. The slot is released before the response is
// written, on every path out of the dispatcher. The flag reports whether a
// handler was routed to, which unknown modes never are.
func (s *Server) run(ctx context.Context, desc job.Descriptor) (job.Envelope, bool) {
	slot, err := s.admitter.Admit()
	switch {
	case errors.Is(err, admission.ErrNotReady):
		return job.Fail(http.StatusInternalServerError, MsgNotReady), false
	case errors.Is(err, admission.ErrLimitReached):
		return job.Fail(http.StatusTooManyRequests, MsgTooManyRequests), false
	case err != nil:
		s.logger.Error("admission failed", zap.Error(err))
		return job.Fail(http.StatusInternalServerError, MsgInternal), false
	}
	defer slot.Release()

	return s.dispatcher.Dispatch(ctx, desc), desc.Mode.Known()
}

func (s *Server) authorize(desc job.Descriptor) error {
	if !s.cfg.AuthEnabled() {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(desc.AuthToken), []byte(s.cfg.Auth.Token)) != 1 {
		return job.ErrUnauthorized
	}
	return nil
}

func (s *Server) badRequest(w http.ResponseWriter, res validate.Result) {
	env := job.Fail(http.StatusBadRequest, MsgBadRequest)
	env.Fields = map[string]any{"schema": res.Errors}
	writeEnvelope(s.logger, w, env)
}

func (s *Server) record(ctx context.Context, desc job.Descriptor, env job.Envelope, took time.Duration) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	entry := journal.Entry{
		ID:         journal.NewID(),
		RequestID:  RequestIDFromContext(ctx),
		Mode:       string(desc.Mode),
		Site:       metrics.SanitizeSite(desc.URL),
		Code:       env.Status(),
		Message:    env.Message,
		Duration:   took,
		FinishedAt: time.Now().UTC(),
	}
	if err := s.journal.Record(ctx, entry); err != nil {
		s.logger.Warn("journal record failed", zap.String("id", entry.ID), zap.Error(err))
	}
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func (s *Server) notFound(w http.ResponseWriter, _ *http.Request) {
	writeEnvelope(s.logger, w, job.Fail(http.StatusNotFound, MsgNotFound))
}

func writeEnvelope(logger *zap.Logger, w http.ResponseWriter, env job.Envelope) {
	writeJSON(logger, w, env.Status(), env)
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}
