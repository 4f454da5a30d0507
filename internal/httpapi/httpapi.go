// Package httpapi exposes the credential administration API.
//
// Security:
//   - API key authentication on every /v1 request (constant-time comparison)
//   - Private-key material is accepted on write but never returned
//   - All requests logged with the authenticated principal
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/gitcreds/internal/buildstep"
	"github.com/jkaninda/gitcreds/internal/credentials"
	"github.com/jkaninda/gitcreds/internal/credstore"
	"github.com/jkaninda/gitcreds/internal/observability"
	"github.com/jkaninda/okapi"
)

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// Config configures the HTTP API server.
type Config struct {
	ListenAddr string // e.g., ":8080"
	EnableDocs bool
	APIKeys    map[string]string // API key → principal mapping. Keys from env or config.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Server is the credential administration HTTP server.
type Server struct {
	config     Config
	descriptor *buildstep.Descriptor
	repo       *credstore.Repository
	logger     *slog.Logger
	server     *http.Server
	okapi      *okapi.Okapi
	group      *okapi.Group
}

// NewServer creates the administration server over the credential store.
func NewServer(cfg Config, descriptor *buildstep.Descriptor, repo *credstore.Repository, logger *slog.Logger) *Server {
	return &Server{
		config:     cfg,
		descriptor: descriptor,
		repo:       repo,
		logger:     logger,
		okapi:      okapi.New(),
	}
}

// WithOpenAPIDocs enables the interactive API documentation.
func (s *Server) WithOpenAPIDocs() *Server {
	s.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "gitcreds",
			Version: "v0.1.0",
		},
	)
	return s
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	// Metrics/tracing middleware (applied globally).
	if s.config.Metrics != nil || s.config.Tracer != nil {
		s.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(s.config.Metrics, s.config.Tracer, next)
		})
	}

	// Authenticated /v1 group.
	s.group = s.okapi.Group("/v1", s.authenticate)

	s.group.Get("/credentials", s.handleCredentialList,
		okapi.DocSummary("List system credentials as selection options"),
		okapi.DocTags("Credentials"),
		okapi.DocResponse([]CredentialOption{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
	)
	s.group.Put("/credentials/{id}", s.handleCredentialPut,
		okapi.DocSummary("Create or update a credential"),
		okapi.DocTags("Credentials"),
		okapi.DocPathParam("id", "string", "Credential ID"),
		okapi.DocRequestBody(CredentialRequest{}),
		okapi.DocResponse(CredentialOption{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
	)
	s.group.Delete("/credentials/{id}", s.handleCredentialDelete,
		okapi.DocSummary("Delete a credential"),
		okapi.DocTags("Credentials"),
		okapi.DocPathParam("id", "string", "Credential ID"),
		okapi.DocResponse(map[string]string{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	s.group.Get("/schema", s.handleSchema,
		okapi.DocSummary("Get the job configuration schema"),
		okapi.DocTags("Schema"),
		okapi.DocResponse([]buildstep.SchemaField{}),
	)

	// Observability endpoints (unauthenticated).
	s.okapi.Get("/healthz", s.handleLiveness)
	s.okapi.Get("/readyz", s.handleReadiness)

	if s.config.MetricsRegistry != nil {
		path := s.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.okapi.HandleStd("GET", path, promhttp.HandlerFor(s.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if s.config.EnableDocs {
		s.WithOpenAPIDocs()
	}

	s.server = &http.Server{
		Addr:              s.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	s.logger.Info("http api starting", slog.String("addr", s.config.ListenAddr))
	return s.okapi.StartServer(s.server)
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("http api stopping")
	return s.okapi.Shutdown(s.server)
}

// --- Handlers ---

// CredentialOption is one entry of the credential listing. It carries no key
// material, only what a configuration form needs.
type CredentialOption struct {
	ID           string `json:"id"`
	DisplayLabel string `json:"display_label"`
}

func (s *Server) handleCredentialList(c *okapi.Context) error {
	options, err := s.descriptor.ListSystemCredentials(c.Context())
	if err != nil {
		s.logger.Error("credential listing failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("listing failed")
	}

	return c.OK(toOptions(options))
}

// toOptions projects store options into the listing response shape.
func toOptions(options []credentials.Option) []CredentialOption {
	resp := make([]CredentialOption, len(options))
	for i, opt := range options {
		resp[i] = CredentialOption{ID: opt.ID, DisplayLabel: opt.DisplayLabel}
	}
	return resp
}

// CredentialRequest is the JSON body for PUT /v1/credentials/{id}.
// OwnerID empty stores the credential system-scoped.
type CredentialRequest struct {
	Username    string `json:"username"`
	Description string `json:"description,omitempty"`
	PrivateKey  string `json:"private_key"`
	OwnerID     string `json:"owner_id,omitempty"`
}

func (r CredentialRequest) validate() error {
	if r.Username == "" {
		return errors.New("username is required")
	}
	if r.PrivateKey == "" {
		return errors.New("private_key is required")
	}
	return nil
}

func (s *Server) handleCredentialPut(c *okapi.Context) error {
	principal := c.GetString("principal")

	id := c.Param("id")
	if id == "" {
		return c.AbortBadRequest("credential id is required")
	}

	var req CredentialRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if err := req.validate(); err != nil {
		return c.AbortBadRequest(err.Error())
	}

	cand := credentials.Candidate{
		ID:          id,
		Username:    req.Username,
		Description: req.Description,
		PrivateKey:  []byte(req.PrivateKey),
	}
	if err := s.repo.Put(c.Context(), cand, req.OwnerID); err != nil {
		s.logger.Error("credential store failed",
			slog.String("credential_id", id),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("store failed")
	}

	s.logger.Info("credential stored",
		slog.String("principal", principal),
		slog.String("credential_id", id),
		slog.Bool("system_scoped", req.OwnerID == ""),
	)
	return c.OK(CredentialOption{ID: cand.ID, DisplayLabel: cand.DisplayLabel()})
}

func (s *Server) handleCredentialDelete(c *okapi.Context) error {
	principal := c.GetString("principal")

	id := c.Param("id")
	if id == "" {
		return c.AbortBadRequest("credential id is required")
	}

	if err := s.repo.Delete(c.Context(), id); err != nil {
		if credstore.IsNotFound(err) {
			return c.JSON(http.StatusNotFound, okapi.M{"error": "credential not found"})
		}
		s.logger.Error("credential delete failed",
			slog.String("credential_id", id),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("delete failed")
	}

	s.logger.Info("credential deleted",
		slog.String("principal", principal),
		slog.String("credential_id", id),
	)
	return c.OK(map[string]string{"status": "deleted"})
}

func (s *Server) handleSchema(c *okapi.Context) error {
	return c.OK(buildstep.ConfigSchema())
}

// HealthResponse is the JSON response for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleLiveness is the Kubernetes liveness probe
func (s *Server) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (s *Server) handleReadiness(c *okapi.Context) error {
	if s.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := s.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// --- Authentication ---

// bearerToken extracts the token from an Authorization header. The second
// return is false when the header is missing or not a Bearer scheme.
func bearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(header, "Bearer "), true
}

// principalForKey maps an API key to its configured principal, comparing in
// constant time against every configured key. Returns "" when no key matches.
func principalForKey(keys map[string]string, apiKey string) string {
	principal := ""
	for key, name := range keys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
			principal = name
		}
	}
	return principal
}

// authenticate validates the API key and stores the mapped principal on the
// request context.
func (s *Server) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		apiKey, ok := bearerToken(c.Header("Authorization"))
		if !ok {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		principal := principalForKey(s.config.APIKeys, apiKey)
		if principal == "" {
			return c.AbortUnauthorized("invalid API key")
		}
		c.Set("principal", principal)
		return next(c)
	}
}
