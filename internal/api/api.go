// internal/api/api.go
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signal-workflows/internal/common/errors"
	"signal-workflows/internal/common/logger"
	"signal-workflows/internal/common/validation"
	"signal-workflows/internal/runs"
	"signal-workflows/pkg/registry"
)

const maxBodyBytes = 1 << 20

// RunStore records asynchronous runs and serves their status.
type RunStore interface {
	Started(ctx context.Context, workflow string, handle *registry.RunHandle) error
	Get(ctx context.Context, workflowID string) (*runs.Run, error)
}

var _ RunStore = (*runs.Store)(nil)

type Options struct {
	Provider *registry.Provider
	Executor registry.Executor
	// Runs is optional. Without it async runs are not tracked and no status route is served.
	Runs RunStore
	// APIPrefix is where the workflow routes are mounted, e.g. /api/v1.
	APIPrefix string
	// TaskQueue is used for workflows that declare no queue.
	TaskQueue string
	// SyncTimeout bounds a synchronous run. Zero waits as long as the client does.
	SyncTimeout time.Duration
	Logger      logger.Logger
}

// API serves the generated workflow routes plus health, metrics and the workflow catalog.
type API struct {
	provider    *registry.Provider
	executor    registry.Executor
	runs        RunStore
	prefix      string
	queue       string
	syncTimeout time.Duration
	logger      logger.Logger
	now         func() time.Time
	suffix      func() string
}

func New(opts Options) *API {
	if opts.Provider == nil {
		panic("api: provider is required")
	}
	if opts.Executor == nil {
		panic("api: executor is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	return &API{
		provider:    opts.Provider,
		executor:    opts.Executor,
		runs:        opts.Runs,
		prefix:      opts.APIPrefix,
		queue:       opts.TaskQueue,
		syncTimeout: opts.SyncTimeout,
		logger:      opts.Logger.With(map[string]interface{}{"component": "api"}),
		now:         time.Now,
		suffix:      randomSuffix,
	}
}

// Handler returns the full router of the server.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", a.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route(a.prefixOrRoot(), func(r chi.Router) {
		r.Get("/workflows", a.handleCatalog)
		r.Mount("/workflow", a.WorkflowRoutes())
	})
	return r
}

func (a *API) prefixOrRoot() string {
	if a.prefix == "" {
		return "/"
	}
	return a.prefix
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	WorkflowCount int    `json:"workflow_count"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "healthy",
		WorkflowCount: a.provider.Workflows().Len(),
	})
}

func (a *API) handleCatalog(w http.ResponseWriter, r *http.Request) {
	m := registry.BuildManifest(a.provider, r.URL.Query().Get("queue"), validation.SchemaMap)
	for i := range m.Workflows {
		m.Workflows[i].Route = a.prefix + m.Workflows[i].Route
	}
	writeJSON(w, http.StatusOK, m)
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, body json.RawMessage) {
	if len(body) == 0 {
		body = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// runFailure maps a failed run to an HTTP status and error body. Failures the platform reports
// without a code are workflow failures.
func runFailure(key string, err error) (int, ErrorResponse) {
	se, ok := errors.AsStandard(err)
	if !ok {
		se = errors.NewWorkflowFailedError(key, err)
		se.WithMetadata("kind", registry.ErrorKind(err))
	}

	status := http.StatusInternalServerError
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case se.Code == errors.ErrCodePlatformUnavailable, se.Code == errors.ErrCodePlatformRequestFailed:
		status = http.StatusBadGateway
	}
	resp := ErrorResponse{Error: string(se.Code), Message: se.Message}
	if se.Details != "" {
		resp.Details = se.Details
	}
	return status, resp
}
