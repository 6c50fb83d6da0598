// internal/api/routes.go
package api

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"signal-workflows/internal/common/errors"
	"signal-workflows/internal/common/logger"
	"signal-workflows/internal/common/metrics"
	"signal-workflows/internal/common/validation"
	"signal-workflows/pkg/registry"
)

const (
	modeSync  = "sync"
	modeAsync = "async"
)

// HandleResponse is returned by a route called with async=true.
type HandleResponse struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	StatusURL  string `json:"status_url"`
}

// WorkflowRoutes generates POST /{name}-{version} for every registered workflow, plus
// GET /{name}-{version}/status/{workflow_id} when a run store is configured. Routes are built from
// one snapshot of the registry; later registrations are not served.
func (a *API) WorkflowRoutes() chi.Router {
	r := chi.NewRouter()
	for _, md := range a.provider.Workflows().GetAll("") {
		key := md.Key()
		r.Post("/"+key, a.workflowHandler(md))
		if a.runs != nil {
			r.Get("/"+key+"/status/{workflowID}", a.statusHandler(key))
		}
		a.logger.Debug("Generated workflow route", map[string]interface{}{"workflow": key})
	}
	return r
}

func (a *API) workflowHandler(md *registry.WorkflowMetadata) http.HandlerFunc {
	key := md.Key()
	schema := validation.SchemaFor(md.InputType)

	return func(w http.ResponseWriter, r *http.Request) {
		async, err := parseAsync(r)
		if err != nil {
			a.reply(w, key, modeSync, http.StatusUnprocessableEntity, ErrorResponse{
				Error:   string(errors.ErrCodeInputValidationFailed),
				Message: "Invalid async flag",
				Details: err.Error(),
			})
			return
		}
		mode := modeSync
		if async {
			mode = modeAsync
		}

		input, failure := a.decodeInput(w, r, md, schema)
		if failure != nil {
			a.reply(w, key, mode, http.StatusUnprocessableEntity, *failure)
			return
		}

		req := registry.RunRequest{
			Workflow:   md,
			WorkflowID: a.newWorkflowID(md.Name),
			TaskQueue:  a.queueFor(md),
			Input:      input,
		}
		log := a.logger.With(map[string]interface{}{
			"workflow":   key,
			"workflowId": req.WorkflowID,
			"mode":       mode,
		})

		if async {
			a.start(w, r, log, key, req)
			return
		}
		a.execute(w, r, log, key, req)
	}
}

// decodeInput applies schema defaults, validates the body against the input schema and decodes it
// into the input type.
func (a *API) decodeInput(w http.ResponseWriter, r *http.Request, md *registry.WorkflowMetadata, schema *validation.JSONSchema) (any, *ErrorResponse) {
	invalid := func(msg string, details interface{}) *ErrorResponse {
		return &ErrorResponse{Error: string(errors.ErrCodeInputValidationFailed), Message: msg, Details: details}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, invalid("Unreadable request body", err.Error())
	}

	doc, err := validation.ApplyDefaults(schema, body)
	if err != nil {
		return nil, invalid("Invalid request body", err.Error())
	}
	result, err := validation.ValidateJSON(schema, doc)
	if err != nil {
		return nil, invalid("Invalid request body", err.Error())
	}
	if !result.Valid {
		return nil, invalid("Input does not match the workflow schema", result.Errors)
	}

	input, err := md.DecodeInput(doc)
	if err != nil {
		return nil, invalid("Invalid request body", err.Error())
	}
	if err := validation.Check(input); err != nil {
		return nil, invalid("Input validation failed", err.Error())
	}
	return input, nil
}

func (a *API) execute(w http.ResponseWriter, r *http.Request, log logger.Logger, key string, req registry.RunRequest) {
	ctx := r.Context()
	if a.syncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.syncTimeout)
		defer cancel()
	}

	result, err := a.executor.Execute(ctx, req)
	if err != nil {
		status, resp := runFailure(key, err)
		log.Error("Workflow run failed", map[string]interface{}{"error": err.Error(), "status": status})
		a.reply(w, key, modeSync, status, resp)
		return
	}

	metrics.APIRequests.WithLabelValues(key, modeSync, strconv.Itoa(http.StatusOK)).Inc()
	writeRaw(w, http.StatusOK, result)
}

func (a *API) start(w http.ResponseWriter, r *http.Request, log logger.Logger, key string, req registry.RunRequest) {
	handle, err := a.executor.Start(r.Context(), req)
	if err != nil {
		status, resp := runFailure(key, err)
		log.Error("Workflow start failed", map[string]interface{}{"error": err.Error(), "status": status})
		a.reply(w, key, modeAsync, status, resp)
		return
	}

	if a.runs != nil {
		if err := a.runs.Started(r.Context(), key, handle); err != nil {
			log.Warn("Failed to record run", map[string]interface{}{"error": err.Error()})
		}
	}

	a.reply(w, key, modeAsync, http.StatusOK, HandleResponse{
		WorkflowID: handle.WorkflowID,
		RunID:      handle.RunID,
		StatusURL:  fmt.Sprintf("%s/workflow/%s/status/%s", a.prefix, key, handle.WorkflowID),
	})
}

func (a *API) statusHandler(key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workflowID := chi.URLParam(r, "workflowID")

		run, err := a.runs.Get(r.Context(), workflowID)
		if err == nil && run.Workflow != "" && run.Workflow != key {
			err = errors.NewRunNotFoundError(workflowID)
		}
		if err != nil {
			se := errors.Normalize(err)
			status := http.StatusInternalServerError
			if se.Code == errors.ErrCodeRunNotFound {
				status = http.StatusNotFound
			}
			writeJSON(w, status, ErrorResponse{Error: string(se.Code), Message: se.Message})
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func (a *API) reply(w http.ResponseWriter, key, mode string, status int, body interface{}) {
	metrics.APIRequests.WithLabelValues(key, mode, strconv.Itoa(status)).Inc()
	writeJSON(w, status, body)
}

func (a *API) queueFor(md *registry.WorkflowMetadata) string {
	if md.TaskQueue != "" {
		return md.TaskQueue
	}
	return a.queue
}

// newWorkflowID is "{name}-{yyyymmdd-HHMMSS}-{8 hex}", UTC.
func (a *API) newWorkflowID(name string) string {
	return fmt.Sprintf("%s-%s-%s", name, a.now().UTC().Format("20060102-150405"), a.suffix())
}

func randomSuffix() string {
	id := uuid.New()
	return hex.EncodeToString(id[:4])
}

// parseAsync reads the async query flag. Absent means synchronous.
func parseAsync(r *http.Request) (bool, error) {
	v := r.URL.Query().Get("async")
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}
