// internal/runs/store.go
package runs

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"signal-workflows/internal/common/errors"
	"signal-workflows/internal/common/logger"
	"signal-workflows/pkg/registry"
)

// Run states.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const keyPrefix = "run:"

// Run is the status record of one workflow run, keyed by workflow id.
type Run struct {
	WorkflowID string          `json:"workflow_id"`
	Workflow   string          `json:"workflow,omitempty"`
	RunID      string          `json:"run_id,omitempty"`
	Status     string          `json:"status"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Done reports whether the run reached a final state.
func (r *Run) Done() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// Store keeps run records in Redis. It is the RunObserver of the job worker and the
// completion callback of the local executor.
type Store struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger logger.Logger
	now    func() time.Time
}

func NewStore(rdb redis.UniversalClient, ttl time.Duration, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Store{
		rdb:    rdb,
		ttl:    ttl,
		logger: log.With(map[string]interface{}{"component": "run-store"}),
		now:    time.Now,
	}
}

func key(workflowID string) string {
	return keyPrefix + workflowID
}

// Get returns the record of workflowID, or RUN_NOT_FOUND.
func (s *Store) Get(ctx context.Context, workflowID string) (*Run, error) {
	data, err := s.rdb.Get(ctx, key(workflowID)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, errors.NewRunNotFoundError(workflowID)
	}
	if err != nil {
		return nil, errors.NewRunStoreFailedError(err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, errors.NewRunStoreFailedError(err)
	}
	return &run, nil
}

// Put writes run, replacing any previous record.
func (s *Store) Put(ctx context.Context, run *Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return errors.NewRunStoreFailedError(err)
	}
	if err := s.rdb.Set(ctx, key(run.WorkflowID), data, s.ttl).Err(); err != nil {
		return errors.NewRunStoreFailedError(err)
	}
	return nil
}

// Started records a run the platform accepted. A fast run may already have finished; its final
// state is kept and only the start details are filled in.
func (s *Store) Started(ctx context.Context, workflow string, handle *registry.RunHandle) error {
	now := s.now().UTC()
	run := &Run{
		WorkflowID: handle.WorkflowID,
		Workflow:   workflow,
		RunID:      handle.RunID,
		Status:     StatusRunning,
		StartedAt:  &now,
	}
	data, err := json.Marshal(run)
	if err != nil {
		return errors.NewRunStoreFailedError(err)
	}
	created, err := s.rdb.SetNX(ctx, key(run.WorkflowID), data, s.ttl).Result()
	if err != nil {
		return errors.NewRunStoreFailedError(err)
	}
	if created {
		return nil
	}

	existing, err := s.Get(ctx, handle.WorkflowID)
	if err != nil {
		return err
	}
	existing.Workflow = workflow
	existing.RunID = handle.RunID
	if existing.StartedAt == nil {
		existing.StartedAt = &now
	}
	return s.Put(ctx, existing)
}

// Finish moves the run to its final state. A run nobody recorded as started is created.
func (s *Store) Finish(ctx context.Context, workflowID string, output json.RawMessage, runErr error) error {
	run, err := s.Get(ctx, workflowID)
	if err != nil {
		if se, ok := errors.AsStandard(err); !ok || se.Code != errors.ErrCodeRunNotFound {
			return err
		}
		run = &Run{WorkflowID: workflowID}
	}

	now := s.now().UTC()
	run.FinishedAt = &now
	if runErr != nil {
		run.Status = StatusFailed
		run.Error = runErr.Error()
		run.Output = nil
	} else {
		run.Status = StatusCompleted
		run.Output = output
		run.Error = ""
	}
	return s.Put(ctx, run)
}

// WorkflowFinished implements camunda.RunObserver. Store failures are logged, never returned to the job.
func (s *Store) WorkflowFinished(ctx context.Context, workflowID string, output json.RawMessage, err error) {
	if ferr := s.Finish(ctx, workflowID, output, err); ferr != nil {
		s.logger.Error("Failed to record run result", map[string]interface{}{
			"workflowId": workflowID,
			"error":      ferr.Error(),
		})
	}
}

// OnComplete adapts the store to registry.LocalExecutor.
func (s *Store) OnComplete(workflowID string, result json.RawMessage, err error) {
	s.WorkflowFinished(context.Background(), workflowID, result, err)
}
