// internal/runs/store_test.go
package runs

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-workflows/internal/common/errors"
	"signal-workflows/internal/common/logger"
	"signal-workflows/pkg/registry"
)

// ==========================
// Test Helper Functions
// ==========================

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := NewStore(rdb, time.Hour, logger.NewTestLogger(t))
	store.now = func() time.Time { return fixedNow }
	return store, mr
}

// ==========================
// Core Functionality Tests
// ==========================

func TestStore_StartedThenFinished(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	handle := &registry.RunHandle{WorkflowID: "research-issue-20260301-120000-abcd1234", RunID: "2251799813685249"}
	require.NoError(t, store.Started(ctx, "research-issue-v1", handle))

	run, err := store.Get(ctx, handle.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Equal(t, "research-issue-v1", run.Workflow)
	assert.Equal(t, handle.RunID, run.RunID)
	assert.False(t, run.Done())
	assert.Equal(t, time.Hour, mr.TTL(key(handle.WorkflowID)))

	store.WorkflowFinished(ctx, handle.WorkflowID, json.RawMessage(`{"status":"ok"}`), nil)

	run, err = store.Get(ctx, handle.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.JSONEq(t, `{"status":"ok"}`, string(run.Output))
	assert.Equal(t, handle.RunID, run.RunID)
	require.NotNil(t, run.FinishedAt)
	assert.True(t, run.FinishedAt.Equal(fixedNow))
	assert.True(t, run.Done())
}

func TestStore_FinishFailed(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Started(ctx, "example-workflow-v2", &registry.RunHandle{WorkflowID: "wf-1", RunID: "1"}))
	require.NoError(t, store.Finish(ctx, "wf-1", nil, stderrors.New("agent gave up")))

	run, err := store.Get(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, "agent gave up", run.Error)
	assert.Empty(t, run.Output)
}

func TestStore_FinishUnknownRunCreatesRecord(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	store.OnComplete("wf-untracked", json.RawMessage(`1`), nil)

	run, err := store.Get(ctx, "wf-untracked")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Nil(t, run.StartedAt)
}

func TestStore_FinishedBeforeStarted(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	store.OnComplete("wf-fast", json.RawMessage(`{"ok":true}`), nil)
	require.NoError(t, store.Started(ctx, "example-workflow-v2", &registry.RunHandle{WorkflowID: "wf-fast", RunID: "local-1"}))

	run, err := store.Get(ctx, "wf-fast")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, "example-workflow-v2", run.Workflow)
	assert.Equal(t, "local-1", run.RunID)
	assert.NotNil(t, run.StartedAt)
}

func TestStore_GetNotFound(t *testing.T) {
	store, _ := setupStore(t)

	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)

	stdErr, ok := errors.AsStandard(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeRunNotFound, stdErr.Code)
	assert.False(t, stdErr.Retryable)
}

// ==========================
// Failure Tests
// ==========================

func TestStore_RedisErrors(t *testing.T) {
	rdb, redisMock := redismock.NewClientMock()
	store := NewStore(rdb, time.Minute, logger.NewTestLogger(t))

	redisMock.ExpectGet("run:wf-1").SetErr(stderrors.New("connection reset"))

	_, err := store.Get(context.Background(), "wf-1")
	stdErr, ok := errors.AsStandard(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeRunStoreFailed, stdErr.Code)
	assert.True(t, stdErr.Retryable)

	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestStore_FinishDoesNotOverwriteOnReadFailure(t *testing.T) {
	rdb, redisMock := redismock.NewClientMock()
	store := NewStore(rdb, time.Minute, logger.NewTestLogger(t))

	redisMock.ExpectGet("run:wf-2").SetErr(stderrors.New("timeout"))

	err := store.Finish(context.Background(), "wf-2", json.RawMessage(`{}`), nil)
	require.Error(t, err)

	// no SET expected
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestStore_CorruptRecord(t *testing.T) {
	store, mr := setupStore(t)
	require.NoError(t, mr.Set(key("wf-bad"), "{not json"))

	_, err := store.Get(context.Background(), "wf-bad")
	stdErr, ok := errors.AsStandard(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeRunStoreFailed, stdErr.Code)
}
