package file

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/persistence"
)

func testWorkflow(id string) *models.Workflow {
	return &models.Workflow{
		ID:     id,
		Name:   "test workflow",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			{ID: "t-1", Type: "trigger", Subtype: "webhook", Category: models.CategoryTypeTrigger, Name: "start", Enabled: true},
		},
	}
}

func TestWorkflowRepository_SaveAndFetch(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, fp.WorkflowRepository().SaveWorkflow(ctx, testWorkflow("wf-1")))

	got, err := fp.WorkflowRepository().WorkflowByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", got.ID)
	assert.Len(t, got.Nodes, 1)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestWorkflowRepository_NotFound(t *testing.T) {
	fp := NewPersistence(t.TempDir())

	_, err := fp.WorkflowRepository().WorkflowByID(context.Background(), "missing")

	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowRepository_ListAndDelete(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, fp.WorkflowRepository().SaveWorkflow(ctx, testWorkflow("wf-1")))
	require.NoError(t, fp.WorkflowRepository().SaveWorkflow(ctx, testWorkflow("wf-2")))

	workflows, err := fp.WorkflowRepository().Workflows(ctx)
	require.NoError(t, err)
	assert.Len(t, workflows, 2)

	require.NoError(t, fp.WorkflowRepository().DeleteWorkflow(ctx, "wf-1"))
	require.NoError(t, fp.WorkflowRepository().DeleteWorkflow(ctx, "wf-1"))

	workflows, err = fp.WorkflowRepository().Workflows(ctx)
	require.NoError(t, err)
	assert.Len(t, workflows, 1)
}

func TestExecutionRepository_RoundTrip(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	ctx := context.Background()

	execution := models.NewWorkflowExecution("exec-abc12345", "wf-1", map[string]any{"user": "ada"})
	execution.Begin()
	execution.NodeExecution("n-1").Start(map[string]any{"trigger": map[string]any{"user": "ada"}})
	execution.NodeExecution("n-1").Complete(map[string]any{"ok": true})
	execution.RecordCompletion("n-1")

	require.NoError(t, fp.ExecutionRepository().SaveExecution(ctx, execution))

	got, err := fp.ExecutionRepository().ExecutionByID(ctx, "exec-abc12345")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, got.Status)
	assert.Equal(t, []string{"n-1"}, got.ExecutionSequence)
	assert.Equal(t, models.NodeStatusCompleted, got.NodeExecutions["n-1"].Status)
}

func TestExecutionRepository_ByWorkflow(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, fp.ExecutionRepository().SaveExecution(ctx, models.NewWorkflowExecution("exec-1", "wf-1", nil)))
	require.NoError(t, fp.ExecutionRepository().SaveExecution(ctx, models.NewWorkflowExecution("exec-2", "wf-1", nil)))
	require.NoError(t, fp.ExecutionRepository().SaveExecution(ctx, models.NewWorkflowExecution("exec-3", "wf-2", nil)))

	executions, err := fp.ExecutionRepository().ExecutionsByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Len(t, executions, 2)
}

func testSnapshot(executionID string) *models.ExecutionSnapshot {
	return &models.ExecutionSnapshot{
		ExecutionID:   executionID,
		WorkflowID:    "wf-1",
		WaitingNodeID: "approve-1",
		Prompt:        map[string]any{"message": "Approve?"},
		PendingInputs: map[string]map[string]*models.OneOrMany{
			"approve-1": {"result": models.NewOneOrMany(map[string]any{"city": "Berlin"})},
		},
		ExecutionSequence: []string{"t-1", "fetch-1"},
		SuspendedAt:       time.Now().UTC(),
	}
}

func TestSnapshotRepository_RoundTrip(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, fp.SnapshotRepository().SaveSnapshot(ctx, testSnapshot("exec-1")))

	got, err := fp.SnapshotRepository().SnapshotByExecutionID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "approve-1", got.WaitingNodeID)

	accumulated := got.PendingInputs["approve-1"]["result"]
	require.NotNil(t, accumulated)
	assert.Equal(t, map[string]any{"city": "Berlin"}, accumulated.Value())
}

func TestSnapshotRepository_ClaimSingleWinner(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, fp.SnapshotRepository().SaveSnapshot(ctx, testSnapshot("exec-1")))

	const claimers = 8

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)

	for i := range claimers {
		wg.Add(1)

		go func(worker int) {
			defer wg.Done()

			_, err := fp.SnapshotRepository().ClaimSnapshot(ctx, "exec-1", string(rune('a'+worker)))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()

				return
			}

			assert.True(t, persistence.IsSnapshotAlreadyClaimed(err))
		}(i)
	}

	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestSnapshotRepository_DeleteClearsClaim(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, fp.SnapshotRepository().SaveSnapshot(ctx, testSnapshot("exec-1")))

	_, err := fp.SnapshotRepository().ClaimSnapshot(ctx, "exec-1", "worker-a")
	require.NoError(t, err)

	require.NoError(t, fp.SnapshotRepository().DeleteSnapshot(ctx, "exec-1"))

	_, err = fp.SnapshotRepository().SnapshotByExecutionID(ctx, "exec-1")
	assert.True(t, persistence.IsSnapshotNotFound(err))

	// A fresh snapshot under the same ID must be claimable again.
	require.NoError(t, fp.SnapshotRepository().SaveSnapshot(ctx, testSnapshot("exec-1")))

	_, err = fp.SnapshotRepository().ClaimSnapshot(ctx, "exec-1", "worker-b")
	assert.NoError(t, err)
}

func TestHealthCheck(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	assert.NoError(t, fp.HealthCheck(context.Background()))

	missing := NewPersistence("/nonexistent/weft-test-root")
	assert.Error(t, missing.HealthCheck(context.Background()))
}
