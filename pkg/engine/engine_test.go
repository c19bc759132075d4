package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/persistence"
	"github.com/weftworks/weft/pkg/persistence/file"
	"github.com/weftworks/weft/pkg/protocol"
	"github.com/weftworks/weft/pkg/registry"
	"github.com/weftworks/weft/pkg/transform"
)

type runnerFunc func(ctx context.Context, node *models.WorkflowNode, inputs map[string]any) (map[string]any, error)

func (f runnerFunc) Run(ctx context.Context, node *models.WorkflowNode, inputs map[string]any) (map[string]any, error) {
	return f(ctx, node, inputs)
}

type stubFactory struct {
	kind string
	spec models.NodeSpec
	run  runnerFunc
}

func (f *stubFactory) Create(_ context.Context, _ *models.WorkflowNode) (protocol.Runner, error) {
	return f.run, nil
}

func (f *stubFactory) Kind() string                 { return f.kind }
func (f *stubFactory) Name() string                 { return f.kind }
func (f *stubFactory) Description() string          { return "test node" }
func (f *stubFactory) ConfigSchema() map[string]any { return nil }
func (f *stubFactory) Spec() models.NodeSpec        { return f.spec }

// capture records the resolved inputs each node was dispatched with.
type capture struct {
	mu     sync.Mutex
	inputs map[string]map[string]any
}

func newCapture() *capture {
	return &capture{inputs: make(map[string]map[string]any)}
}

func (c *capture) record(nodeID string, inputs map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inputs[nodeID] = inputs
}

func (c *capture) get(nodeID string) (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inputs, ok := c.inputs[nodeID]

	return inputs, ok
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, factories ...*stubFactory) (*Engine, persistence.Persistence) {
	t.Helper()

	logger := testLogger()
	reg := registry.NewRegistry(logger)

	for _, factory := range factories {
		require.NoError(t, reg.Register(factory))
	}

	store := file.NewPersistence(t.TempDir())
	converter := transform.NewConverter(logger)

	return NewEngine(logger, store, reg, converter, nil, "worker-test"), store
}

func actionNode(id, kind string) *models.WorkflowNode {
	nodeType, subtype, _ := strings.Cut(kind, ":")

	return &models.WorkflowNode{
		ID:       id,
		Type:     nodeType,
		Subtype:  subtype,
		Category: models.CategoryTypeAction,
		Name:     id,
		Enabled:  true,
	}
}

func conn(from, to string) *models.Connection {
	return &models.Connection{ID: from + "->" + to, FromNode: from, ToNode: to}
}

func saveWorkflow(t *testing.T, store persistence.Persistence, workflow *models.Workflow) {
	t.Helper()
	require.NoError(t, store.WorkflowRepository().SaveWorkflow(context.Background(), workflow))
}

// emitFactory returns payload under the default output port.
func emitFactory(kind string, payload map[string]any) *stubFactory {
	return &stubFactory{
		kind: kind,
		run: func(_ context.Context, _ *models.WorkflowNode, _ map[string]any) (map[string]any, error) {
			return map[string]any{models.DefaultOutputKey: payload}, nil
		},
	}
}

// echoFactory records its inputs and passes the delivered value through.
func echoFactory(kind string, c *capture) *stubFactory {
	return &stubFactory{
		kind: kind,
		run: func(_ context.Context, node *models.WorkflowNode, inputs map[string]any) (map[string]any, error) {
			c.record(node.ID, inputs)

			return map[string]any{models.DefaultOutputKey: inputs[models.DefaultOutputKey]}, nil
		},
	}
}

func TestStartExecutionLinearPassthrough(t *testing.T) {
	captured := newCapture()
	payload := map[string]any{"x": 1}

	eng, store := newTestEngine(t,
		emitFactory("emit", payload),
		echoFactory("echo", captured),
	)

	saveWorkflow(t, store, &models.Workflow{
		ID:     "wf-linear",
		Name:   "linear",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			actionNode("a", "emit"),
			actionNode("b", "echo"),
			actionNode("c", "echo"),
		},
		Connections: []*models.Connection{conn("a", "b"), conn("b", "c")},
	})

	execution, err := eng.StartExecution(context.Background(), "", "wf-linear", map[string]any{"source": "test"})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)
	assert.Equal(t, []string{"a", "b", "c"}, execution.ExecutionSequence)
	assert.NotNil(t, execution.EndTime)

	bInputs, ok := captured.get("b")
	require.True(t, ok)
	assert.Equal(t, payload, bInputs[models.DefaultOutputKey])

	cInputs, ok := captured.get("c")
	require.True(t, ok)
	assert.Equal(t, payload, cInputs[models.DefaultOutputKey])

	persisted, err := store.ExecutionRepository().ExecutionByID(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, persisted.Status)
	assert.Equal(t, models.NodeStatusCompleted, persisted.NodeExecutions["c"].Status)
}

func TestStartExecutionSeedsTriggerData(t *testing.T) {
	captured := newCapture()

	eng, store := newTestEngine(t, echoFactory("echo", captured))

	saveWorkflow(t, store, &models.Workflow{
		ID:     "wf-trigger",
		Name:   "trigger seed",
		Status: models.WorkflowStatusPublished,
		Nodes:  []*models.WorkflowNode{actionNode("root", "echo")},
	})

	triggerData := map[string]any{"webhook_body": map[string]any{"id": "42"}}

	execution, err := eng.StartExecution(context.Background(), "exec-1", "wf-trigger", triggerData)
	require.NoError(t, err)
	assert.Equal(t, "exec-1", execution.ID)

	rootInputs, ok := captured.get("root")
	require.True(t, ok)
	assert.Equal(t, triggerData, rootInputs[models.TriggerInputKey])
}

func TestStartExecutionRejectsUnpublishedWorkflow(t *testing.T) {
	eng, store := newTestEngine(t)

	saveWorkflow(t, store, &models.Workflow{
		ID:     "wf-draft",
		Name:   "draft",
		Status: models.WorkflowStatusDraft,
	})

	_, err := eng.StartExecution(context.Background(), "", "wf-draft", nil)
	require.ErrorIs(t, err, ErrWorkflowNotExecutable)
}

func TestStartExecutionFanInAccumulatesDeliveries(t *testing.T) {
	captured := newCapture()

	// Both output ports of "pair" feed the same successor, so the join sees a
	// two-element accumulation under the default input key.
	pair := &stubFactory{
		kind: "pair",
		run: func(_ context.Context, _ *models.WorkflowNode, _ map[string]any) (map[string]any, error) {
			return map[string]any{
				models.DefaultOutputKey: map[string]any{"branch": "first"},
				"extra":                 map[string]any{"branch": "second"},
			}, nil
		},
	}

	eng, store := newTestEngine(t, pair, echoFactory("echo", captured))

	saveWorkflow(t, store, &models.Workflow{
		ID:     "wf-fanin",
		Name:   "fan in",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			actionNode("pair", "pair"),
			actionNode("join", "echo"),
		},
		Connections: []*models.Connection{
			{ID: "c1", FromNode: "pair", ToNode: "join"},
			{ID: "c2", FromNode: "pair", ToNode: "join", OutputKey: "extra"},
		},
	})

	execution, err := eng.StartExecution(context.Background(), "", "wf-fanin", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)

	joinInputs, ok := captured.get("join")
	require.True(t, ok)

	accumulated, ok := joinInputs[models.DefaultOutputKey].([]any)
	require.True(t, ok, "fan-in input should resolve to a list, got %T", joinInputs[models.DefaultOutputKey])
	assert.Len(t, accumulated, 2)
	assert.Contains(t, accumulated, map[string]any{"branch": "first"})
	assert.Contains(t, accumulated, map[string]any{"branch": "second"})
}

func TestStartExecutionDiamondFanInWaitsForBothBranches(t *testing.T) {
	captured := newCapture()

	branch := func(kind string, payload map[string]any, delay time.Duration) *stubFactory {
		return &stubFactory{
			kind: kind,
			run: func(_ context.Context, _ *models.WorkflowNode, _ map[string]any) (map[string]any, error) {
				time.Sleep(delay)

				return map[string]any{models.DefaultOutputKey: payload}, nil
			},
		}
	}

	eng, store := newTestEngine(t,
		emitFactory("emit", map[string]any{"seed": true}),
		branch("fast", map[string]any{"from": "b"}, 0),
		branch("slow", map[string]any{"from": "c"}, 100*time.Millisecond),
		echoFactory("echo", captured),
	)

	saveWorkflow(t, store, &models.Workflow{
		ID:     "wf-diamond",
		Name:   "diamond",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			actionNode("a", "emit"),
			actionNode("b", "fast"),
			actionNode("c", "slow"),
			actionNode("d", "echo"),
		},
		Connections: []*models.Connection{
			conn("a", "b"), conn("a", "c"), conn("b", "d"), conn("c", "d"),
		},
	})

	execution, err := eng.StartExecution(context.Background(), "", "wf-diamond", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)

	// The join must not run until both branches have delivered, even though
	// one finishes long before the other.
	dInputs, ok := captured.get("d")
	require.True(t, ok)

	accumulated, ok := dInputs[models.DefaultOutputKey].([]any)
	require.True(t, ok, "join input should resolve to a list, got %T", dInputs[models.DefaultOutputKey])
	require.Len(t, accumulated, 2)

	// Accumulation preserves delivery order: the fast branch lands first.
	assert.Equal(t, map[string]any{"from": "b"}, accumulated[0])
	assert.Equal(t, map[string]any{"from": "c"}, accumulated[1])

	assert.Equal(t, []string{"a", "b", "c", "d"}, execution.ExecutionSequence)
}

func TestStartExecutionFanInProceedsWhenBranchCannotFire(t *testing.T) {
	captured := newCapture()

	router := &stubFactory{
		kind: "router",
		run: func(_ context.Context, _ *models.WorkflowNode, _ map[string]any) (map[string]any, error) {
			return map[string]any{"yes": map[string]any{"picked": true}}, nil
		},
	}

	eng, store := newTestEngine(t, router, echoFactory("echo", captured))

	// join fans in from both branches, but the router only ever feeds one of
	// them; the dead branch must not hold the join back.
	saveWorkflow(t, store, &models.Workflow{
		ID:     "wf-halfdiamond",
		Name:   "half diamond",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			actionNode("router", "router"),
			actionNode("yes-branch", "echo"),
			actionNode("no-branch", "echo"),
			actionNode("join", "echo"),
		},
		Connections: []*models.Connection{
			{ID: "c1", FromNode: "router", ToNode: "yes-branch", OutputKey: "yes"},
			{ID: "c2", FromNode: "router", ToNode: "no-branch", OutputKey: "no"},
			conn("yes-branch", "join"),
			conn("no-branch", "join"),
		},
	})

	execution, err := eng.StartExecution(context.Background(), "", "wf-halfdiamond", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)

	joinInputs, ok := captured.get("join")
	require.True(t, ok, "join must run on the live branch alone")
	assert.Equal(t, map[string]any{"picked": true}, joinInputs[models.DefaultOutputKey])

	_, ran := captured.get("no-branch")
	assert.False(t, ran)
}

func TestStartExecutionConversionReshapesPayload(t *testing.T) {
	captured := newCapture()

	eng, store := newTestEngine(t,
		emitFactory("emit", map[string]any{"x": 21}),
		echoFactory("echo", captured),
	)

	saveWorkflow(t, store, &models.Workflow{
		ID:     "wf-conv",
		Name:   "conversion",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			actionNode("a", "emit"),
			actionNode("b", "echo"),
		},
		Connections: []*models.Connection{
			{ID: "c1", FromNode: "a", ToNode: "b", Conversion: `{"doubled": input.x * 2}`},
		},
	})

	execution, err := eng.StartExecution(context.Background(), "", "wf-conv", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)

	bInputs, ok := captured.get("b")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"doubled": 42}, bInputs[models.DefaultOutputKey])
}

func TestStartExecutionConversionFailureDegradesToPassThrough(t *testing.T) {
	captured := newCapture()
	payload := map[string]any{"x": 1}

	eng, store := newTestEngine(t,
		emitFactory("emit", payload),
		echoFactory("echo", captured),
	)

	saveWorkflow(t, store, &models.Workflow{
		ID:     "wf-badconv",
		Name:   "bad conversion",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			actionNode("a", "emit"),
			actionNode("b", "echo"),
		},
		Connections: []*models.Connection{
			{ID: "c1", FromNode: "a", ToNode: "b", Conversion: `definitely not valid ((`},
		},
	})

	execution, err := eng.StartExecution(context.Background(), "", "wf-badconv", nil)
	require.NoError(t, err)

	// Conversion failures are non-fatal: the shaped value flows through.
	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)

	bInputs, ok := captured.get("b")
	require.True(t, ok)
	assert.Equal(t, payload, bInputs[models.DefaultOutputKey])
}

func TestStartExecutionFailFastOnFailureIndicator(t *testing.T) {
	captured := newCapture()

	failing := &stubFactory{
		kind: "probe",
		spec: models.NodeSpec{
			Type:         "probe",
			OutputFields: map[string]any{"success": true, "detail": ""},
		},
		run: func(_ context.Context, _ *models.WorkflowNode, _ map[string]any) (map[string]any, error) {
			return map[string]any{
				models.DefaultOutputKey: map[string]any{"success": false, "detail": "upstream said no"},
			}, nil
		},
	}

	eng, store := newTestEngine(t, failing, echoFactory("echo", captured))

	saveWorkflow(t, store, &models.Workflow{
		ID:     "wf-failfast",
		Name:   "fail fast",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			actionNode("probe", "probe"),
			actionNode("after", "echo"),
		},
		Connections: []*models.Connection{conn("probe", "after")},
	})

	execution, err := eng.StartExecution(context.Background(), "", "wf-failfast", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusError, execution.Status)
	assert.Contains(t, execution.Error, "success=false")
	assert.Equal(t, models.NodeStatusFailed, execution.NodeExecutions["probe"].Status)

	// The failing node's shaped output is still recorded for inspection.
	assert.Equal(t, false, execution.NodeExecutions["probe"].OutputData[models.DefaultOutputKey].(map[string]any)["success"])

	_, ran := captured.get("after")
	assert.False(t, ran, "downstream node must not run after a failure indicator")
}

func TestStartExecutionNodeErrorFailsExecution(t *testing.T) {
	captured := newCapture()

	boom := &stubFactory{
		kind: "boom",
		run: func(_ context.Context, _ *models.WorkflowNode, _ map[string]any) (map[string]any, error) {
			return nil, errors.New("exploded")
		},
	}

	eng, store := newTestEngine(t, boom, echoFactory("echo", captured))

	saveWorkflow(t, store, &models.Workflow{
		ID:     "wf-boom",
		Name:   "boom",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			actionNode("boom", "boom"),
			actionNode("after", "echo"),
		},
		Connections: []*models.Connection{conn("boom", "after")},
	})

	execution, err := eng.StartExecution(context.Background(), "", "wf-boom", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusError, execution.Status)
	assert.Contains(t, execution.Error, "exploded")
	assert.Equal(t, models.NodeStatusFailed, execution.NodeExecutions["boom"].Status)

	_, ran := captured.get("after")
	assert.False(t, ran)
}

func TestStartExecutionFailFastLetsInFlightBranchFinish(t *testing.T) {
	captured := newCapture()

	boom := &stubFactory{
		kind: "boom",
		run: func(_ context.Context, _ *models.WorkflowNode, _ map[string]any) (map[string]any, error) {
			return nil, errors.New("exploded")
		},
	}

	slow := &stubFactory{
		kind: "slowemit",
		run: func(_ context.Context, _ *models.WorkflowNode, _ map[string]any) (map[string]any, error) {
			time.Sleep(100 * time.Millisecond)

			return map[string]any{models.DefaultOutputKey: map[string]any{"late": true}}, nil
		},
	}

	eng, store := newTestEngine(t,
		emitFactory("emit", map[string]any{"seed": true}),
		boom,
		slow,
		echoFactory("echo", captured),
	)

	// boom fails immediately while its sibling is still in flight.
	saveWorkflow(t, store, &models.Workflow{
		ID:     "wf-doomed",
		Name:   "doomed sibling",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			actionNode("a", "emit"),
			actionNode("boom", "boom"),
			actionNode("slow", "slowemit"),
			actionNode("after", "echo"),
		},
		Connections: []*models.Connection{
			conn("a", "boom"), conn("a", "slow"), conn("slow", "after"),
		},
	})

	execution, err := eng.StartExecution(context.Background(), "", "wf-doomed", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusError, execution.Status)
	assert.Contains(t, execution.Error, "exploded")

	// The in-flight sibling finished and its record stays visible for
	// diagnosis.
	slowRecord := execution.NodeExecutions["slow"]
	require.NotNil(t, slowRecord)
	assert.Equal(t, models.NodeStatusCompleted, slowRecord.Status)
	assert.Equal(t, map[string]any{"late": true}, slowRecord.OutputData[models.DefaultOutputKey])
	assert.Contains(t, execution.ExecutionSequence, "slow")

	// But its output propagates nowhere.
	_, ran := captured.get("after")
	assert.False(t, ran, "successors of a finished sibling must not run after a failure")
}

func TestStartExecutionRetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32

	flaky := &stubFactory{
		kind: "flaky",
		spec: models.NodeSpec{Type: "flaky", MaxRetries: 2},
		run: func(_ context.Context, _ *models.WorkflowNode, _ map[string]any) (map[string]any, error) {
			if attempts.Add(1) < 3 {
				return nil, errors.New("transient")
			}

			return map[string]any{models.DefaultOutputKey: map[string]any{"ok": true}}, nil
		},
	}

	eng, store := newTestEngine(t, flaky)

	saveWorkflow(t, store, &models.Workflow{
		ID:     "wf-flaky",
		Name:   "flaky",
		Status: models.WorkflowStatusPublished,
		Nodes:  []*models.WorkflowNode{actionNode("flaky", "flaky")},
	})

	execution, err := eng.StartExecution(context.Background(), "", "wf-flaky", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, 2, execution.NodeExecutions["flaky"].RetryCount)
}

func TestStartExecutionPersistsRetryingStatusBetweenAttempts(t *testing.T) {
	logger := testLogger()
	reg := registry.NewRegistry(logger)
	store := file.NewPersistence(t.TempDir())

	var attempts atomic.Int32

	// The second attempt succeeds only once it observes the persisted record
	// in the retrying status.
	flaky := &stubFactory{
		kind: "flaky",
		spec: models.NodeSpec{Type: "flaky", MaxRetries: 2},
		run: func(ctx context.Context, node *models.WorkflowNode, _ map[string]any) (map[string]any, error) {
			if attempts.Add(1) == 1 {
				return nil, errors.New("transient")
			}

			info, _ := protocol.ExecutionFromContext(ctx)
			deadline := time.Now().Add(2 * time.Second)

			for time.Now().Before(deadline) {
				persisted, err := store.ExecutionRepository().ExecutionByID(ctx, info.ExecutionID)
				if err == nil && persisted.NodeExecutions[node.ID] != nil &&
					persisted.NodeExecutions[node.ID].Status == models.NodeStatusRetrying {
					return map[string]any{models.DefaultOutputKey: map[string]any{"ok": true}}, nil
				}

				time.Sleep(5 * time.Millisecond)
			}

			return nil, errors.New("retrying status never persisted")
		},
	}

	require.NoError(t, reg.Register(flaky))

	eng := NewEngine(logger, store, reg, transform.NewConverter(logger), nil, "worker-test")

	saveWorkflow(t, store, &models.Workflow{
		ID:     "wf-retrying",
		Name:   "retrying status",
		Status: models.WorkflowStatusPublished,
		Nodes:  []*models.WorkflowNode{actionNode("flaky", "flaky")},
	})

	execution, err := eng.StartExecution(context.Background(), "", "wf-retrying", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)
	assert.Equal(t, models.NodeStatusCompleted, execution.NodeExecutions["flaky"].Status)
	assert.Equal(t, 1, execution.NodeExecutions["flaky"].RetryCount)
}

func TestStartExecutionNodeTimeout(t *testing.T) {
	slow := &stubFactory{
		kind: "slow",
		spec: models.NodeSpec{Type: "slow", Timeout: 20 * time.Millisecond},
		run: func(ctx context.Context, _ *models.WorkflowNode, _ map[string]any) (map[string]any, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return map[string]any{models.DefaultOutputKey: map[string]any{}}, nil
			}
		},
	}

	eng, store := newTestEngine(t, slow)

	saveWorkflow(t, store, &models.Workflow{
		ID:     "wf-slow",
		Name:   "slow",
		Status: models.WorkflowStatusPublished,
		Nodes:  []*models.WorkflowNode{actionNode("slow", "slow")},
	})

	execution, err := eng.StartExecution(context.Background(), "", "wf-slow", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusTimeout, execution.Status)
	assert.Equal(t, models.NodeStatusFailed, execution.NodeExecutions["slow"].Status)
}

func TestStartExecutionCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blocking := &stubFactory{
		kind: "block",
		run: func(runCtx context.Context, _ *models.WorkflowNode, _ map[string]any) (map[string]any, error) {
			cancel()
			<-runCtx.Done()

			return nil, runCtx.Err()
		},
	}

	eng, store := newTestEngine(t, blocking)

	saveWorkflow(t, store, &models.Workflow{
		ID:     "wf-cancel",
		Name:   "cancel",
		Status: models.WorkflowStatusPublished,
		Nodes:  []*models.WorkflowNode{actionNode("block", "block")},
	})

	execution, err := eng.StartExecution(ctx, "", "wf-cancel", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCanceled, execution.Status)
}

func TestStartExecutionSkipsDisabledNodes(t *testing.T) {
	captured := newCapture()

	eng, store := newTestEngine(t,
		emitFactory("emit", map[string]any{"x": 1}),
		echoFactory("echo", captured),
	)

	disabled := actionNode("off", "echo")
	disabled.Enabled = false

	saveWorkflow(t, store, &models.Workflow{
		ID:     "wf-disabled",
		Name:   "disabled",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			actionNode("a", "emit"),
			disabled,
			actionNode("after", "echo"),
		},
		Connections: []*models.Connection{conn("a", "off"), conn("off", "after")},
	})

	execution, err := eng.StartExecution(context.Background(), "", "wf-disabled", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)
	assert.Equal(t, models.NodeStatusSkipped, execution.NodeExecutions["off"].Status)
	assert.Equal(t, []string{"a"}, execution.ExecutionSequence)

	// A skipped node propagates nothing, so its branch never becomes ready.
	_, ran := captured.get("after")
	assert.False(t, ran)
}

func TestStartExecutionRoutesBySelectedPort(t *testing.T) {
	captured := newCapture()

	router := &stubFactory{
		kind: "router",
		run: func(_ context.Context, _ *models.WorkflowNode, _ map[string]any) (map[string]any, error) {
			return map[string]any{"yes": map[string]any{"picked": true}}, nil
		},
	}

	eng, store := newTestEngine(t, router, echoFactory("echo", captured))

	saveWorkflow(t, store, &models.Workflow{
		ID:     "wf-route",
		Name:   "routing",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			actionNode("router", "router"),
			actionNode("yes-branch", "echo"),
			actionNode("no-branch", "echo"),
		},
		Connections: []*models.Connection{
			{ID: "c1", FromNode: "router", ToNode: "yes-branch", OutputKey: "yes"},
			{ID: "c2", FromNode: "router", ToNode: "no-branch", OutputKey: "no"},
		},
	})

	execution, err := eng.StartExecution(context.Background(), "", "wf-route", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)

	yesInputs, ok := captured.get("yes-branch")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"picked": true}, yesInputs[models.DefaultOutputKey])

	_, ran := captured.get("no-branch")
	assert.False(t, ran, "unselected port must not deliver")
}

func waitGateFactory() *stubFactory {
	return &stubFactory{
		kind: "gate",
		run: func(_ context.Context, node *models.WorkflowNode, inputs map[string]any) (map[string]any, error) {
			if response, ok := inputs[models.ResponseInputKey].(map[string]any); ok {
				return map[string]any{models.DefaultOutputKey: response}, nil
			}

			return nil, &protocol.WaitError{Prompt: map[string]any{"message": "approve?", "node_id": node.ID}}
		},
	}
}

func TestSuspendAndResume(t *testing.T) {
	captured := newCapture()

	eng, store := newTestEngine(t,
		emitFactory("emit", map[string]any{"order": "o-1"}),
		waitGateFactory(),
		echoFactory("echo", captured),
	)

	saveWorkflow(t, store, &models.Workflow{
		ID:     "wf-human",
		Name:   "approval",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			actionNode("a", "emit"),
			actionNode("gate", "gate"),
			actionNode("after", "echo"),
		},
		Connections: []*models.Connection{conn("a", "gate"), conn("gate", "after")},
	})

	ctx := context.Background()

	execution, err := eng.StartExecution(ctx, "exec-h1", "wf-human", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusWaitingForHuman, execution.Status)
	assert.Equal(t, "gate", execution.CurrentNodeID)
	assert.Equal(t, models.NodeStatusWaitingInput, execution.NodeExecutions["gate"].Status)

	snapshot, err := store.SnapshotRepository().SnapshotByExecutionID(ctx, "exec-h1")
	require.NoError(t, err)
	assert.Equal(t, "gate", snapshot.WaitingNodeID)
	assert.Equal(t, "approve?", snapshot.Prompt["message"])

	// The gate's consumed inputs survive in the snapshot.
	require.Contains(t, snapshot.PendingInputs, "gate")
	assert.Equal(t, map[string]any{"order": "o-1"}, snapshot.PendingInputs["gate"][models.DefaultOutputKey].Value())

	response := map[string]any{"approved": true}

	resumed, err := eng.ResumeExecution(ctx, "exec-h1", response, "alice")
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, resumed.Status)
	assert.Equal(t, models.NodeStatusCompleted, resumed.NodeExecutions["gate"].Status)

	afterInputs, ok := captured.get("after")
	require.True(t, ok)
	assert.Equal(t, response, afterInputs[models.DefaultOutputKey])

	// The snapshot is consumed by a successful resume.
	_, err = store.SnapshotRepository().SnapshotByExecutionID(ctx, "exec-h1")
	require.ErrorIs(t, err, persistence.ErrSnapshotNotFound)
}

func TestResumeDoesNotRerunCompletedNodes(t *testing.T) {
	var emits atomic.Int32

	emitOnce := &stubFactory{
		kind: "emit",
		run: func(_ context.Context, _ *models.WorkflowNode, _ map[string]any) (map[string]any, error) {
			emits.Add(1)

			return map[string]any{models.DefaultOutputKey: map[string]any{"n": 1}}, nil
		},
	}

	eng, store := newTestEngine(t, emitOnce, waitGateFactory())

	saveWorkflow(t, store, &models.Workflow{
		ID:     "wf-norerun",
		Name:   "no rerun",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			actionNode("a", "emit"),
			actionNode("gate", "gate"),
		},
		Connections: []*models.Connection{conn("a", "gate")},
	})

	ctx := context.Background()

	_, err := eng.StartExecution(ctx, "exec-h2", "wf-norerun", nil)
	require.NoError(t, err)
	require.Equal(t, int32(1), emits.Load())

	resumed, err := eng.ResumeExecution(ctx, "exec-h2", map[string]any{"ok": true}, "")
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, resumed.Status)
	assert.Equal(t, int32(1), emits.Load(), "completed node must not run again on resume")
}

func TestResumeLostClaimRace(t *testing.T) {
	eng, store := newTestEngine(t, waitGateFactory())

	saveWorkflow(t, store, &models.Workflow{
		ID:     "wf-claim",
		Name:   "claim race",
		Status: models.WorkflowStatusPublished,
		Nodes:  []*models.WorkflowNode{actionNode("gate", "gate")},
	})

	ctx := context.Background()

	_, err := eng.StartExecution(ctx, "exec-h3", "wf-claim", nil)
	require.NoError(t, err)

	// Another worker claims the snapshot first.
	_, err = store.SnapshotRepository().ClaimSnapshot(ctx, "exec-h3", "other-worker")
	require.NoError(t, err)

	_, err = eng.ResumeExecution(ctx, "exec-h3", map[string]any{"ok": true}, "")
	require.ErrorIs(t, err, persistence.ErrSnapshotAlreadyClaimed)
}

func TestStartExecutionUnknownNodeKindFails(t *testing.T) {
	eng, store := newTestEngine(t)

	saveWorkflow(t, store, &models.Workflow{
		ID:     "wf-unknown",
		Name:   "unknown kind",
		Status: models.WorkflowStatusPublished,
		Nodes:  []*models.WorkflowNode{actionNode("mystery", "nope")},
	})

	execution, err := eng.StartExecution(context.Background(), "", "wf-unknown", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusError, execution.Status)
	assert.Contains(t, execution.Error, "not registered")
}
