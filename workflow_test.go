package dagflow

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warriorguo/dagflow/builder"
	"github.com/warriorguo/dagflow/predicate"
	"github.com/warriorguo/dagflow/types"
)

type documentExecutor struct {
	mu     sync.Mutex
	calls  []string
	amount float64
}

func (e *documentExecutor) Execute(ctx context.Context, domain string, input types.Data) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, domain)

	switch domain {
	case "validate":
		return types.Data{"amount": e.amount, "region": "eu"}, nil
	case "review", "approve", "publish":
		return types.Data{"status": domain + "d", "document": input["document"]}, nil
	}
	return nil, errors.NotFoundf("domain %s", domain)
}

func (e *documentExecutor) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func documentDefinition(t *testing.T) *types.Definition {
	large, err := predicate.Lua("return input.amount > 100")
	require.Nil(t, err)
	small, err := predicate.Lua("return input.amount <= 100")
	require.Nil(t, err)

	input := types.Data{"document": "doc-1"}
	def, err := builder.New("document", "document approval", "").
		AddTask("validate", "Validate", "validate", input).
		AddTask("review", "Manual review", "review", input).
		AddTask("approve", "Auto approve", "approve", input).
		AddDecision("gate", "Reviewer sign-off", predicate.AwaitContextKey("approved")).
		AddTask("publish", "Publish", "publish", input).
		ConnectIf("validate", "review", large, "amount > 100").
		ConnectIf("validate", "approve", small, "amount <= 100").
		Connect("review", "gate").
		ConnectIf("gate", "publish", predicate.Truthy(), "approved").
		Connect("approve", "publish").
		SetEndNodes("publish").
		Build()
	require.Nil(t, err)
	return def
}

func TestDocumentApproval(t *testing.T) {
	ctx := context.Background()
	executor := &documentExecutor{amount: 150}
	o, err := NewOrchestrator(executor)
	require.Nil(t, err)
	defer o.Close(ctx)

	require.Nil(t, o.RegisterDefinition(documentDefinition(t)))
	id, err := o.CreateInstance(ctx, "document", types.Data{"requester": "alice"})
	require.Nil(t, err)
	require.Nil(t, o.StartInstance(ctx, id))

	require.Eventually(t, func() bool {
		snapshot, err := o.GetInstanceStatus(ctx, id)
		return err == nil && snapshot.IsCompleted("review") && snapshot.InFrontier("gate")
	}, 5*time.Second, 5*time.Millisecond)

	snapshot, err := o.GetInstanceStatus(ctx, id)
	require.Nil(t, err)
	assert.Equal(t, types.Running, snapshot.State)

	require.Nil(t, o.UpdateContext(ctx, id, types.Data{"approved": true}))

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	snapshot, err = o.WaitInstance(waitCtx, id)
	require.Nil(t, err)
	assert.Equal(t, types.Completed, snapshot.State)
	assert.Equal(t, []string{"validate", "review", "gate", "publish"}, snapshot.CompletedNodes)
	assert.Equal(t, []string{"validate", "review", "publish"}, executor.Calls())
	assert.Equal(t, true, snapshot.Outputs["gate"])
	assert.Equal(t, "alice", snapshot.Context["requester"])

	dot, err := o.RenderInstance(ctx, id)
	require.Nil(t, err)
	assert.Contains(t, dot, `label="amount > 100"`)
}

func TestDocumentAutoApprove(t *testing.T) {
	ctx := context.Background()
	executor := &documentExecutor{amount: 20}
	o, err := NewOrchestrator(executor)
	require.Nil(t, err)
	defer o.Close(ctx)

	require.Nil(t, o.RegisterDefinition(documentDefinition(t)))
	id, err := o.CreateInstance(ctx, "document", nil)
	require.Nil(t, err)
	require.Nil(t, o.StartInstance(ctx, id))

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	snapshot, err := o.WaitInstance(waitCtx, id)
	require.Nil(t, err)
	assert.Equal(t, types.Completed, snapshot.State)
	assert.Equal(t, []string{"validate", "approve", "publish"}, snapshot.CompletedNodes)
}

func TestNewOrchestratorOptions(t *testing.T) {
	_, err := NewOrchestrator(nil)
	assert.True(t, errors.Is(err, errors.BadRequest))

	_, err = NewOrchestrator(&documentExecutor{}, types.SetFanOutConcurrency(0))
	assert.True(t, errors.Is(err, errors.NotValid))

	_, err = NewOrchestrator(&documentExecutor{}, types.WithRedisConfig(&types.RedisConfig{Addr: "127.0.0.1:1"}))
	assert.NotNil(t, err)

	o, err := NewOrchestrator(&documentExecutor{},
		types.WithRedisConfig(&types.RedisConfig{Addr: "127.0.0.1:1"}),
		types.EnableMemStore(),
	)
	require.Nil(t, err)
	assert.Nil(t, o.Close(context.Background()))
}

func TestRedisArchive(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)
	config := &types.RedisConfig{Addr: server.Addr(), KeyPrefix: "docs"}

	o, err := NewOrchestrator(&documentExecutor{amount: 5}, types.WithRedisConfig(config))
	require.Nil(t, err)
	require.Nil(t, o.RegisterDefinition(documentDefinition(t)))
	id, err := o.CreateInstance(ctx, "document", nil)
	require.Nil(t, err)
	require.Nil(t, o.StartInstance(ctx, id))

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = o.WaitInstance(waitCtx, id)
	require.Nil(t, err)
	require.Nil(t, o.Close(ctx))

	keys, err := server.HKeys("docs:/instance/")
	require.Nil(t, err)
	assert.Equal(t, []string{id}, keys)

	// a fresh orchestrator only knows the instance through the archive
	o, err = NewOrchestrator(&documentExecutor{}, types.WithRedisConfig(config))
	require.Nil(t, err)
	defer o.Close(ctx)

	snapshot, err := o.GetInstanceStatus(ctx, id)
	require.Nil(t, err)
	assert.Equal(t, types.Completed, snapshot.State)
	assert.Equal(t, []string{"validate", "approve", "publish"}, snapshot.CompletedNodes)

	ids, err := o.ListInstanceIDs(ctx)
	require.Nil(t, err)
	assert.Equal(t, []string{id}, ids)
}

func TestMetricsRegisterer(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	o, err := NewOrchestrator(&documentExecutor{amount: 1}, types.WithMetricsRegisterer(reg))
	require.Nil(t, err)
	defer o.Close(ctx)

	require.Nil(t, o.RegisterDefinition(documentDefinition(t)))
	for i := 0; i < 2; i++ {
		id, err := o.CreateInstance(ctx, "document", nil)
		require.Nil(t, err)
		require.Nil(t, o.StartInstance(ctx, id))
		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err = o.WaitInstance(waitCtx, id)
		cancel()
		require.Nil(t, err)
	}

	expected := `
# HELP dagflow_instances_finished_total Total number of workflow instances that reached a terminal state
# TYPE dagflow_instances_finished_total counter
dagflow_instances_finished_total{definition="document",state="COMPLETED"} 2
`
	assert.Nil(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "dagflow_instances_finished_total"))

	expected = `
# HELP dagflow_active_instances Number of started instances not yet terminal
# TYPE dagflow_active_instances gauge
dagflow_active_instances 0
`
	assert.Nil(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "dagflow_active_instances"))
}

func TestNewOrchestratorFromEnv(t *testing.T) {
	t.Setenv("DAGFLOW_TEST_FAN_OUT_CONCURRENCY", "3")
	o, err := NewOrchestratorFromEnv(&documentExecutor{amount: 500}, "DAGFLOW_TEST_")
	require.Nil(t, err)
	defer o.Close(context.Background())

	require.Nil(t, o.RegisterDefinition(documentDefinition(t)))
	assert.Equal(t, []string{"document"}, o.ListDefinitionIDs())

	t.Setenv("DAGFLOW_TEST_STORE", "etcd")
	_, err = NewOrchestratorFromEnv(&documentExecutor{}, "DAGFLOW_TEST_")
	assert.True(t, errors.Is(err, errors.NotSupported))
}
