package coordinator

import (
	"context"
	"testing"
	"time"

	"flowengine/internal/core/memory"
	"flowengine/internal/decision"
	"flowengine/internal/domain"
	"flowengine/internal/executor"
	"flowengine/internal/flowtype"
	"flowengine/internal/orchestrator"
	"flowengine/internal/recovery"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type chanBus struct {
	ch chan domain.BackgroundJobCompletedEvent
}

func newChanBus() *chanBus {
	return &chanBus{ch: make(chan domain.BackgroundJobCompletedEvent, 8)}
}

func (b *chanBus) PublishJobCompleted(ctx context.Context, event domain.BackgroundJobCompletedEvent) error {
	b.ch <- event
	return nil
}

func (b *chanBus) SubscribeJobCompleted(ctx context.Context) (<-chan domain.BackgroundJobCompletedEvent, error) {
	return b.ch, nil
}

type captureQueue struct {
	jobs []domain.BackgroundJob
}

func (q *captureQueue) Push(ctx context.Context, job domain.BackgroundJob) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *captureQueue) Pop(ctx context.Context) (domain.BackgroundJob, error) {
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, nil
}

type alwaysAllow struct{}

func (alwaysAllow) Allow(ctx context.Context, key string) (bool, error) { return true, nil }

func TestListenerResumesPausedFlow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.NewStore()
	queue := &captureQueue{}
	registry := flowtype.NewRegistry()
	require.NoError(t, registry.Register(domain.FlowTypeDiscovery, executor.DiscoveryHandlers(store, queue, alwaysAllow{})))

	orch := orchestrator.NewOrchestrator(
		store,
		executor.NewExecutor(registry),
		decision.NewRuleBasedProvider(registry, 3),
		recovery.NewService(store, store, registry, 24*time.Hour),
		registry,
		3,
	)

	scope := domain.TenantScope{ClientAccountID: uuid.New(), EngagementID: uuid.New()}
	flow, err := orch.CreateFlow(ctx, domain.FlowTypeDiscovery, "Listener Flow", nil, scope)
	require.NoError(t, err)

	_, err = orch.ExecutePhase(ctx, flow.ID, "data_import", nil, scope)
	require.NoError(t, err)
	mapping := datatypes.JSON([]byte(`{"mappings":{"hostname":"asset_name"}}`))
	_, err = orch.ExecutePhase(ctx, flow.ID, "field_mapping", mapping, scope)
	require.NoError(t, err)
	_, err = orch.ExecutePhase(ctx, flow.ID, "data_validation", nil, scope)
	require.NoError(t, err)
	_, err = orch.ExecutePhase(ctx, flow.ID, "asset_classification", nil, scope)
	require.NoError(t, err)
	require.Len(t, queue.jobs, 1)

	bus := newChanBus()
	listener := NewListener(orch, bus)
	go listener.Start(ctx)

	job := queue.jobs[0]
	require.NoError(t, bus.PublishJobCompleted(ctx, domain.BackgroundJobCompletedEvent{
		JobID:           job.ID,
		FlowID:          job.FlowID,
		Phase:           job.Phase,
		JobType:         job.JobType,
		Success:         true,
		ClientAccountID: job.ClientAccountID,
		EngagementID:    job.EngagementID,
	}))

	require.Eventually(t, func() bool {
		status, err := orch.GetFlowStatus(ctx, flow.ID, scope, false)
		return err == nil && status.Status == domain.FlowActive
	}, 2*time.Second, 10*time.Millisecond)

	status, err := orch.GetFlowStatus(ctx, flow.ID, scope, false)
	require.NoError(t, err)
	assert.Equal(t, "report_generation", status.CurrentPhase)
}

func TestListenerDropsEventForMissingFlow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.NewStore()
	registry := flowtype.NewRegistry()
	require.NoError(t, registry.Register(domain.FlowTypeDiscovery, executor.DiscoveryHandlers(store, &captureQueue{}, alwaysAllow{})))
	orch := orchestrator.NewOrchestrator(
		store,
		executor.NewExecutor(registry),
		decision.NewRuleBasedProvider(registry, 3),
		recovery.NewService(store, store, registry, 24*time.Hour),
		registry,
		3,
	)

	listener := NewListener(orch, newChanBus())

	// Must not panic or wedge; the completion is simply dropped.
	listener.handleJobCompleted(ctx, domain.BackgroundJobCompletedEvent{
		JobID:   uuid.New(),
		FlowID:  uuid.New(),
		Phase:   "asset_classification",
		JobType: "enrichment",
		Success: true,
	})
}
