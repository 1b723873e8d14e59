package worker

import (
	"context"
	"errors"
	"testing"

	"flowengine/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memQueue struct {
	jobs []domain.BackgroundJob
}

func (q *memQueue) Push(ctx context.Context, job domain.BackgroundJob) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memQueue) Pop(ctx context.Context) (domain.BackgroundJob, error) {
	if len(q.jobs) == 0 {
		return domain.BackgroundJob{}, errors.New("queue empty")
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, nil
}

type memBus struct {
	published []domain.BackgroundJobCompletedEvent
}

func (b *memBus) PublishJobCompleted(ctx context.Context, event domain.BackgroundJobCompletedEvent) error {
	b.published = append(b.published, event)
	return nil
}

func (b *memBus) SubscribeJobCompleted(ctx context.Context) (<-chan domain.BackgroundJobCompletedEvent, error) {
	ch := make(chan domain.BackgroundJobCompletedEvent)
	close(ch)
	return ch, nil
}

func testJob(jobType string) domain.BackgroundJob {
	return domain.BackgroundJob{
		ID:              uuid.New(),
		FlowID:          uuid.New(),
		Phase:           "asset_classification",
		JobType:         jobType,
		ClientAccountID: uuid.New(),
		EngagementID:    uuid.New(),
	}
}

func TestProcessNextJobPublishesSuccess(t *testing.T) {
	queue := &memQueue{}
	bus := &memBus{}
	job := testJob("gap_scan")
	require.NoError(t, queue.Push(context.Background(), job))

	w := NewWorker(queue, bus, InitRegistry())
	w.ProcessNextJob(context.Background())

	require.Len(t, bus.published, 1)
	event := bus.published[0]
	assert.True(t, event.Success)
	assert.Equal(t, job.ID, event.JobID)
	assert.Equal(t, job.FlowID, event.FlowID)
	assert.Equal(t, job.Phase, event.Phase)
	assert.Equal(t, job.ClientAccountID, event.ClientAccountID)
	assert.Equal(t, job.EngagementID, event.EngagementID)
}

func TestProcessNextJobPublishesFailure(t *testing.T) {
	queue := &memQueue{}
	bus := &memBus{}
	require.NoError(t, queue.Push(context.Background(), testJob("gap_scan")))

	registry := JobRegistry{
		"gap_scan": func(ctx context.Context, job domain.BackgroundJob) error {
			return errors.New("scan target unreachable")
		},
	}
	w := NewWorker(queue, bus, registry)
	w.ProcessNextJob(context.Background())

	require.Len(t, bus.published, 1)
	assert.False(t, bus.published[0].Success)
	assert.Contains(t, bus.published[0].Error, "unreachable")
}

func TestProcessNextJobUnknownTypeStillSignals(t *testing.T) {
	queue := &memQueue{}
	bus := &memBus{}
	require.NoError(t, queue.Push(context.Background(), testJob("mine_bitcoin")))

	w := NewWorker(queue, bus, InitRegistry())
	w.ProcessNextJob(context.Background())

	// A paused flow must never wait forever on a job nobody can run.
	require.Len(t, bus.published, 1)
	assert.False(t, bus.published[0].Success)
}

func TestRegistryHandlerLookup(t *testing.T) {
	registry := InitRegistry()

	h, err := registry.Handler("enrichment")
	require.NoError(t, err)
	assert.NotNil(t, h)

	_, err = registry.Handler("unknown")
	assert.Error(t, err)
}
