package redis

import (
	"context"
	"encoding/json"
	"time"

	"flowengine/internal/domain"

	"github.com/redis/go-redis/v9"
)

type BackgroundQueue struct {
	client    *redis.Client
	queueName string
}

func NewBackgroundQueue(client *redis.Client) *BackgroundQueue {
	return &BackgroundQueue{
		client:    client,
		queueName: "flow:jobs:pending",
	}
}

// Push serializes the job and adds it to the end of the list
func (q *BackgroundQueue) Push(ctx context.Context, job domain.BackgroundJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, q.queueName, payload).Err()
}

// Pop waits for a job and removes it from the front of the list
func (q *BackgroundQueue) Pop(ctx context.Context) (domain.BackgroundJob, error) {
	var job domain.BackgroundJob
	// 0 means "Wait forever until an item appears"
	result, err := q.client.BLPop(ctx, 0*time.Second, q.queueName).Result()
	if err != nil {
		return job, err
	}
	// BLPop returns a slice: [QueueName, Element]
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return job, err
	}
	return job, nil
}
