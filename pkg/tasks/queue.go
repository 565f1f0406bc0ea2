package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// QueueManager manages cardholder task queuing
type QueueManager struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewQueueManager creates a new queue manager
func NewQueueManager(redisOpt *asynq.RedisClientOpt) *QueueManager {
	return &QueueManager{
		client:    asynq.NewClient(*redisOpt),
		inspector: asynq.NewInspector(*redisOpt),
	}
}

// EnqueueUpsert enqueues a cardholder upsert task
func (q *QueueManager) EnqueueUpsert(payload CardholderUpsert, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TypeCardholderUpsert, data)

	allOpts := append(defaultOptions(payload.UniqueID()), opts...)

	_, err = q.client.Enqueue(task, allOpts...)

	return err
}

// EnqueueRemove enqueues a cardholder removal task
func (q *QueueManager) EnqueueRemove(payload CardholderRemove, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TypeCardholderRemove, data)

	allOpts := append(defaultOptions(payload.UniqueID()), opts...)

	_, err = q.client.Enqueue(task, allOpts...)

	return err
}

// GetQueueStats returns queue statistics
func (q *QueueManager) GetQueueStats() (*asynq.QueueInfo, error) {
	return q.inspector.GetQueueInfo(QueueSync)
}

// Close closes the queue manager
func (q *QueueManager) Close() error {
	return q.client.Close()
}

func defaultOptions(taskID string) []asynq.Option {
	return []asynq.Option{
		asynq.TaskID(taskID),
		asynq.Queue(QueueSync),
		asynq.MaxRetry(3),
		asynq.Timeout(5 * time.Minute),
	}
}
