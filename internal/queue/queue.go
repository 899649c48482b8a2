package queue

import (
	"encoding/json"
	"log"

	"github.com/hibiken/asynq"
)

// Enqueuer schedules index rebuild tasks. It satisfies
// repository.IndexRebuildEnqueuer so the object store can request a
// rebuild when an index write fails.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

func (e *Enqueuer) EnqueueIndexRebuild(reason string) error {
	taskPayload, err := json.Marshal(IndexRebuildPayload{Reason: reason})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeIndexRebuild, taskPayload)

	_, err = e.client.Enqueue(task)
	if err != nil {
		return err
	}

	log.Printf("Index rebuild scheduled: %s", reason)
	return nil
}
