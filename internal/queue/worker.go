package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

func (j *Queue) HandleIndexRebuildTask(ctx context.Context, task *asynq.Task) error {
	var payload IndexRebuildPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	slog.Info("rebuilding posts index", "reason", payload.Reason)
	return j.store.RebuildIndex(ctx)
}
