package job

import (
	"context"
	"log/slog"

	"github.com/scrapbook/monthbook/internal/repository"
)

// IndexReconcileJob periodically regenerates the posts index from the
// object store, so entries orphaned by failed or interrupted index writes
// converge back to the truth.
type IndexReconcileJob struct {
	store *repository.S3Store
}

func NewIndexReconcileJob(store *repository.S3Store) *IndexReconcileJob {
	return &IndexReconcileJob{store: store}
}

func (j *IndexReconcileJob) Reconcile() {
	ctx := context.Background()

	if err := j.store.RebuildIndex(ctx); err != nil {
		slog.Info(err.Error())
	}
}
