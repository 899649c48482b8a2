package queue

import (
	"github.com/scrapbook/monthbook/internal/repository"
)

type Queue struct {
	store *repository.S3Store
}

func NewQueue(store *repository.S3Store) *Queue {
	return &Queue{store: store}
}

const TaskTypeIndexRebuild = "index:rebuild"

type IndexRebuildPayload struct {
	Reason string `json:"reason"`
}
