package queue

import (
	"context"
)

// Task is one dispatchable unit of work, usually a pipeline run.
type Task interface {
	Execute(ctx context.Context)
}

type TaskQueue chan Task

func NewTaskQueue(size int) TaskQueue {
	return make(TaskQueue, size)
}
