package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/reusedev/gen-hub/internal/modules/logs"
)

// ErrRunnerClosed reports an enqueue attempt after shutdown began.
var ErrRunnerClosed = errors.New("run queue closed")

// Runner drains a TaskQueue, executing each task on its own goroutine.
// Shutdown waits for in-flight runs through the shared WaitGroup.
type Runner struct {
	queue     TaskQueue
	done      chan struct{}
	closeOnce sync.Once
}

func NewRunner(size int) *Runner {
	return &Runner{
		queue: NewTaskQueue(size),
		done:  make(chan struct{}),
	}
}

// Enqueue hands a task to the worker loop. Blocks when the queue is full,
// which is the admission backpressure point. Once shutdown begins the task
// is refused; the queue channel itself is never closed, so a straggling
// caller gets an error instead of a send panic.
func (r *Runner) Enqueue(task Task) error {
	select {
	case <-r.done:
		return ErrRunnerClosed
	default:
	}
	select {
	case r.queue <- task:
		return nil
	case <-r.done:
		return ErrRunnerClosed
	}
}

func (r *Runner) Start(ctx context.Context, wg *sync.WaitGroup) {
	go r.loop(ctx, wg)
}

func (r *Runner) loop(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	defer wg.Done()
	for {
		select {
		case task := <-r.queue:
			wg.Add(1)
			go func() {
				task.Execute(ctx)
				wg.Done()
			}()
		case <-ctx.Done():
			r.closeOnce.Do(func() {
				close(r.done)
				logs.Logger.Info().Msg("run queue closed")
			})
			// run what was admitted before shutdown, then stop
			for {
				select {
				case task := <-r.queue:
					wg.Add(1)
					go func() {
						task.Execute(ctx)
						wg.Done()
					}()
				default:
					return
				}
			}
		}
	}
}
