// Package parallel provides the bounded fan-out primitive used for both
// competitor-level and strategy-level concurrency.
package parallel

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// Task is one unit of work in a fan-out.
type Task[T any] func(ctx context.Context) (T, error)

// Result holds the outcome of the task at the same index.
type Result[T any] struct {
	Value T
	Err   error
}

// RunBounded runs tasks with at most maxWorkers in flight and returns one
// Result per task, in task order. A failing or panicking task never cancels
// its siblings; its error is captured in its Result. maxWorkers <= 0 means
// one worker per task.
func RunBounded[T any](ctx context.Context, tasks []Task[T], maxWorkers int) []Result[T] {
	results := make([]Result[T], len(tasks))
	if len(tasks) == 0 {
		return results
	}
	if maxWorkers <= 0 || maxWorkers > len(tasks) {
		maxWorkers = len(tasks)
	}

	// errgroup without WithContext: a failed task must not cancel the others.
	var g errgroup.Group
	g.SetLimit(maxWorkers)

	for i, task := range tasks {
		g.Go(func() error {
			results[i] = runTask(ctx, task)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func runTask[T any](ctx context.Context, task Task[T]) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[T]{Err: eris.New(fmt.Sprintf("parallel: task panicked: %v", r))}
		}
	}()

	if err := ctx.Err(); err != nil {
		return Result[T]{Err: eris.Wrap(err, "parallel: task not started")}
	}
	v, err := task(ctx)
	return Result[T]{Value: v, Err: err}
}
