// Package scheduler runs named periodic tasks until their context is cancelled.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

var ErrNoTasks = errors.New("scheduler has no tasks")

type TaskFunc func(ctx context.Context) error

type Task struct {
	Name  string
	Every time.Duration
	Run   TaskFunc
}

// Group owns a fixed set of tasks. Each task gets its own ticker; a failing
// run is logged and the task keeps its schedule.
type Group struct {
	log   *slog.Logger
	tasks []Task
}

func New(logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	return &Group{log: logger}
}

func (g *Group) Add(name string, every time.Duration, run TaskFunc) error {
	if every <= 0 {
		return fmt.Errorf("task %s: interval must be > 0", name)
	}
	if run == nil {
		return fmt.Errorf("task %s: nil func", name)
	}
	g.tasks = append(g.tasks, Task{Name: name, Every: every, Run: run})
	return nil
}

func (g *Group) Tasks() []Task {
	return append([]Task(nil), g.tasks...)
}

// Run blocks until ctx is done. It returns nil on a normal shutdown.
func (g *Group) Run(ctx context.Context) error {
	if len(g.tasks) == 0 {
		return ErrNoTasks
	}
	eg, ctx := errgroup.WithContext(ctx)
	for _, task := range g.tasks {
		eg.Go(func() error {
			g.loop(ctx, task)
			return nil
		})
	}
	return eg.Wait()
}

// RunOnce runs every task a single time in registration order.
func (g *Group) RunOnce(ctx context.Context) error {
	var errs []error
	for _, task := range g.tasks {
		if err := task.Run(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", task.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (g *Group) loop(ctx context.Context, task Task) {
	ticker := time.NewTicker(task.Every)
	defer ticker.Stop()

	g.log.Debug("task started", "task", task.Name, "every", task.Every.String())
	for {
		select {
		case <-ctx.Done():
			g.log.Debug("task stopped", "task", task.Name)
			return
		case <-ticker.C:
			if err := task.Run(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				g.log.Error("task failed", "task", task.Name, "err", err)
			}
		}
	}
}
