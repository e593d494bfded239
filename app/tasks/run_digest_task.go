package tasks

import (
	"context"
	"fmt"
	"log/slog"
)

// RunDigestTask performs one full digest run. It is never retried: a failed
// send leaves the articles unsent for the next run.
type RunDigestTask struct {
	Task
	runner DigestRunner
}

func NewRunDigestTask(trigger string, runner DigestRunner) *RunDigestTask {
	return &RunDigestTask{
		Task:   NewTask(TaskTypeRunDigest, trigger, 0),
		runner: runner,
	}
}

func (t *RunDigestTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	res := t.runner.Run(ctx)
	if !res.OK() {
		return fmt.Errorf("digest run %s ended in %s with code %d: %w", res.RunID, res.State, res.Code, res.Err)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"trigger", t.Name,
		"run_id", res.RunID,
		"skipped", res.Skipped,
		"new", res.NewItems,
		"duration", t.GetDuration())

	return nil
}
