package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/rss-digest/app/feed"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	taskTimeout   = 15 * time.Minute
	maxRetryDelay = 30 * time.Second
	queueSize     = 16
)

// Scheduler runs queued tasks on a single worker so that digest runs and
// feed syncs never overlap inside one process. When interval is positive a
// digest run is queued on every tick.
type Scheduler struct {
	runner      DigestRunner
	configCache *feed.ConfigCache
	feedRepo    FeedUpserter
	interval    time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
}

func NewScheduler(runner DigestRunner, configCache *feed.ConfigCache, feedRepo FeedUpserter, interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		runner:      runner,
		configCache: configCache,
		feedRepo:    feedRepo,
		interval:    interval,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, queueSize),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.worker()

	if err := s.SyncFeeds(); err != nil {
		slog.Warn("Failed to enqueue startup feed sync", "error", err)
	}

	if s.interval <= 0 {
		slog.Info("Scheduled digest runs disabled")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				if err := s.RunDigest("schedule"); err != nil {
					slog.Warn("Failed to enqueue scheduled digest run", "error", err)
				}
			}
		}
	}()

	slog.Info("Scheduled digest runs enabled", "interval", s.interval.String())
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) RunDigest(trigger string) error {
	return s.EnqueueTask(NewRunDigestTask(trigger, s.runner))
}

// SyncFeeds queues a seed file sync. It is a no-op without a feeds file.
func (s *Scheduler) SyncFeeds() error {
	if s.configCache == nil || s.configCache.Path() == "" {
		return nil
	}
	return s.EnqueueTask(NewSyncFeedsTask(s.configCache, s.feedRepo))
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(task)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Task execution failed", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		if task.GetMaxRetries() > 0 {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "max_retries", task.GetMaxRetries())
		}
		return
	}

	task.IncrementRetryCount()
	retryDelay := min(time.Duration(1<<uint(task.GetRetryCount()-1))*time.Second, maxRetryDelay)

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "name", task.GetName(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-time.After(retryDelay):
			if err := s.EnqueueTask(task); err != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "error", err)
			}
		}
	}()
}
