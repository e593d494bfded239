package tasks

import (
	"context"

	"github.com/lysyi3m/rss-digest/app/runner"
)

// TaskSchedulerInterface is what the server and the admin handlers use to
// queue background work.
//
//	scheduler := NewScheduler(digestRunner, configCache, feedRepo, interval)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewRunDigestTask("manual", digestRunner))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	RunDigest(trigger string) error
	SyncFeeds() error
}

type DigestRunner interface {
	Run(ctx context.Context) runner.Result
}
