package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/classmap/refreshd/internal/store"
	"github.com/classmap/refreshd/internal/util"
	"github.com/go-co-op/gocron/v2"
)

type RefreshService struct {
	runStore    store.RunStore
	queue       *RunQueue
	scheduler   gocron.Scheduler
	scheduleUTC string
}

func NewRefreshService(
	runStore store.RunStore,
	queue *RunQueue,
	scheduler gocron.Scheduler,
	scheduleUTC string,
) *RefreshService {
	return &RefreshService{
		runStore:    runStore,
		queue:       queue,
		scheduler:   scheduler,
		scheduleUTC: scheduleUTC,
	}
}

// TriggerRun creates a run and hands it to the queue worker. A full
// queue rejects the trigger instead of overlapping runs.
func (s *RefreshService) TriggerRun(
	ctx context.Context,
	reason store.TriggerReason,
) (*store.Run, error) {
	r, err := s.runStore.CreateRun(ctx, reason)
	if err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(r); err != nil {
		// the row never reaches a terminal state, so the retention
		// sweep would keep it forever
		if delErr := s.runStore.DeleteRun(ctx, r.RunID); delErr != nil {
			log.Println("err deleting rejected run: ", delErr)
		}
		return nil, err
	}
	return r, nil
}

func (s *RefreshService) GetRunByID(ctx context.Context, runID int64) (*store.Run, error) {
	return s.runStore.ReadRunByID(ctx, runID)
}

func (s *RefreshService) ListLatestRuns(ctx context.Context, limit int64) ([]store.Run, error) {
	runs, err := s.runStore.ListLatestRuns(ctx, limit)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return runs, nil
}

func (s *RefreshService) ListRunsPaginated(
	ctx context.Context,
	limit, offset int64,
) ([]store.Run, error) {
	return s.runStore.ListRunsPaginated(ctx, limit, offset)
}

func (s *RefreshService) GetRunCount(ctx context.Context) (int64, error) {
	return s.runStore.CountRuns(ctx)
}

func (s *RefreshService) CancelRun(runID int64) {
	s.queue.CancelRun(runID)
}

func (s *RefreshService) GetRunQueue() *RunQueue {
	return s.queue
}

func (s *RefreshService) StartQueue() {
	go s.queue.Run()
}

func (s *RefreshService) Shutdown() {
	s.queue.Shutdown()
}

// ScheduleDailyRefresh registers the fixed daily UTC trigger.
func (s *RefreshService) ScheduleDailyRefresh() (*string, error) {
	if s.scheduler == nil {
		return nil, nil
	}
	hour, minute, err := parseClockTime(s.scheduleUTC)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule time '%s': %w", s.scheduleUTC, err)
	}
	job, err := s.scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(hour, minute, 0))),
		gocron.NewTask(func() {
			if _, err := s.TriggerRun(
				context.Background(),
				store.TriggerScheduled,
			); err != nil {
				if _, ok := err.(*ErrRunQueueFull); ok {
					log.Println("run queue is full, skipping scheduled run")
					return
				}
				log.Println("err triggering scheduled run: ", err)
			}
		}))
	if err != nil {
		return nil, fmt.Errorf("error scheduling daily refresh: %+w", err)
	}
	return util.AsPtr(job.ID().String()), nil
}

// ScheduleRetentionSweep deletes run rows older than retention, once
// per day shortly after midnight UTC.
func (s *RefreshService) ScheduleRetentionSweep(retention time.Duration) (*string, error) {
	if s.scheduler == nil {
		return nil, nil
	}
	job, err := s.scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 30, 0))),
		gocron.NewTask(func() {
			cutoff := time.Now().UTC().Add(-retention)
			deleted, err := s.runStore.DeleteRunsEndedBefore(context.Background(), cutoff)
			if err != nil {
				log.Println("err sweeping old runs: ", err)
				return
			}
			if deleted > 0 {
				log.Printf("swept %d runs ended before %s\n", deleted, cutoff)
			}
		}))
	if err != nil {
		return nil, fmt.Errorf("error scheduling retention sweep: %+w", err)
	}
	return util.AsPtr(job.ID().String()), nil
}

func parseClockTime(s string) (uint, uint, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, err
	}
	return uint(t.Hour()), uint(t.Minute()), nil
}
