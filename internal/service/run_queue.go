package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/classmap/refreshd/internal/store"
	"github.com/classmap/refreshd/internal/util"
)

func NewRunQueue(
	runStore store.RunStore,
	publisher Publisher,
	repoDir, scriptPath string,
	maxRuns int64,
) *RunQueue {
	return &RunQueue{
		runStore:         runStore,
		publisher:        publisher,
		repoDir:          repoDir,
		scriptPath:       scriptPath,
		OutputSSEClients: NewSSEClientMap[string](),
		StatusSSEClients: NewSSEClientMap[store.Run](),
		queue:            make(chan *store.Run, maxRuns),
		done:             make(chan struct{}),
		cancelRunMap:     NewCancelMap[int64](),
	}
}

type RunQueue struct {
	runStore         store.RunStore
	publisher        Publisher
	repoDir          string
	scriptPath       string
	OutputSSEClients *SSEClientMap[string]
	StatusSSEClients *SSEClientMap[store.Run]

	queue        chan *store.Run
	done         chan struct{}
	cancelRunMap *CancelMap[int64]

	outputCh chan string
	statusCh chan store.Run
	mu       sync.Mutex
}

func (rq *RunQueue) CancelRun(runID int64) {
	rq.cancelRunMap.Call(runID)
}

func (rq *RunQueue) Enqueue(r *store.Run) error {
	select {
	case rq.queue <- r:
		return nil
	default:
		return NewErrRunQueueFull()
	}
}

func (rq *RunQueue) Run() {
	for {
		select {
		case run := <-rq.queue:
			ctx, cancel := context.WithCancel(context.Background())
			rq.cancelRunMap.AddCancel(run.RunID, cancel)

			if err := rq.ProcessOnce(ctx, run); err != nil {
				log.Println("err processing refresh run:", err)
			}

			rq.cancelRunMap.RemoveCancel(run.RunID)
			cancel()
		case <-rq.done:
			close(rq.queue)
			return
		}
	}
}

func (rq *RunQueue) Shutdown() {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	select {
	case <-rq.done:
	default:
		close(rq.done)
	}
}

// ProcessOnce runs one refresh run to completion, recording its
// terminal status. Used by the queue worker and by the one-shot CLI.
func (rq *RunQueue) ProcessOnce(ctx context.Context, run *store.Run) error {
	rq.outputCh = make(chan string)
	rq.statusCh = make(chan store.Run)

	go rq.handleOutput(context.Background(), run.RunID)
	go rq.handleStatus()

	err := rq.processRun(ctx, run)
	if err != nil {
		endedOn := time.Now().UTC()
		run.EndedOn = &endedOn
		if _, ok := err.(RunCancelError); ok {
			run.Status = store.StatusCancelled
		} else {
			run.Status = store.StatusFailed
		}
		if sqlErr := rq.runStore.UpdateRunEndedOn(
			context.Background(),
			run.RunID,
			run.Status,
			nil,
			nil,
			run.EndedOn,
		); sqlErr != nil {
			log.Println("err updating run status to failed:", sqlErr)
		}
		if r, readErr := rq.runStore.ReadRunByID(context.Background(), run.RunID); readErr != nil {
			log.Println("err getting run by id")
		} else {
			rq.statusCh <- *r
		}

		failMessage := `
=============================================
FAIL || Refresh run failed.
=============================================
`
		rq.outputCh <- failMessage
	}

	close(rq.outputCh)
	close(rq.statusCh)
	return err
}

func (rq *RunQueue) handleOutput(ctx context.Context, runID int64) {
	for out := range rq.outputCh {
		if err := rq.runStore.AppendRunOutput(ctx, runID, out); err != nil {
			log.Printf("err appending run output: %+v\n", err)
		}
		rq.OutputSSEClients.SendToClients(out)
	}
}

func (rq *RunQueue) handleStatus() {
	for r := range rq.statusCh {
		rq.StatusSSEClients.SendToClients(r)
	}
}

func (rq *RunQueue) processRun(
	ctx context.Context,
	run *store.Run,
) error {
	script, err := ReadRefreshScript(rq.scriptPath)
	if err != nil {
		rq.outputCh <- fmt.Sprintf("err reading refresh script: %+v\n", err)
		return err
	}

	// update run status to running
	run.Status = store.StatusRunning
	run.StartedOn = util.AsPtr(time.Now().UTC())

	if err := rq.runStore.UpdateRunStartedOn(
		context.Background(),
		run.RunID,
		run.Status,
		run.StartedOn,
	); err != nil {
		rq.outputCh <- "err updating run started on"
		return err
	}

	r, err := rq.runStore.ReadRunByID(context.Background(), run.RunID)
	if err != nil {
		rq.outputCh <- "err getting run by ID"
		return err
	}
	run = r
	rq.statusCh <- *r

	// generator steps run strictly in sequence; a failing step aborts
	// the run and the publisher is never reached
	for _, step := range script.Steps {
		rq.outputCh <- fmt.Sprintf("Executing step '%s'\n", step.Step)
		if err := runStep(ctx, rq.repoDir, step, rq.outputCh); err != nil {
			return err
		}
	}

	run.Status = store.StatusPublishing
	if err := rq.runStore.UpdateRunStatus(
		context.Background(), run.RunID, run.Status,
	); err != nil {
		rq.outputCh <- "err updating run status to publishing"
		return err
	}
	r, err = rq.runStore.ReadRunByID(context.Background(), run.RunID)
	if err != nil {
		rq.outputCh <- "err getting run by id"
		return err
	}
	run = r
	rq.statusCh <- *r

	outcome, commitSha, err := rq.publisher.Publish(ctx, rq.outputCh)
	if err != nil {
		rq.outputCh <- fmt.Sprintf("err publishing artifacts: %+v\n", err)
		return err
	}

	passMessage := `
=============================================
PASS || Executed refresh run successfully.
=============================================
`
	rq.outputCh <- passMessage

	// update run status and outcome
	run.Status = store.StatusPassed
	run.EndedOn = util.AsPtr(time.Now().UTC())
	if err := rq.runStore.UpdateRunEndedOn(
		context.Background(),
		run.RunID,
		run.Status,
		&outcome,
		commitSha,
		run.EndedOn,
	); err != nil {
		rq.outputCh <- "err updating run ended on"
		return err
	}

	r, err = rq.runStore.ReadRunByID(context.Background(), run.RunID)
	if err != nil {
		rq.outputCh <- "err getting run by id"
		return err
	}

	run = r
	rq.statusCh <- *r

	return nil
}
