package store

import (
	"context"
	"time"
)

type RunStatus string

const (
	StatusQueued     RunStatus = "queued"
	StatusRunning    RunStatus = "running"
	StatusPublishing RunStatus = "publishing"
	StatusCancelled  RunStatus = "cancelled"
	StatusFailed     RunStatus = "failed"
	StatusPassed     RunStatus = "passed"
)

type TriggerReason string

const (
	TriggerScheduled TriggerReason = "scheduled"
	TriggerManual    TriggerReason = "manual"
)

type RunOutcome string

const (
	OutcomeCommitted RunOutcome = "committed"
	OutcomeNoChange  RunOutcome = "no_change"
)

type Run struct {
	RunID         int64         `param:"run_id" json:"run_id"`
	TriggerReason TriggerReason `json:"trigger_reason"`
	Status        RunStatus     `json:"status"`
	Outcome       *RunOutcome   `json:"outcome"`
	CommitSha     *string       `json:"commit_sha"`
	Output        *string       `json:"output,omitempty"`
	CreatedOn     time.Time     `json:"created_on"`
	StartedOn     *time.Time    `json:"started_on"`
	EndedOn       *time.Time    `json:"ended_on"`
}

type RunStore interface {
	CreateRun(context.Context, TriggerReason) (*Run, error)
	ReadRunByID(context.Context, int64) (*Run, error)
	UpdateRunStartedOn(context.Context, int64, RunStatus, *time.Time) error
	UpdateRunStatus(context.Context, int64, RunStatus) error
	UpdateRunEndedOn(context.Context, int64, RunStatus, *RunOutcome, *string, *time.Time) error
	AppendRunOutput(context.Context, int64, string) error
	DeleteRun(context.Context, int64) error
	DeleteRunsEndedBefore(context.Context, time.Time) (int64, error)
	ListRuns(context.Context) ([]Run, error)
	ListLatestRuns(context.Context, int64) ([]Run, error)
	ListRunsPaginated(context.Context, int64, int64) ([]Run, error)
	CountRuns(context.Context) (int64, error)
}
