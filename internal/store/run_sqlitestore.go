package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/classmap/refreshd/internal"
	"github.com/georgysavva/scany/v2/sqlscan"
)

type RunSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewRunSQLiteStore(rdb, rwdb *sql.DB) *RunSQLiteStore {
	return &RunSQLiteStore{rdb, rwdb}
}

func (store *RunSQLiteStore) CreateRun(
	ctx context.Context,
	reason TriggerReason,
) (*Run, error) {
	r := &Run{
		TriggerReason: reason,
		Status:        StatusQueued,
	}
	query := `insert into runs (
		trigger_reason,
		status
	)
	values ($1, $2)
	returning run_id, created_on`
	if err := sqlscan.Get(ctx, store.rwdb, r, query, r.TriggerReason, r.Status); err != nil {
		return nil, err
	}
	return r, nil
}

func (store *RunSQLiteStore) ReadRunByID(ctx context.Context, id int64) (*Run, error) {
	r := &Run{RunID: id}
	query := "select * from runs where run_id = $1"
	if err := sqlscan.Get(ctx, store.rdb, r, query, r.RunID); err != nil {
		return nil, err
	}
	return r, nil
}

func (store *RunSQLiteStore) UpdateRunStartedOn(
	ctx context.Context,
	id int64,
	status RunStatus,
	startedOn *time.Time,
) error {
	query := `update runs
	set status = $1,
		started_on = $2
	where run_id = $3`
	_, err := store.rwdb.ExecContext(
		ctx, query,
		status,
		startedOn.Format(internal.DBTimestampLayout),
		id,
	)
	return err
}

func (store *RunSQLiteStore) UpdateRunStatus(
	ctx context.Context,
	id int64,
	status RunStatus,
) error {
	query := `update runs
	set status = $1
	where run_id = $2`
	_, err := store.rwdb.ExecContext(ctx, query, status, id)
	return err
}

func (store *RunSQLiteStore) UpdateRunEndedOn(
	ctx context.Context,
	id int64,
	status RunStatus,
	outcome *RunOutcome,
	commitSha *string,
	endedOn *time.Time,
) error {
	query := `update runs
	set status = $1,
		outcome = $2,
		commit_sha = $3,
		ended_on = $4
	where run_id = $5`
	_, err := store.rwdb.ExecContext(
		ctx, query,
		status,
		outcome,
		commitSha,
		endedOn.Format(internal.DBTimestampLayout),
		id,
	)
	return err
}

func (store *RunSQLiteStore) AppendRunOutput(ctx context.Context, id int64, out string) error {
	tx, err := store.rwdb.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	r := &Run{RunID: id}
	readQuery := `select * from runs where run_id = $1`
	err = sqlscan.Get(ctx, tx, r, readQuery, r.RunID)
	if err != nil {
		return err
	}

	var existingOutput string
	if r.Output != nil {
		existingOutput = *r.Output
	}
	updateQuery := `update runs
	set output = $1
	where run_id = $2`
	_, err = tx.ExecContext(ctx, updateQuery, existingOutput+out, r.RunID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (store *RunSQLiteStore) DeleteRun(ctx context.Context, id int64) error {
	query := "delete from runs where run_id = $1"
	_, err := store.rwdb.ExecContext(ctx, query, id)
	return err
}

func (store *RunSQLiteStore) DeleteRunsEndedBefore(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	query := `delete from runs
	where ended_on is not null and ended_on < $1`
	res, err := store.rwdb.ExecContext(
		ctx, query, cutoff.Format(internal.DBTimestampLayout),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (store *RunSQLiteStore) ListRuns(ctx context.Context) ([]Run, error) {
	query := `select * from runs`
	runs := make([]Run, 0)
	err := sqlscan.Select(ctx, store.rdb, &runs, query)
	return runs, err
}

func (store *RunSQLiteStore) ListRunsPaginated(
	ctx context.Context,
	limit, offset int64,
) ([]Run, error) {
	query := `select * from runs
	order by created_on desc limit $1 offset $2`
	runs := make([]Run, 0)
	err := sqlscan.Select(ctx, store.rdb, &runs, query, limit, offset)
	return runs, err
}

func (store *RunSQLiteStore) ListLatestRuns(
	ctx context.Context,
	limit int64,
) ([]Run, error) {
	query := `select * from runs
	order by created_on desc limit $1`
	runs := make([]Run, 0)
	err := sqlscan.Select(ctx, store.rdb, &runs, query, limit)
	return runs, err
}

func (store *RunSQLiteStore) CountRuns(ctx context.Context) (int64, error) {
	var count int64
	query := `select count(*) from runs`
	err := sqlscan.Get(ctx, store.rdb, &count, query)
	return count, err
}
