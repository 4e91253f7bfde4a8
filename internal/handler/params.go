package handler

type RunParams struct {
	RunID int64 `param:"run_id"`
}

type ListRunsParams struct {
	Page int64 `query:"page"`
}
