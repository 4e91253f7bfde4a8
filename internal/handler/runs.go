package handler

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"time"

	"github.com/classmap/refreshd/internal"
	"github.com/classmap/refreshd/internal/service"
	"github.com/classmap/refreshd/internal/store"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type RefreshServicer interface {
	TriggerRun(ctx context.Context, reason store.TriggerReason) (*store.Run, error)
	GetRunByID(ctx context.Context, runID int64) (*store.Run, error)
	ListLatestRuns(ctx context.Context, limit int64) ([]store.Run, error)
	ListRunsPaginated(ctx context.Context, limit, offset int64) ([]store.Run, error)
	GetRunCount(ctx context.Context) (int64, error)
	CancelRun(runID int64)
	GetRunQueue() *service.RunQueue
}

type RunHandler struct {
	refreshService RefreshServicer
}

func NewRunHandler(refreshService RefreshServicer) *RunHandler {
	return &RunHandler{refreshService: refreshService}
}

func SetupRunRoutes(e *echo.Echo, h *RunHandler, triggerKey string) {
	e.GET("/healthz", h.GetHealthz)
	runs := e.Group("/runs")
	runs.GET("", h.GetRuns)
	runs.GET("/latest", h.GetLatestRuns)
	runs.GET("/:run_id", h.GetRun)
	runs.GET("/:run_id/output", h.GetRunOutput)
	runs.GET("/:run_id/sse", h.GetRunSSE)
	runs.POST("", h.PostRun, TriggerKeyMiddleware(triggerKey))
	runs.POST("/:run_id/cancel", h.PostCancelRun, TriggerKeyMiddleware(triggerKey))
}

// TriggerKeyMiddleware guards the trigger endpoints with a static key
// header. An empty configured key disables the check for local
// deployments.
func TriggerKeyMiddleware(key string) func(next echo.HandlerFunc) echo.HandlerFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if key == "" {
				return next(c)
			}
			provided := c.Request().Header.Get(internal.TriggerKeyHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				return newError(nil, http.StatusUnauthorized, "invalid trigger key")
			}
			return next(c)
		}
	}
}

func (h *RunHandler) GetHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *RunHandler) PostRun(c echo.Context) error {
	r, err := h.refreshService.TriggerRun(c.Request().Context(), store.TriggerManual)
	if err != nil {
		if _, ok := err.(*service.ErrRunQueueFull); ok {
			return newError(err, http.StatusConflict, "a refresh run is already in progress")
		}
		return newError(err, http.StatusInternalServerError, "unable to trigger run")
	}
	return c.JSON(http.StatusAccepted, r)
}

func (h *RunHandler) GetRuns(c echo.Context) error {
	lp := new(ListRunsParams)
	if err := c.Bind(lp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid page")
	}
	if lp.Page < 1 {
		lp.Page = 1
	}
	limit := int64(20)
	offset := (lp.Page - 1) * limit

	runs, err := h.refreshService.ListRunsPaginated(c.Request().Context(), limit, offset)
	if err != nil {
		return newError(err, http.StatusInternalServerError, "unable to list runs")
	}
	count, err := h.refreshService.GetRunCount(c.Request().Context())
	if err != nil {
		return newError(err, http.StatusInternalServerError, "unable to count runs")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"runs":  runs,
		"count": count,
		"page":  lp.Page,
	})
}

func (h *RunHandler) GetLatestRuns(c echo.Context) error {
	runs, err := h.refreshService.ListLatestRuns(c.Request().Context(), 10)
	if err != nil {
		return newError(err, http.StatusInternalServerError, "unable to list runs")
	}
	return c.JSON(http.StatusOK, runs)
}

func (h *RunHandler) GetRun(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid run ID")
	}
	r, err := h.refreshService.GetRunByID(c.Request().Context(), rp.RunID)
	if err != nil {
		return newError(err, http.StatusNotFound, "run not found")
	}
	return c.JSON(http.StatusOK, r)
}

func (h *RunHandler) GetRunOutput(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid run ID")
	}
	r, err := h.refreshService.GetRunByID(c.Request().Context(), rp.RunID)
	if err != nil {
		return newError(err, http.StatusNotFound, "run not found")
	}
	var output string
	if r.Output != nil {
		output = *r.Output
	}
	return c.String(http.StatusOK, output)
}

func (h *RunHandler) GetRunSSE(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid run ID")
	}

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	rq := h.refreshService.GetRunQueue()
	id := uuid.NewString()
	rq.OutputSSEClients.AddClient(id)

	defer func() {
		rq.OutputSSEClients.RemoveClient(id)
	}()

	for {
		select {
		case <-c.Request().Context().Done():
			// client disconnected
			return nil
		case out := <-rq.OutputSSEClients.GetClient(id):
			// worker's output channel has data
			event := &Event{Data: []byte(out)}
			if err := event.MarshalTo(w); err != nil {
				log.Println("err marshaling event data:", err)
			}
			w.Flush()
		default:
			// no new data, just wait
			time.Sleep(1 * time.Second)
		}
	}
}

func (h *RunHandler) PostCancelRun(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid run ID")
	}
	h.refreshService.CancelRun(rp.RunID)
	return c.JSON(http.StatusAccepted, map[string]string{"status": "cancelling"})
}
