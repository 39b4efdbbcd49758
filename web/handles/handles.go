package handles

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"pctasks/app/executor"
	"pctasks/app/objects"
	"pctasks/pkg/contextx"
	"pctasks/pkg/log"
	"pctasks/pkg/metrics"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

const requestIDHeader = "X-Request-Id"

type Res struct {
	Code int    `json:"code"`
	Msg  string `json:"message"`
}

// TaskHandles serves the dev task endpoint: tasks posted here run in-process
// and report through the shared blob store.
type TaskHandles struct {
	executor *executor.LocalExecutor
}

func NewTaskHandles(e *executor.LocalExecutor) *TaskHandles {
	return &TaskHandles{executor: e}
}

// NewRouter routes the task endpoints plus /metrics and /healthz.
func NewRouter(h *TaskHandles) *httprouter.Router {
	router := httprouter.New()
	router.POST("/tasks", h.Submit)
	router.GET("/tasks/:id", h.Status)
	router.DELETE("/tasks/:id", h.Cancel)
	router.Handler(http.MethodGet, "/metrics", metrics.Handler())
	router.GET("/healthz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, http.StatusOK, &Res{Code: http.StatusOK, Msg: "ok"})
	})
	return router
}

func requestContext(w http.ResponseWriter, r *http.Request) context.Context {
	requestID := r.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = "dev-req-" + uuid.NewString()
	}
	w.Header().Set(requestIDHeader, requestID)
	return contextx.WithFields(r.Context(), contextx.RequestID, requestID)
}

func (h *TaskHandles) Submit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := requestContext(w, r)
	req := &executor.DevTaskRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		log.Errorf(ctx, "Body decode error %s", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	msg, err := objects.DecodeTaskRunMessage(req.Message)
	if err != nil {
		log.Errorf(ctx, "Task message decode error %s", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx = contextx.WithTask(contextx.WithPartition(contextx.WithRun(ctx, msg.WorkflowID, msg.RunID), msg.JobID, msg.PartitionID), msg.TaskID)

	sub, err := h.executor.Submit(ctx, &executor.PreparedTask{Message: msg, Environment: req.Environment})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Infof(ctx, "accepted task %s", sub.ExecutorID)
	writeJSON(w, http.StatusAccepted, &executor.DevTaskStatus{ID: encodeID(sub.ExecutorID), State: executor.PollRunning})
}

func (h *TaskHandles) Status(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := requestContext(w, r)
	id, ok := decodeID(ps.ByName("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no such task")
		return
	}
	res, err := h.executor.Poll(ctx, id, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res.State == executor.PollMissing {
		writeError(w, http.StatusNotFound, "no such task")
		return
	}
	writeJSON(w, http.StatusOK, &executor.DevTaskStatus{ID: ps.ByName("id"), State: res.State, Reason: res.Reason})
}

func (h *TaskHandles) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := requestContext(w, r)
	id, ok := decodeID(ps.ByName("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no such task")
		return
	}
	if err := h.executor.Cancel(ctx, id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Infof(ctx, "cancelled task %s", id)
	w.WriteHeader(http.StatusNoContent)
}

// Executor ids contain slashes, which the router cannot carry in a path
// segment.
func encodeID(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

func decodeID(encoded string) (string, bool) {
	id, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || len(id) == 0 {
		return "", false
	}
	return string(id), true
}
