package executor

import (
	"context"
	"net/http"
	"net/url"

	"pctasks/app/blob"
	"pctasks/app/objects"

	"github.com/go-resty/resty/v2"
)

// DevTaskRequest is the body of POST /tasks on the dev task endpoint.
type DevTaskRequest struct {
	Message     string            `json:"message"`
	Environment map[string]string `json:"environment,omitempty"`
}

// DevTaskStatus is returned by the dev task endpoint.
type DevTaskStatus struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// DevEndpointExecutor is the local runner talking to a dev task endpoint
// over HTTP. Outputs are read from the shared blob store.
type DevEndpointExecutor struct {
	endpoint string
	client   *resty.Client
	blobs    blob.Store
}

func NewDevEndpointExecutor(endpoint string, blobs blob.Store) *DevEndpointExecutor {
	return &DevEndpointExecutor{endpoint: endpoint, client: newRestClient(), blobs: blobs}
}

func (e *DevEndpointExecutor) Kind() string {
	return "local"
}

func (e *DevEndpointExecutor) Submit(ctx context.Context, task *PreparedTask) (*SubmitResult, error) {
	encoded, err := task.Message.Encode()
	if err != nil {
		return nil, objects.Permanent("submit", "encode task", err)
	}
	status := &DevTaskStatus{}
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(&DevTaskRequest{Message: encoded, Environment: task.Environment}).
		SetResult(status).
		Post(joinURL(e.endpoint, "tasks"))
	if err := classify("submit", resp, err); err != nil {
		return nil, err
	}
	return &SubmitResult{ExecutorID: status.ID}, nil
}

func (e *DevEndpointExecutor) Poll(ctx context.Context, executorID string, pollCount int) (*PollResult, error) {
	status := &DevTaskStatus{}
	resp, err := e.client.R().
		SetContext(ctx).
		SetResult(status).
		Get(joinURL(e.endpoint, "tasks", url.PathEscape(executorID)))
	if err == nil && resp.StatusCode() == http.StatusNotFound {
		return &PollResult{State: PollMissing}, nil
	}
	if err := classify("poll", resp, err); err != nil {
		return nil, err
	}
	return &PollResult{State: status.State, Reason: status.Reason}, nil
}

func (e *DevEndpointExecutor) FetchResult(ctx context.Context, task *PreparedTask, executorID string) (*objects.TaskResult, error) {
	return fetchOutput(ctx, e.blobs, task)
}

func (e *DevEndpointExecutor) Cancel(ctx context.Context, executorID string) error {
	resp, err := e.client.R().
		SetContext(ctx).
		Delete(joinURL(e.endpoint, "tasks", url.PathEscape(executorID)))
	return classify("cancel", resp, err, http.StatusNotFound)
}
