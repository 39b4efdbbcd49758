package executor

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"pctasks/app/objects"

	"github.com/go-resty/resty/v2"
)

func newRestClient() *resty.Client {
	return resty.New().
		SetTimeout(30*time.Second).
		SetHeader("Content-Type", "application/json")
}

// classify maps a REST call outcome onto the executor error taxonomy:
// transport errors and 5xx are transient, other non-2xx are permanent.
// Statuses listed in ok are accepted.
func classify(op string, resp *resty.Response, err error, ok ...int) error {
	if err != nil {
		return objects.Transient(op, err)
	}
	code := resp.StatusCode()
	if code >= 200 && code < 300 {
		return nil
	}
	for _, c := range ok {
		if code == c {
			return nil
		}
	}
	body := strings.TrimSpace(string(resp.Body()))
	if code >= 500 || code == http.StatusTooManyRequests {
		return objects.Transient(op, fmt.Errorf("status %d: %s", code, body))
	}
	return objects.Permanent(op, fmt.Sprintf("status %d", code), fmt.Errorf("%s", body))
}

func joinURL(base string, parts ...string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}
