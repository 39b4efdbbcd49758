package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pctasks/app/config"
	"pctasks/app/objects"
	"pctasks/app/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueNotifier(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	set := queue.NewMemorySet()
	n := New(config.NotifyConfig{}, set)

	err := n.Notify(ctx, &objects.NotificationMessage{WorkflowID: "wf", RunID: "r1", Status: "succeeded", Time: time.Now()})
	require.NoError(t, err)

	q, err := set.Get(queue.NotificationQueue)
	require.NoError(t, err)
	msgs, err := q.Receive(ctx, 10, time.Minute)
	if asserter.NoError(err) && asserter.Len(msgs, 1) {
		env, err := queue.Decode(msgs[0].Body)
		if asserter.NoError(err) {
			asserter.Equal(objects.MessageTypeNotification, env.Type)
			got := &objects.NotificationMessage{}
			asserter.NoError(env.Payload(got))
			asserter.Equal("r1", got.RunID)
		}
	}
}

func TestWebhookNotifier(t *testing.T) {
	asserter := assert.New(t)
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		asserter.Equal("/message/topic/send", r.URL.Path)
		_ = r.ParseForm()
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(config.NotifyConfig{WebhookURL: srv.URL, Topic: "runs", AppKey: "k", SecretKey: "s"})
	err := n.Notify(context.Background(), &objects.NotificationMessage{RunID: "r1", Status: "failed", Time: time.Now()})
	if asserter.NoError(err) {
		asserter.Equal("runs", form["topic_name"])
		asserter.Equal("pctasks.run.failed", form["msg_action"])
		sign := form["sign"]
		asserter.Equal(Sign(form, "s"), sign)
	}
}

func TestSign(t *testing.T) {
	a := Sign(map[string]string{"b": "2", "a": "1"}, "x")
	b := Sign(map[string]string{"a": "1", "b": "2", "sign": "ignored"}, "x")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}
