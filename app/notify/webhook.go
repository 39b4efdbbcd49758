package notify

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"pctasks/app/config"
	"pctasks/app/objects"
	"pctasks/pkg/log"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// WebhookNotifier posts notifications as signed form data to a topic
// gateway.
type WebhookNotifier struct {
	cfg    config.NotifyConfig
	client *resty.Client
}

func NewWebhookNotifier(cfg config.NotifyConfig) *WebhookNotifier {
	return &WebhookNotifier{cfg: cfg, client: resty.New()}
}

func (n *WebhookNotifier) Notify(ctx context.Context, msg *objects.NotificationMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	params := map[string]string{
		"topic_name":     n.cfg.Topic,
		"msg_id":         uuid.NewString(),
		"msg_action":     "pctasks.run." + msg.Status,
		"msg_timestamp":  msg.Time.UTC().Format("2006-01-02T15:04:05.000"),
		"msg_request_id": msg.RunID,
		"app_key":        n.cfg.AppKey,
		"msg":            string(body),
	}
	params["sign"] = Sign(params, n.cfg.SecretKey)

	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetFormData(params).
		Post(strings.TrimRight(n.cfg.WebhookURL, "/") + "/message/topic/send")
	if err != nil {
		return err
	}
	log.Debugf(ctx, "send notification of run %s returned %d: %s", msg.RunID, resp.StatusCode(), resp.String())
	if resp.IsError() {
		return fmt.Errorf("notification webhook returned %d", resp.StatusCode())
	}
	return nil
}

// Sign is the md5 of the params as sorted key=value pairs followed by
// secret.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "sign" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(params[k])
	}
	b.WriteString(secret)
	return fmt.Sprintf("%x", md5.Sum([]byte(b.String())))
}
