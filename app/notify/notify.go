// Package notify publishes run state notifications. Delivering them to
// people is somebody else's job.
package notify

import (
	"context"

	"pctasks/app/config"
	"pctasks/app/objects"
	"pctasks/app/queue"
	"pctasks/pkg/log"
)

type Notifier interface {
	Notify(ctx context.Context, msg *objects.NotificationMessage) error
}

// QueueNotifier sends Notification envelopes to the notification queue.
type QueueNotifier struct {
	queues *queue.Set
}

func NewQueueNotifier(queues *queue.Set) *QueueNotifier {
	return &QueueNotifier{queues: queues}
}

func (n *QueueNotifier) Notify(ctx context.Context, msg *objects.NotificationMessage) error {
	_, err := n.queues.Send(ctx, queue.NotificationQueue, objects.MessageTypeNotification, msg)
	return err
}

// Multi notifies every notifier and logs the failures of all but the first.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg *objects.NotificationMessage) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			if first == nil {
				first = err
				continue
			}
			log.Warnf(ctx, "notify run %s failed: %s", msg.RunID, err)
		}
	}
	return first
}

// New builds the notifiers of cfg on top of the queue notifier.
func New(cfg config.NotifyConfig, queues *queue.Set) Notifier {
	notifiers := Multi{NewQueueNotifier(queues)}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, NewWebhookNotifier(cfg))
	}
	return notifiers
}
