package executor

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"sort"

	"pctasks/app/blob"
	"pctasks/app/config"
	"pctasks/app/objects"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
)

const (
	LabelRunID  = "pctasks.io/run-id"
	LabelJobID  = "pctasks.io/job-id"
	LabelTaskID = "pctasks.io/task-id"
	LabelName   = "pctasks.io/name"
)

var imagePullReasons = map[string]bool{
	"ImagePullBackOff": true,
	"ErrImagePull":     true,
	"InvalidImageName": true,
}

// KubernetesExecutor runs each task attempt as a batch/v1 Job.
type KubernetesExecutor struct {
	client kubernetes.Interface
	cfg    config.RunnerConfig
	blobs  blob.Store
}

func NewKubernetesExecutor(client kubernetes.Interface, cfg config.RunnerConfig, blobs blob.Store) *KubernetesExecutor {
	return &KubernetesExecutor{client: client, cfg: cfg, blobs: blobs}
}

func (e *KubernetesExecutor) Kind() string {
	return "kubernetes"
}

// kubeJobName is stable for a task attempt, so resubmitting finds the same Job.
func kubeJobName(msg *objects.TaskRunMessage) string {
	sum := sha1.Sum([]byte(localTaskID(msg)))
	return "pctasks-" + hex.EncodeToString(sum[:])[:20]
}

func kubeEnv(env map[string]string) []corev1.EnvVar {
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)
	vars := make([]corev1.EnvVar, 0, len(names))
	for _, name := range names {
		vars = append(vars, corev1.EnvVar{Name: name, Value: env[name]})
	}
	return vars
}

// labelValue trims ids to the 63 characters a label value allows.
func labelValue(v string) string {
	if len(v) > 63 {
		return v[:63]
	}
	return v
}

func (e *KubernetesExecutor) buildJob(task *PreparedTask, name, encoded string) *batchv1.Job {
	msg := task.Message
	lbls := map[string]string{
		LabelName:   name,
		LabelRunID:  labelValue(msg.RunID),
		LabelJobID:  labelValue(msg.JobID),
		LabelTaskID: labelValue(msg.TaskID),
	}
	var backoffLimit int32
	command := harnessCommand(e.cfg, encoded)
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: e.cfg.Namespace,
			Labels:    lbls,
		},
		Spec: batchv1.JobSpec{
			BackoffLimit: &backoffLimit,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: lbls},
				Spec: corev1.PodSpec{
					RestartPolicy:      corev1.RestartPolicyNever,
					ServiceAccountName: e.cfg.ServiceAccount,
					Containers: []corev1.Container{{
						Name:    "task",
						Image:   taskImage(e.cfg, task),
						Command: command[:1],
						Args:    command[1:],
						Env:     kubeEnv(task.Environment),
					}},
				},
			},
		},
	}
}

func (e *KubernetesExecutor) Submit(ctx context.Context, task *PreparedTask) (*SubmitResult, error) {
	encoded, err := task.Message.Encode()
	if err != nil {
		return nil, objects.Permanent("submit", "encode task", err)
	}
	name := kubeJobName(task.Message)
	_, err = e.client.BatchV1().Jobs(e.cfg.Namespace).Create(ctx, e.buildJob(task, name, encoded), metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return nil, kubeError("submit", err)
	}
	return &SubmitResult{ExecutorID: name}, nil
}

func (e *KubernetesExecutor) Poll(ctx context.Context, executorID string, pollCount int) (*PollResult, error) {
	job, err := e.client.BatchV1().Jobs(e.cfg.Namespace).Get(ctx, executorID, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return &PollResult{State: PollMissing}, nil
	}
	if err != nil {
		return nil, kubeError("poll", err)
	}
	switch {
	case job.Status.Succeeded > 0:
		return &PollResult{State: PollCompleted}, nil
	case job.Status.Failed > 0:
		reason := "task pod failed"
		for _, cond := range job.Status.Conditions {
			if cond.Type == batchv1.JobFailed && cond.Message != "" {
				reason = cond.Message
			}
		}
		return &PollResult{State: PollFailed, Reason: reason}, nil
	}

	pods, err := e.client.CoreV1().Pods(e.cfg.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labels.SelectorFromSet(labels.Set{LabelName: executorID}).String(),
	})
	if err != nil {
		return nil, kubeError("poll", err)
	}
	for _, pod := range pods.Items {
		for _, status := range pod.Status.ContainerStatuses {
			if status.State.Waiting != nil && imagePullReasons[status.State.Waiting.Reason] {
				return &PollResult{State: PollFailed, Reason: "image pull failure: " + status.State.Waiting.Message}, nil
			}
		}
	}
	return &PollResult{State: PollRunning}, nil
}

func (e *KubernetesExecutor) FetchResult(ctx context.Context, task *PreparedTask, executorID string) (*objects.TaskResult, error) {
	return fetchOutput(ctx, e.blobs, task)
}

func (e *KubernetesExecutor) Cancel(ctx context.Context, executorID string) error {
	policy := metav1.DeletePropagationBackground
	err := e.client.BatchV1().Jobs(e.cfg.Namespace).Delete(ctx, executorID, metav1.DeleteOptions{PropagationPolicy: &policy})
	if err != nil && !apierrors.IsNotFound(err) {
		return kubeError("cancel", err)
	}
	return nil
}

func kubeError(op string, err error) error {
	switch {
	case apierrors.IsInvalid(err), apierrors.IsForbidden(err), apierrors.IsBadRequest(err), apierrors.IsUnauthorized(err):
		return objects.Permanent(op, string(apierrors.ReasonForError(err)), err)
	default:
		return objects.Transient(op, err)
	}
}
