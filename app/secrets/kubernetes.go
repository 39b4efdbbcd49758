package secrets

import (
	"context"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// KubernetesProvider reads keys of one Secret object.
type KubernetesProvider struct {
	client    kubernetes.Interface
	namespace string
	name      string
}

func NewKubernetesProvider(client kubernetes.Interface, namespace, name string) *KubernetesProvider {
	return &KubernetesProvider{client: client, namespace: namespace, name: name}
}

func (p *KubernetesProvider) Get(ctx context.Context, name string) (string, error) {
	secret, err := p.client.CoreV1().Secrets(p.namespace).Get(ctx, p.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return "", &NotFoundError{Name: name}
	}
	if err != nil {
		return "", err
	}
	if v, ok := secret.Data[name]; ok {
		return string(v), nil
	}
	if v, ok := secret.StringData[name]; ok {
		return v, nil
	}
	return "", &NotFoundError{Name: name}
}
