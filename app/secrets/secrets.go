package secrets

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"pctasks/app/config"
	"pctasks/pkg/kube"
)

// Provider returns secret values by name.
type Provider interface {
	Get(ctx context.Context, name string) (string, error)
}

type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("secret '%s' not found", e.Name)
}

func New(cfg config.SecretsConfig) (Provider, error) {
	switch cfg.Kind {
	case "env", "":
		return NewEnvProvider(cfg.Prefix), nil
	case "kubernetes":
		cs, err := kube.NewClientset("")
		if err != nil {
			return nil, err
		}
		return NewKubernetesProvider(cs, cfg.Namespace, cfg.Name), nil
	default:
		return nil, fmt.Errorf("unsupported secrets kind '%s'", cfg.Kind)
	}
}

var envUnsafe = regexp.MustCompile(`[^A-Z0-9_]`)

// EnvProvider reads secret NAME from the environment variable
// <prefix><NAME> with every character outside [A-Z0-9_] mapped to '_'.
type EnvProvider struct {
	prefix string
	lookup func(string) (string, bool)
}

func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix, lookup: os.LookupEnv}
}

func EnvName(prefix, name string) string {
	return prefix + envUnsafe.ReplaceAllString(strings.ToUpper(name), "_")
}

func (p *EnvProvider) Get(ctx context.Context, name string) (string, error) {
	if v, ok := p.lookup(EnvName(p.prefix, name)); ok {
		return v, nil
	}
	return "", &NotFoundError{Name: name}
}

// Static serves secrets from a map, mostly for tests and local runs.
type Static map[string]string

func (s Static) Get(ctx context.Context, name string) (string, error) {
	if v, ok := s[name]; ok {
		return v, nil
	}
	return "", &NotFoundError{Name: name}
}
