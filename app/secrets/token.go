package secrets

import (
	"context"
	"fmt"
)

// TokenProvider hands out short lived storage credentials.
type TokenProvider interface {
	GetToken(ctx context.Context, account, container string) (string, error)
}

// SecretTokenProvider looks tokens up as secret token-<account>-<container>.
type SecretTokenProvider struct {
	Secrets Provider
}

func TokenSecretName(account, container string) string {
	return fmt.Sprintf("token-%s-%s", account, container)
}

func (p *SecretTokenProvider) GetToken(ctx context.Context, account, container string) (string, error) {
	return p.Secrets.Get(ctx, TokenSecretName(account, container))
}
