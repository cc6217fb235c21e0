package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/0m3kk/lunafold/secrets"
)

const secretPrefix = "luna:secret:"

// SecretStore implements secrets.Store on Redis strings.
type SecretStore struct {
	client *redis.Client
}

func NewSecretStore(client *redis.Client) *SecretStore {
	return &SecretStore{client: client}
}

// Get returns the secret stored under name, or secrets.ErrNotFound.
func (s *SecretStore) Get(ctx context.Context, name string) (string, error) {
	v, err := s.client.Get(ctx, secretPrefix+name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("secret %q: %w", name, secrets.ErrNotFound)
		}
		return "", fmt.Errorf("failed to get secret %q: %w", name, err)
	}
	return v, nil
}

// Put stores a secret without expiry.
func (s *SecretStore) Put(ctx context.Context, name, value string) error {
	if err := s.client.Set(ctx, secretPrefix+name, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to put secret %q: %w", name, err)
	}
	return nil
}

var _ secrets.Store = (*SecretStore)(nil)
