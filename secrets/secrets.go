// Package secrets resolves externalized values referenced by name from event content.
package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a secret name is unknown to the store.
var ErrNotFound = errors.New("secret not found")

// Store resolves secrets by name.
type Store interface {
	Get(ctx context.Context, name string) (string, error)
}

// MapStore is an in-memory Store. Its values are fixed at construction.
type MapStore struct {
	values map[string]string
}

func NewMapStore(values map[string]string) *MapStore {
	m := &MapStore{values: make(map[string]string, len(values))}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

func (m *MapStore) Get(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, ok := m.values[name]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}
