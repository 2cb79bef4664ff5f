package token

import (
	"context"
	"sync"
	"time"

	"sevirun/internal/domain"
)

// Memory is an in-process Repository for tests and local tooling.
type Memory struct {
	mu     sync.Mutex
	tokens map[string]Token
}

var _ Repository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{tokens: make(map[string]Token)}
}

func (m *Memory) Create(_ context.Context, token Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tokens[token.Token]; exists {
		return domain.ErrAlreadyExists
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	m.tokens[token.Token] = token
	return nil
}

func (m *Memory) Get(_ context.Context, token string) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (m *Memory) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[token]; !ok {
		return domain.ErrNotFound
	}
	delete(m.tokens, token)
	return nil
}

func (m *Memory) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, t := range m.tokens {
		if !t.ExpiresAt.After(now) {
			delete(m.tokens, k)
			n++
		}
	}
	return n, nil
}
