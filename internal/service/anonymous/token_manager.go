package anonymous

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"sevirun/internal/domain"
	tokenrepo "sevirun/internal/repository/token"
)

type tokenMeta struct {
	AnonymousID string
	ExpiresAt   time.Time
}

type tokenManager struct {
	repo tokenrepo.Repository
	now  func() time.Time
}

func newTokenManager(repo tokenrepo.Repository) *tokenManager {
	return &tokenManager{repo: repo, now: time.Now}
}

func (m *tokenManager) Issue(ctx context.Context, anonymousID string, ttl time.Duration) (string, error) {
	for i := 0; i < 5; i++ {
		token, err := randomToken()
		if err != nil {
			return "", err
		}
		anon := anonymousID
		err = m.repo.Create(ctx, tokenrepo.Token{
			Token:       token,
			AnonymousID: &anon,
			Kind:        tokenrepo.KindAnonymous,
			ExpiresAt:   m.now().Add(ttl),
		})
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return "", err
		}
	}
	return "", errors.New("token collision")
}

func (m *tokenManager) Validate(ctx context.Context, token string) (tokenMeta, bool) {
	if token == "" {
		return tokenMeta{}, false
	}
	meta, err := m.repo.Get(ctx, token)
	if err != nil || meta.Kind != tokenrepo.KindAnonymous || meta.AnonymousID == nil {
		return tokenMeta{}, false
	}
	if m.now().After(meta.ExpiresAt) {
		_ = m.repo.Delete(ctx, token)
		return tokenMeta{}, false
	}
	return tokenMeta{AnonymousID: *meta.AnonymousID, ExpiresAt: meta.ExpiresAt}, true
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
