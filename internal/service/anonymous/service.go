// Package anonymous issues the opaque session tokens that identify guests.
package anonymous

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sevirun/internal/logging"
	tokenrepo "sevirun/internal/repository/token"
)

var ErrInvalidToken = errors.New("invalid token")

type Service struct {
	tokens     *tokenManager
	logger     *zap.Logger
	sessionTTL time.Duration
}

func New(tokens tokenrepo.Repository, logger *zap.Logger) *Service {
	return &Service{
		tokens:     newTokenManager(tokens),
		logger:     logging.OrNop(logger).Named("anonymous_service"),
		sessionTTL: 30 * 24 * time.Hour,
	}
}

// Issue creates a new guest identity and the token that carries it.
func (s *Service) Issue(ctx context.Context) (token, anonymousID string, err error) {
	anonymousID = uuid.NewString()
	token, err = s.tokens.Issue(ctx, anonymousID, s.sessionTTL)
	if err != nil {
		return "", "", err
	}
	s.logger.Debug("anonymous session issued", zap.String("session_id", anonymousID))
	return token, anonymousID, nil
}

// LookupByToken resolves a session token to its guest identity.
func (s *Service) LookupByToken(ctx context.Context, token string) (string, error) {
	meta, ok := s.tokens.Validate(ctx, token)
	if !ok {
		return "", ErrInvalidToken
	}
	return meta.AnonymousID, nil
}

// PurgeExpired removes expired tokens of every kind.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.tokens.repo.DeleteExpired(ctx, s.tokens.now())
}

func (s *Service) SessionTTLSeconds() int {
	return int(s.sessionTTL.Seconds())
}
