package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/devsync-io/devsync/backend/internal/model/user"
	"github.com/devsync-io/devsync/backend/internal/store"
)

// blacklistTTL matches the token lifetime: a revoked token only needs
// to stay listed until it would have expired anyway.
const blacklistTTL = 24 * time.Hour

// Result is a successful authentication. RefreshedToken is set when an
// expired token was silently upgraded; callers should hand the new
// token back to the client.
type Result struct {
	User           *user.User
	RefreshedToken string
}

// Service verifies session credentials against the blacklist and the
// identity store, with silent refresh on expiry.
type Service struct {
	tokens    *TokenManager
	blacklist store.Blacklist
	users     store.IdentityStore
	logger    zerolog.Logger
}

// NewService wires the credential verifier.
func NewService(tokens *TokenManager, blacklist store.Blacklist, users store.IdentityStore, logger zerolog.Logger) *Service {
	return &Service{
		tokens:    tokens,
		blacklist: blacklist,
		users:     users,
		logger:    logger.With().Str("component", "auth").Logger(),
	}
}

// Tokens exposes the underlying token manager for issuance at login.
func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

// Revoke blacklists a token until its natural expiry.
func (s *Service) Revoke(ctx context.Context, token string) error {
	return s.blacklist.Revoke(ctx, token, blacklistTTL)
}

// Authenticate validates a raw token and resolves the identity it
// names. On expiry it attempts a silent refresh: the unverified claims
// identify the user, and if that account still exists a fresh token is
// issued and returned alongside the identity. Errors are the typed
// sentinels from token.go so callers can distinguish rejection reasons.
func (s *Service) Authenticate(ctx context.Context, token string) (*Result, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	// A blacklist outage must not lock out valid sessions; a failed
	// lookup reads as "not revoked".
	revoked, err := s.blacklist.IsRevoked(ctx, token)
	if err != nil {
		s.logger.Warn().Err(err).Msg("blacklist check failed, treating token as not revoked")
	} else if revoked {
		return nil, ErrRevokedToken
	}

	claims, err := s.tokens.Verify(token)
	if errors.Is(err, ErrExpiredToken) {
		return s.refresh(ctx, token)
	}
	if err != nil {
		return nil, err
	}

	u, err := s.users.FindUserByEmail(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	return &Result{User: u}, nil
}

func (s *Service) refresh(ctx context.Context, token string) (*Result, error) {
	claims, err := s.tokens.DecodeUnverified(token)
	if err != nil || claims.Email == "" {
		return nil, ErrExpiredToken
	}

	u, err := s.users.FindUserByEmail(ctx, claims.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("identity lookup failed during token refresh")
		}
		return nil, ErrExpiredToken
	}

	fresh, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to issue refreshed token")
		return nil, ErrExpiredToken
	}

	s.logger.Info().Str("email", u.Email).Msg("silently refreshed expired token")
	return &Result{User: u, RefreshedToken: fresh}, nil
}
