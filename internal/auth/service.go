package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"workspace-auth/internal/observability"
)

type Service struct {
	store  Store
	hasher *Hasher
	tokens *TokenCodec
	logger *observability.Logger
	now    func() time.Time
}

func NewService(store Store, hasher *Hasher, tokens *TokenCodec, logger *observability.Logger) *Service {
	return &Service{
		store:  store,
		hasher: hasher,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
}

// Register creates an active user. Duplicate email or username, whether seen
// by the pre-checks or by the unique constraints, yields a *ConflictError.
func (s *Service) Register(ctx context.Context, email, username, password string) (User, error) {
	email = normalizeEmail(email)
	username = strings.TrimSpace(username)

	var created User
	err := s.store.InTx(ctx, func(ctx context.Context, users Users, _ Sessions) error {
		exists, err := users.ExistsByEmail(ctx, email)
		if err != nil {
			return err
		}
		if exists {
			return &ConflictError{Field: "email"}
		}

		exists, err = users.ExistsByUsername(ctx, username)
		if err != nil {
			return err
		}
		if exists {
			return &ConflictError{Field: "username"}
		}

		digest, err := s.hasher.Hash(password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}

		created, err = users.Create(ctx, NewUser{Email: email, Username: username, PasswordHash: digest})
		return err
	})
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			s.logger.Info("auth_register_conflict", map[string]any{"field": conflict.Field})
		}
		return User{}, err
	}

	s.logger.Info("auth_register", map[string]any{"user_id": created.ID})
	return created, nil
}

// Login never tells an unknown email apart from a wrong password, neither in
// the returned error nor in the time spent hashing.
func (s *Service) Login(ctx context.Context, email, password string, device DeviceInfo) (Tokens, error) {
	email = normalizeEmail(email)

	var tokens Tokens
	var sessionJTI, userID string
	err := s.store.InTx(ctx, func(ctx context.Context, users Users, sessions Sessions) error {
		user, err := users.GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				s.hasher.VerifyDummy(password)
				return ErrInvalidCredentials
			}
			return err
		}

		if !s.hasher.Verify(password, user.PasswordHash) {
			return ErrInvalidCredentials
		}
		if !user.IsActive {
			return ErrInactiveAccount
		}

		access, err := s.tokens.IssueAccess(user)
		if err != nil {
			return err
		}
		refresh, claims, err := s.tokens.IssueRefresh(user.ID)
		if err != nil {
			return err
		}

		if _, err := sessions.Create(ctx, user.ID, claims.JTI, claims.ExpiresAt, device); err != nil {
			return err
		}

		tokens = Tokens{AccessToken: access, RefreshToken: refresh, TokenType: TokenTypeBearer}
		sessionJTI, userID = claims.JTI, user.ID
		return nil
	})
	if err != nil {
		return Tokens{}, err
	}

	s.logger.Info("auth_login", map[string]any{"user_id": userID, "jti": sessionJTI})
	return tokens, nil
}

// Refresh issues a new access token and leaves the refresh session untouched.
// Every rejection is ErrInvalidToken.
func (s *Service) Refresh(ctx context.Context, rawRefreshToken string) (AccessToken, error) {
	claims, err := s.decodeRefresh(rawRefreshToken)
	if err != nil {
		return AccessToken{}, ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return AccessToken{}, ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.JTI); err != nil {
		return AccessToken{}, ErrInvalidToken
	}

	var access string
	err = s.store.InTx(ctx, func(ctx context.Context, users Users, sessions Sessions) error {
		session, err := sessions.FindActiveByJTI(ctx, claims.JTI)
		if err != nil {
			if errors.Is(err, errSessionNotFound) {
				return ErrInvalidToken
			}
			return err
		}
		if session.UserID != claims.Subject || !session.Active(s.now().UTC()) {
			return ErrInvalidToken
		}

		user, err := users.GetByID(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return ErrInvalidToken
			}
			return err
		}
		if !user.IsActive {
			return ErrInvalidToken
		}

		access, err = s.tokens.IssueAccess(user)
		return err
	})
	if err != nil {
		return AccessToken{}, err
	}

	return AccessToken{AccessToken: access, TokenType: TokenTypeBearer}, nil
}

// Logout revokes the session behind a refresh token. Tokens whose session is
// gone, already revoked or expired count as logged out.
func (s *Service) Logout(ctx context.Context, rawRefreshToken string) error {
	claims, err := s.decodeRefresh(rawRefreshToken)
	if err != nil {
		if errors.Is(err, errTokenExpired) {
			return nil
		}
		return ErrInvalidToken
	}

	return s.store.InTx(ctx, func(ctx context.Context, _ Users, sessions Sessions) error {
		session, err := sessions.FindActiveByJTI(ctx, claims.JTI)
		if err != nil {
			if errors.Is(err, errSessionNotFound) {
				return nil
			}
			return err
		}

		now := s.now().UTC()
		if !session.Active(now) {
			return nil
		}
		if err := sessions.Revoke(ctx, session.JTI, now); err != nil {
			return err
		}

		s.logger.Info("auth_logout", map[string]any{"user_id": session.UserID, "jti": session.JTI})
		return nil
	})
}

// LogoutAll revokes every active session of userID. The caller is already
// authenticated, so no token is checked here.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	var revoked int64
	err := s.store.InTx(ctx, func(ctx context.Context, _ Users, sessions Sessions) error {
		var err error
		revoked, err = sessions.RevokeAll(ctx, userID, s.now().UTC())
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("auth_logout_all", map[string]any{"user_id": userID, "revoked_sessions": revoked})
	return nil
}

// CurrentUser resolves the owner of an access token.
func (s *Service) CurrentUser(ctx context.Context, rawAccessToken string) (User, error) {
	decoded, err := s.tokens.Decode(strings.TrimSpace(rawAccessToken))
	if err != nil {
		return User{}, ErrInvalidToken
	}
	claims, ok := decoded.(AccessClaims)
	if !ok {
		return User{}, ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return User{}, ErrInvalidToken
	}

	var user User
	err = s.store.InTx(ctx, func(ctx context.Context, users Users, _ Sessions) error {
		var err error
		user, err = users.GetByID(ctx, claims.Subject)
		return err
	})
	if err != nil {
		return User{}, err
	}
	if !user.IsActive {
		return User{}, ErrInactiveAccount
	}

	return user, nil
}

// decodeRefresh returns the claims of a correctly signed refresh token. An
// expired one still reports errTokenExpired.
func (s *Service) decodeRefresh(raw string) (RefreshClaims, error) {
	decoded, err := s.tokens.Decode(strings.TrimSpace(raw))
	claims, ok := decoded.(RefreshClaims)
	if !ok {
		return RefreshClaims{}, ErrInvalidToken
	}
	if err != nil {
		return RefreshClaims{}, err
	}
	return claims, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
