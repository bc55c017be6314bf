package auth

import (
	"context"
	"database/sql"
	"time"

	"workspace-auth/internal/db"
)

type Users interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, input NewUser) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
}

type Sessions interface {
	Create(ctx context.Context, userID, jti string, expiresAt time.Time, device DeviceInfo) (RefreshSession, error)
	FindActiveByJTI(ctx context.Context, jti string) (RefreshSession, error)
	Revoke(ctx context.Context, jti string, at time.Time) error
	RevokeAll(ctx context.Context, userID string, at time.Time) (int64, error)
}

// Store scopes one service operation to a single transaction.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, users Users, sessions Sessions) error) error
}

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(database *sql.DB) *SQLStore {
	return &SQLStore{db: database}
}

func (s *SQLStore) InTx(ctx context.Context, fn func(ctx context.Context, users Users, sessions Sessions) error) error {
	return db.WithTx(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		return fn(ctx, NewUserRepository(tx), NewSessionRepository(tx))
	})
}
