package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"workspace-auth/internal/db"
)

// SessionRepository persists refresh sessions. Reads never filter on the
// current time; callers check expiry themselves.
type SessionRepository struct {
	db db.DBTX
}

func NewSessionRepository(db db.DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, userID, jti string, expiresAt time.Time, device DeviceInfo) (RefreshSession, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return RefreshSession{}, fmt.Errorf("generate refresh session id: %w", err)
	}

	session := RefreshSession{
		ID:        id.String(),
		JTI:       jti,
		UserID:    userID,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: time.Now().UTC(),
		Device:    device,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (id, token_jti, user_id, expires_at, created_at, device_info, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, session.ID, session.JTI, session.UserID, session.ExpiresAt, session.CreatedAt,
		nullString(device.UserAgent), nullString(device.IPAddress))
	if err != nil {
		return RefreshSession{}, fmt.Errorf("insert refresh session: %w", err)
	}

	return session, nil
}

// FindActiveByJTI returns the session only while it is unrevoked.
func (r *SessionRepository) FindActiveByJTI(ctx context.Context, jti string) (RefreshSession, error) {
	var (
		session   RefreshSession
		userAgent sql.NullString
		ipAddress sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, token_jti, user_id, expires_at, created_at, device_info, ip_address
		FROM refresh_sessions
		WHERE token_jti = $1 AND revoked_at IS NULL
	`, jti).Scan(&session.ID, &session.JTI, &session.UserID, &session.ExpiresAt, &session.CreatedAt, &userAgent, &ipAddress)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RefreshSession{}, errSessionNotFound
		}
		return RefreshSession{}, fmt.Errorf("query refresh session: %w", err)
	}

	session.ExpiresAt = session.ExpiresAt.UTC()
	session.Device = DeviceInfo{UserAgent: userAgent.String, IPAddress: ipAddress.String}

	return session, nil
}

// Revoke is a no-op for sessions that are already revoked or unknown.
func (r *SessionRepository) Revoke(ctx context.Context, jti string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_sessions
		SET revoked_at = $2
		WHERE token_jti = $1 AND revoked_at IS NULL
	`, jti, at.UTC())
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}

	return nil
}

// RevokeAll revokes every unrevoked session of userID in one statement.
func (r *SessionRepository) RevokeAll(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_sessions
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh sessions: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoked refresh sessions rows affected: %w", err)
	}

	return affected, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
