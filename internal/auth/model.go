package auth

import "time"

const TokenTypeBearer = "bearer"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"-"`
}

type NewUser struct {
	Email        string
	Username     string
	PasswordHash string
}

// RefreshSession mirrors one issued refresh token. Only RevokedAt ever changes
// after insert.
type RefreshSession struct {
	ID        string
	JTI       string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
	Device    DeviceInfo
}

// Active reports whether the session can still be used at now.
func (s RefreshSession) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

type DeviceInfo struct {
	UserAgent string
	IPAddress string
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type AccessToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
