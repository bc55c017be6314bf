package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"workspace-auth/internal/observability"
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	maxJSONBodyBytes  = 1 << 20
	maxEmailLength    = 320
	minUsernameLength = 3
	maxUsernameLength = 50
	minPasswordLength = 8
	maxUserAgent      = 255
	maxIPAddress      = 45
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decodeBody(w, r, &body) {
		return
	}

	body.Email = strings.TrimSpace(body.Email)
	body.Username = strings.TrimSpace(body.Username)
	if len(body.Email) > maxEmailLength || !emailRegex.MatchString(body.Email) {
		writeError(w, http.StatusBadRequest, "email format is invalid")
		return
	}
	if n := utf8.RuneCountInString(body.Username); n < minUsernameLength || n > maxUsernameLength {
		writeError(w, http.StatusBadRequest, "username must be 3 to 50 characters")
		return
	}
	if utf8.RuneCountInString(body.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	user, err := h.service.Register(r.Context(), body.Email, body.Username, body.Password)
	if err != nil {
		writeServiceError(w, "register", err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeBody(w, r, &body) {
		return
	}

	body.Email = strings.TrimSpace(body.Email)
	if !emailRegex.MatchString(body.Email) {
		writeError(w, http.StatusBadRequest, "email format is invalid")
		return
	}
	if utf8.RuneCountInString(body.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "password format is invalid")
		return
	}

	device := DeviceInfo{
		UserAgent: truncate(r.UserAgent(), maxUserAgent),
		IPAddress: truncate(observability.ClientIP(r), maxIPAddress),
	}

	tokens, err := h.service.Login(r.Context(), body.Email, body.Password, device)
	if err != nil {
		writeServiceError(w, "login", err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeBody(w, r, &body) {
		return
	}

	token, err := h.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeServiceError(w, "refresh", err)
		return
	}

	writeJSON(w, http.StatusOK, token)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeBody(w, r, &body) {
		return
	}

	if strings.TrimSpace(body.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	if err := h.service.Logout(r.Context(), body.RefreshToken); err != nil {
		writeServiceError(w, "logout", err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

// LogoutAll must be mounted behind Middleware.
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	if err := h.service.LogoutAll(r.Context(), user.ID); err != nil {
		writeServiceError(w, "logout_all", err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "All sessions logged out"})
}

// Me must be mounted behind Middleware.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func writeServiceError(w http.ResponseWriter, operation string, err error) {
	var conflict *ConflictError
	switch {
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, conflict.Error())
	case errors.Is(err, ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, ErrInvalidToken):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, ErrInactiveAccount):
		writeError(w, http.StatusForbidden, "account is deactivated")
	case errors.Is(err, ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	default:
		observability.CaptureError(operation, err)
		writeError(w, http.StatusInternalServerError, "failed to "+strings.ReplaceAll(operation, "_", " "))
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	// Drop a trailing partial rune so the column stays valid UTF-8.
	cut := value[:limit]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
