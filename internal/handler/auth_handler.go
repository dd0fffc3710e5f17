package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"lms-auth/internal/config"
	"lms-auth/internal/models"
	"lms-auth/internal/otp"
	"lms-auth/internal/service"
	"lms-auth/internal/store"
	"lms-auth/internal/util"
)

// AuthService is the slice of the service layer the HTTP mediator needs.
type AuthService interface {
	Register(ctx context.Context, email, password string) (*models.Credential, string, error)
	Login(ctx context.Context, email, password string) (string, error)
	Logout(ctx context.Context, sessionID string) error
	Authenticate(ctx context.Context, sessionID string) (string, error)
	RequestEmailVerification(ctx context.Context, email string) (string, error)
	ConfirmEmailVerification(ctx context.Context, email, code string) error
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error
}

// AuthHandler translates HTTP requests into service calls and typed
// outcomes back into statuses. User-facing failure messages stay generic:
// "wrong password" is indistinguishable from "unknown user", and "expired"
// from "never issued".
type AuthHandler struct {
	authService AuthService
	config      *config.Config
	logger      *zap.Logger
}

func NewAuthHandler(authService AuthService, cfg *config.Config, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		config:      cfg,
		logger:      logger,
	}
}

// Response represents a standard API response.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type otpRequest struct {
	Email string `json:"email"`
}

type otpConfirmRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type passwordResetConfirmRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

// RegisterRoutes registers all auth routes.
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Get("/session", h.Session)

		r.Post("/email/verify/request", h.RequestEmailVerification)
		r.Post("/email/verify/confirm", h.ConfirmEmailVerification)

		r.Post("/password/reset/request", h.RequestPasswordReset)
		r.Post("/password/reset/confirm", h.ConfirmPasswordReset)
	})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cred, sessionID, err := h.authService.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondServiceError(w, err, "registration failed")
		return
	}

	h.setSessionCookie(w, sessionID)
	h.respondWithJSON(w, http.StatusCreated, Response{
		Success: true,
		Data:    map[string]string{"user_id": cred.UserID.String()},
		Message: "registered",
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondServiceError(w, err, "invalid credentials")
		return
	}

	h.setSessionCookie(w, sessionID)
	h.respondWithJSON(w, http.StatusOK, Response{Success: true, Message: "logged in"})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionFromCookie(r)
	if ok {
		if err := h.authService.Logout(r.Context(), sessionID); err != nil {
			h.respondServiceError(w, err, "logout failed")
			return
		}
	}

	h.clearSessionCookie(w)
	h.respondWithJSON(w, http.StatusOK, Response{Success: true, Message: "logged out"})
}

// Session resolves the cookie to the owning user, the whoami check used by
// the LMS frontend on load.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionFromCookie(r)
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	userID, err := h.authService.Authenticate(r.Context(), sessionID)
	if err != nil {
		h.respondServiceError(w, err, "unauthenticated")
		return
	}

	h.respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    map[string]string{"user_id": userID},
	})
}

func (h *AuthHandler) RequestEmailVerification(w http.ResponseWriter, r *http.Request) {
	h.requestOTP(w, r, h.authService.RequestEmailVerification)
}

func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	h.requestOTP(w, r, h.authService.RequestPasswordReset)
}

// requestOTP issues a code and hands it to out-of-band delivery. The
// response is identical whether or not the account exists, to avoid
// account enumeration.
func (h *AuthHandler) requestOTP(w http.ResponseWriter, r *http.Request, issue func(context.Context, string) (string, error)) {
	var req otpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	code, err := issue(r.Context(), req.Email)
	switch {
	case err == nil:
		// The code goes out via the delivery collaborator, never in the
		// HTTP response.
		h.logger.Debug("OTP ready for delivery", util.Int("code_length", len(code)))
	case errors.Is(err, service.ErrInvalidCredentials):
		// Unknown account; respond as if a code was sent.
	case errors.Is(err, service.ErrInvalidInput):
		h.respondWithError(w, http.StatusBadRequest, "invalid request")
		return
	default:
		h.respondServiceError(w, err, "request failed")
		return
	}

	h.respondWithJSON(w, http.StatusAccepted, Response{
		Success: true,
		Message: "if the account exists, a code has been sent",
	})
}

func (h *AuthHandler) ConfirmEmailVerification(w http.ResponseWriter, r *http.Request) {
	var req otpConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.authService.ConfirmEmailVerification(r.Context(), req.Email, req.Code); err != nil {
		h.respondServiceError(w, err, "invalid or expired code")
		return
	}

	h.respondWithJSON(w, http.StatusOK, Response{Success: true, Message: "email verified"})
}

func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.authService.ConfirmPasswordReset(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		h.respondServiceError(w, err, "invalid or expired code")
		return
	}

	h.respondWithJSON(w, http.StatusOK, Response{Success: true, Message: "password updated"})
}

// ===================== helpers =====================

func (h *AuthHandler) sessionFromCookie(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(h.config.Session.CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.Session.CookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(h.config.Session.TTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.IsProduction(),
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.IsProduction(),
	})
}

// respondServiceError maps typed service outcomes to statuses. The message
// shown to the user is the caller-provided generic one, never the internal
// error text.
func (h *AuthHandler) respondServiceError(w http.ResponseWriter, err error, message string) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Auth operation failed", util.ErrorField(err))
	}
	h.respondWithError(w, status, message)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, otp.ErrMalformedCode):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrUnauthenticated),
		errors.Is(err, otp.ErrCodeNotFound),
		errors.Is(err, otp.ErrCodeMismatch),
		errors.Is(err, otp.ErrTooManyAttempts):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *AuthHandler) respondWithError(w http.ResponseWriter, status int, message string) {
	h.respondWithJSON(w, status, Response{Success: false, Error: message})
}

func (h *AuthHandler) respondWithJSON(w http.ResponseWriter, status int, payload Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", util.ErrorField(err))
	}
}
