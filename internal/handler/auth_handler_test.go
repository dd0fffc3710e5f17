package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lms-auth/internal/config"
	"lms-auth/internal/models"
	"lms-auth/internal/otp"
	"lms-auth/internal/service"
	"lms-auth/internal/store"
)

// fakeAuthService returns canned outcomes per method.
type fakeAuthService struct {
	registerCred *models.Credential
	registerErr  error
	loginErr     error
	logoutErr    error
	authUserID   string
	authErr      error
	requestErr   error
	confirmErr   error
	resetErr     error
}

func (f *fakeAuthService) Register(ctx context.Context, email, password string) (*models.Credential, string, error) {
	if f.registerErr != nil {
		return nil, "", f.registerErr
	}
	return f.registerCred, "session-token", nil
}

func (f *fakeAuthService) Login(ctx context.Context, email, password string) (string, error) {
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return "session-token", nil
}

func (f *fakeAuthService) Logout(ctx context.Context, sessionID string) error {
	return f.logoutErr
}

func (f *fakeAuthService) Authenticate(ctx context.Context, sessionID string) (string, error) {
	if f.authErr != nil {
		return "", f.authErr
	}
	return f.authUserID, nil
}

func (f *fakeAuthService) RequestEmailVerification(ctx context.Context, email string) (string, error) {
	if f.requestErr != nil {
		return "", f.requestErr
	}
	return "123456", nil
}

func (f *fakeAuthService) ConfirmEmailVerification(ctx context.Context, email, code string) error {
	return f.confirmErr
}

func (f *fakeAuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if f.requestErr != nil {
		return "", f.requestErr
	}
	return "123456", nil
}

func (f *fakeAuthService) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error {
	return f.resetErr
}

func newTestHandler(t *testing.T, svc AuthService) http.Handler {
	t.Helper()
	cfg := &config.Config{Environment: "development"}
	cfg.Session = config.SessionConfig{
		TTL:        time.Hour,
		CookieName: "lms_session",
	}

	router := chi.NewRouter()
	NewAuthHandler(svc, cfg, zap.NewNop()).RegisterRoutes(router)
	return router
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "lms_session" {
			return c
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

func TestRegister_SetsSessionCookie(t *testing.T) {
	userID := uuid.New()
	h := newTestHandler(t, &fakeAuthService{
		registerCred: &models.Credential{UserID: userID, Email: "student@school.edu"},
	})

	rec := doJSON(t, h, http.MethodPost, "/auth/register",
		map[string]string{"email": "student@school.edu", "password": "Passw0rd!"}, nil)

	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, userID.String(), data["user_id"])

	cookie := sessionCookie(t, rec)
	assert.Equal(t, "session-token", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, 3600, cookie.MaxAge)
	assert.Equal(t, "/", cookie.Path)
}

func TestRegister_EmailTaken(t *testing.T) {
	h := newTestHandler(t, &fakeAuthService{registerErr: service.ErrEmailTaken})

	rec := doJSON(t, h, http.MethodPost, "/auth/register",
		map[string]string{"email": "student@school.edu", "password": "Passw0rd!"}, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, decodeResponse(t, rec).Success)
}

func TestLogin_BadCredentials(t *testing.T) {
	h := newTestHandler(t, &fakeAuthService{loginErr: service.ErrInvalidCredentials})

	rec := doJSON(t, h, http.MethodPost, "/auth/login",
		map[string]string{"email": "student@school.edu", "password": "wrongpass"}, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The failure message gives away nothing about whether the account
	// exists.
	resp := decodeResponse(t, rec)
	assert.Equal(t, "invalid credentials", resp.Error)
	assert.Empty(t, rec.Result().Cookies())
}

func TestLogin_MalformedBody(t *testing.T) {
	h := newTestHandler(t, &fakeAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSession_WithCookie(t *testing.T) {
	h := newTestHandler(t, &fakeAuthService{authUserID: "user-123"})

	rec := doJSON(t, h, http.MethodGet, "/auth/session", nil,
		&http.Cookie{Name: "lms_session", Value: "session-token"})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "user-123", data["user_id"])
}

func TestSession_WithoutCookie(t *testing.T) {
	h := newTestHandler(t, &fakeAuthService{authUserID: "user-123"})

	rec := doJSON(t, h, http.MethodGet, "/auth/session", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSession_ExpiredSession(t *testing.T) {
	h := newTestHandler(t, &fakeAuthService{authErr: service.ErrUnauthenticated})

	rec := doJSON(t, h, http.MethodGet, "/auth/session", nil,
		&http.Cookie{Name: "lms_session", Value: "stale-token"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSession_StoreUnavailable(t *testing.T) {
	h := newTestHandler(t, &fakeAuthService{authErr: store.ErrUnavailable})

	rec := doJSON(t, h, http.MethodGet, "/auth/session", nil,
		&http.Cookie{Name: "lms_session", Value: "session-token"})

	// Outage denies access rather than pretending the user is logged out.
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLogout_ClearsCookie(t *testing.T) {
	h := newTestHandler(t, &fakeAuthService{})

	rec := doJSON(t, h, http.MethodPost, "/auth/logout", nil,
		&http.Cookie{Name: "lms_session", Value: "session-token"})

	require.Equal(t, http.StatusOK, rec.Code)

	cookie := sessionCookie(t, rec)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestRequestOTP_UniformResponse(t *testing.T) {
	// Known and unknown accounts must be indistinguishable from the
	// response alone.
	known := doJSON(t, newTestHandler(t, &fakeAuthService{}),
		http.MethodPost, "/auth/email/verify/request",
		map[string]string{"email": "student@school.edu"}, nil)
	unknown := doJSON(t, newTestHandler(t, &fakeAuthService{requestErr: service.ErrInvalidCredentials}),
		http.MethodPost, "/auth/email/verify/request",
		map[string]string{"email": "nobody@school.edu"}, nil)

	assert.Equal(t, http.StatusAccepted, known.Code)
	assert.Equal(t, http.StatusAccepted, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())

	// The code itself never appears in the response.
	assert.NotContains(t, known.Body.String(), "123456")
}

func TestConfirmEmailVerification_WrongCode(t *testing.T) {
	h := newTestHandler(t, &fakeAuthService{confirmErr: otp.ErrCodeMismatch})

	rec := doJSON(t, h, http.MethodPost, "/auth/email/verify/confirm",
		map[string]string{"email": "student@school.edu", "code": "000000"}, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid or expired code", decodeResponse(t, rec).Error)
}

func TestConfirmEmailVerification_MalformedCode(t *testing.T) {
	h := newTestHandler(t, &fakeAuthService{confirmErr: otp.ErrMalformedCode})

	rec := doJSON(t, h, http.MethodPost, "/auth/email/verify/confirm",
		map[string]string{"email": "student@school.edu", "code": "12ab"}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfirmPasswordReset_TooManyAttempts(t *testing.T) {
	h := newTestHandler(t, &fakeAuthService{resetErr: otp.ErrTooManyAttempts})

	rec := doJSON(t, h, http.MethodPost, "/auth/password/reset/confirm",
		map[string]string{"email": "student@school.edu", "code": "000000", "new_password": "N3wPassword!"}, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegister_StoreUnavailable(t *testing.T) {
	h := newTestHandler(t, &fakeAuthService{registerErr: store.ErrUnavailable})

	rec := doJSON(t, h, http.MethodPost, "/auth/register",
		map[string]string{"email": "student@school.edu", "password": "Passw0rd!"}, nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
