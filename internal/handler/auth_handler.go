package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"go-auth-service/internal/middleware"
	"go-auth-service/internal/model"
	"go-auth-service/internal/service"
	"go-auth-service/pkg/apierror"
)

type AuthHandler struct {
	service *service.AuthService
	cookies CookieConfig
}

func NewAuthHandler(service *service.AuthService, cookies CookieConfig) *AuthHandler {
	return &AuthHandler{service: service, cookies: cookies}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", http.StatusBadRequest))
		return
	}

	user, pair, err := h.service.Register(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.writeIssued(w, http.StatusCreated, user, pair)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", http.StatusBadRequest))
		return
	}

	user, pair, err := h.service.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.writeIssued(w, http.StatusOK, user, pair)
}

func (h *AuthHandler) FederatedLogin(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.FederatedLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", http.StatusBadRequest))
		return
	}

	user, pair, err := h.service.FederatedLogin(r.Context(), payload.Provider, payload.IDToken)
	if err != nil {
		writeError(w, err)
		return
	}

	h.writeIssued(w, http.StatusOK, user, pair)
}

// Refresh exchanges a refresh token for a fresh pair. The token arrives via
// the path-scoped cookie or, for non-cookie clients, the JSON body.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	token := refreshTokenFromRequest(r)
	if token == "" {
		writeError(w, model.ErrMissingCredential)
		return
	}

	user, pair, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}

	h.writeIssued(w, http.StatusOK, user, pair)
}

// Logout revokes whatever tokens are presented. Clearing both cookies is
// unconditional: ending the session client-side must never be blocked by a
// server-side bookkeeping failure.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	accessToken := accessTokenFromRequest(r)
	refreshToken := refreshTokenFromRequest(r)

	if err := h.service.Logout(r.Context(), accessToken, refreshToken); err != nil {
		slog.Warn("logout revocation incomplete", "error", err)
	}

	h.cookies.clear(w)
	writeJSON(w, http.StatusOK, model.APIResponse{Success: true, Message: "logged out"})
}

func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.PasswordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", http.StatusBadRequest))
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), payload.Email); err != nil {
		writeError(w, err)
		return
	}

	// Same answer whether or not the account exists.
	writeJSON(w, http.StatusAccepted, model.APIResponse{Success: true, Message: "if the account exists, a reset mail has been sent"})
}

func (h *AuthHandler) CompletePasswordReset(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.PasswordResetCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", http.StatusBadRequest))
		return
	}

	if err := h.service.CompletePasswordReset(r.Context(), payload.Token, payload.NewPassword); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.APIResponse{Success: true, Message: "password updated"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrMissingCredential)
		return
	}

	writeJSON(w, http.StatusOK, model.APIResponse{Success: true, User: &identity})
}

func (h *AuthHandler) writeIssued(w http.ResponseWriter, status int, user model.User, pair model.TokenPair) {
	h.cookies.install(w, pair.AccessToken, pair.RefreshToken)

	profile := user.Public()
	writeJSON(w, status, model.APIResponse{
		Success:     true,
		AccessToken: pair.AccessToken,
		User:        &profile,
	})
}

func accessTokenFromRequest(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" && strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}

	if cookie, err := r.Cookie(accessCookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}

	return ""
}

func refreshTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(refreshCookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return strings.TrimSpace(cookie.Value)
	}

	var payload model.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err == nil {
		return strings.TrimSpace(payload.RefreshToken)
	}

	return ""
}
