package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"go-auth-service/internal/model"
	"go-auth-service/pkg/apierror"
)

func writeJSON(w http.ResponseWriter, status int, body model.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError is the single place rejection kinds become HTTP statuses:
// every credential failure is 401, the capability gate is 403, and
// infrastructure faults are 503 so clients never mistake them for a
// credential problem.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "unexpected server error"

	var apiErr *apierror.APIError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatus
		message = apiErr.Message
	case errors.Is(err, model.ErrMissingCredential):
		status = http.StatusUnauthorized
		message = "missing credentials"
	case errors.Is(err, model.ErrInvalidCredentials):
		status = http.StatusUnauthorized
		message = "invalid email or password"
	case errors.Is(err, model.ErrInvalidSignature):
		status = http.StatusUnauthorized
		message = "invalid token"
	case errors.Is(err, model.ErrExpired):
		status = http.StatusUnauthorized
		message = "token expired"
	case errors.Is(err, model.ErrRevoked):
		status = http.StatusUnauthorized
		message = "token revoked"
	case errors.Is(err, model.ErrUnknownSubject), errors.Is(err, model.ErrUserNotFound):
		status = http.StatusUnauthorized
		message = "unknown account"
	case errors.Is(err, model.ErrForbidden):
		status = http.StatusForbidden
		message = "admin access required"
	case errors.Is(err, model.ErrEmailTaken):
		status = http.StatusConflict
		message = "email already registered"
	case errors.Is(err, model.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
		message = "service temporarily unavailable"
	default:
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	writeJSON(w, status, model.APIResponse{Success: false, Message: message})
}
