package handler

import (
	"context"
	"net/http"

	"go-auth-service/internal/model"
)

type userLister interface {
	List(ctx context.Context) ([]model.PublicUser, error)
}

// UserHandler backs the admin-gated surface. It exists mainly so the
// capability gate has something real to protect.
type UserHandler struct {
	users userLister
}

func NewUserHandler(users userLister) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.APIResponse{Success: true, Data: map[string]any{"users": users}})
}
