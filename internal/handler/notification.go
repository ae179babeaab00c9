package handler

import (
	"net/http"

	"github.com/herald/herald-go/internal/middleware"
	"github.com/herald/herald-go/internal/service"
)

// NotificationHandler serves a user's stored notifications.
type NotificationHandler struct {
	service *service.NotificationService
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(svc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// HandleList handles GET /api/v1/notifications requests.
func (h *NotificationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, service.ErrUnauthorized)
		return
	}

	list, err := h.service.List(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "notifications", list)
}
