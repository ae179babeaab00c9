package handler

import (
	"net/http"

	"github.com/herald/herald-go/internal/model"
	"github.com/herald/herald-go/internal/service"
)

// ResetHandler handles the password reset endpoints.
type ResetHandler struct {
	service *service.ResetService
}

// NewResetHandler creates a new ResetHandler.
func NewResetHandler(svc *service.ResetService) *ResetHandler {
	return &ResetHandler{service: svc}
}

// HandleCheckEmail handles POST /api/v1/check-email requests. The response
// is the same whether or not the address is registered.
func (h *ResetHandler) HandleCheckEmail(w http.ResponseWriter, r *http.Request) {
	var req model.CheckEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.service.RequestReset(r.Context(), req.Email); err != nil {
		writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, service.ResetRequestedMessage, nil)
}

// HandleChangePassword handles POST /api/v1/changePassword?token= requests.
func (h *ResetHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req model.ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	token := r.URL.Query().Get("token")
	if err := h.service.CompleteReset(r.Context(), token, req.NewPassword, req.PasswordConfirmation); err != nil {
		writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "password changed", nil)
}
