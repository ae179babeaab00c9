package handler

import (
	"net/http"
	"strconv"

	"github.com/herald/herald-go/internal/middleware"
	"github.com/herald/herald-go/internal/model"
	"github.com/herald/herald-go/internal/service"
)

// AuthHandler handles HTTP requests for accounts and sessions.
type AuthHandler struct {
	service *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{service: svc}
}

// HandleRegister handles POST /api/v1/register requests.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.service.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusCreated, "user registered", user)
}

// HandleLogin handles POST /api/v1/login requests.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "login successful", resp)
}

// HandleWhoami handles GET /api/v1/whoami requests.
func (h *AuthHandler) HandleWhoami(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, service.ErrUnauthorized)
		return
	}

	writeOK(w, http.StatusOK, "authenticated user", user)
}

// HandleListUsers handles GET /api/v1/users requests.
func (h *AuthHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := queryInt(q.Get("page"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := h.service.ListUsers(r.Context(), model.ListUsersRequest{
		Page:   page,
		Limit:  limit,
		Search: q.Get("search"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "users", resp)
}

// queryInt parses an optional positive integer query value. Empty means zero.
func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, service.ErrInvalidPage
	}
	return n, nil
}
