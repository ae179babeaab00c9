package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/text/cases"

	"github.com/herald/herald-go/internal/crypto"
	"github.com/herald/herald-go/internal/metrics"
	"github.com/herald/herald-go/internal/model"
	"github.com/herald/herald-go/internal/repository"
)

const (
	defaultRole  = "user"
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

// Notifier records a notification for a user and pushes it to their live
// connections.
type Notifier interface {
	CreateAndDispatch(ctx context.Context, userID int64, title, body string) (model.Notification, error)
}

// AuthService handles authentication business logic.
type AuthService struct {
	repo     *repository.UserRepository
	tokens   *crypto.TokenService
	hasher   *crypto.Hasher
	profiles *expirable.LRU[int64, model.UserResponse]
	notifier Notifier
	metrics  *metrics.Metrics
}

// NewAuthService creates a new AuthService. profiles caches the users
// resolved from session tokens.
func NewAuthService(
	repo *repository.UserRepository,
	tokens *crypto.TokenService,
	hasher *crypto.Hasher,
	profiles *expirable.LRU[int64, model.UserResponse],
	notifier Notifier,
	m *metrics.Metrics,
) *AuthService {
	return &AuthService{
		repo:     repo,
		tokens:   tokens,
		hasher:   hasher,
		profiles: profiles,
		notifier: notifier,
		metrics:  m,
	}
}

// Register creates a new user account and sends them a welcome notification.
func (s *AuthService) Register(ctx context.Context, req model.CreateUserRequest) (model.UserResponse, error) {
	name := strings.TrimSpace(req.Name)
	email := normalizeEmail(req.Email)
	if name == "" {
		return model.UserResponse{}, ErrNameRequired
	}
	if email == "" {
		return model.UserResponse{}, ErrEmailRequired
	}
	if req.Password == "" {
		return model.UserResponse{}, ErrPasswordRequired
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = defaultRole
	}

	hash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return model.UserResponse{}, err
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return model.UserResponse{}, ErrEmailTaken
		}
		return model.UserResponse{}, err
	}

	if _, err := s.notifier.CreateAndDispatch(ctx, user.ID, "Welcome!", "Thank you for registering with us."); err != nil {
		slog.Error("welcome notification failed", "user_id", user.ID, "error", err)
	}

	return user.Response(), nil
}

// Login authenticates a user and returns a session token.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (model.AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return model.AuthResponse{}, ErrEmailRequired
	}
	if req.Password == "" {
		return model.AuthResponse{}, ErrPasswordRequired
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			if err := s.hasher.VerifyAbsent(ctx, req.Password); err != nil {
				return model.AuthResponse{}, err
			}
			s.metrics.AuthFailures.WithLabelValues("credentials").Inc()
			return model.AuthResponse{}, ErrInvalidCredentials
		}
		return model.AuthResponse{}, err
	}

	match, err := s.hasher.Verify(ctx, req.Password, user.PasswordHash)
	if err != nil {
		return model.AuthResponse{}, err
	}
	if !match {
		s.metrics.AuthFailures.WithLabelValues("credentials").Inc()
		return model.AuthResponse{}, ErrInvalidCredentials
	}

	token, _, err := s.tokens.IssueSession(user.ID)
	if err != nil {
		return model.AuthResponse{}, err
	}

	return model.AuthResponse{
		Token: token,
		User:  user.Response(),
	}, nil
}

// Authenticate resolves a session token to the user it was issued to. Reset
// tokens and tokens for users that no longer exist are rejected.
func (s *AuthService) Authenticate(ctx context.Context, token string) (model.UserResponse, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		s.countFailure(err)
		return model.UserResponse{}, err
	}
	if claims.Purpose != crypto.PurposeSession {
		s.metrics.AuthFailures.WithLabelValues("purpose").Inc()
		return model.UserResponse{}, ErrTokenInvalid
	}

	userID, err := claims.UserID()
	if err != nil {
		return model.UserResponse{}, err
	}

	if user, ok := s.profiles.Get(userID); ok {
		return user, nil
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.metrics.AuthFailures.WithLabelValues("unknown_user").Inc()
			return model.UserResponse{}, ErrUnauthorized
		}
		return model.UserResponse{}, err
	}

	s.profiles.Add(userID, user)
	return user, nil
}

func (s *AuthService) countFailure(err error) {
	reason := "invalid"
	if errors.Is(err, crypto.ErrTokenExpired) {
		reason = "expired"
	}
	s.metrics.AuthFailures.WithLabelValues(reason).Inc()
}

// GetUser retrieves a user by ID and returns safe user data.
func (s *AuthService) GetUser(ctx context.Context, userID int64) (model.UserResponse, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return model.UserResponse{}, err
	}
	return user.Response(), nil
}

// ListUsers returns one page of users whose name contains req.Search.
// Zero page and limit fall back to defaults and limit is capped.
func (s *AuthService) ListUsers(ctx context.Context, req model.ListUsersRequest) (model.UserPage, error) {
	page, limit := req.Page, req.Limit
	if page == 0 {
		page = defaultPage
	}
	if limit == 0 {
		limit = defaultLimit
	}
	if page < 0 || limit < 0 {
		return model.UserPage{}, ErrInvalidPage
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	search := strings.TrimSpace(req.Search)

	count, err := s.repo.Count(ctx, search)
	if err != nil {
		return model.UserPage{}, err
	}

	users, err := s.repo.List(ctx, (page-1)*limit, limit, search)
	if err != nil {
		return model.UserPage{}, err
	}

	resp := model.UserPage{Count: count, Users: make([]model.UserResponse, 0, len(users))}
	for i := range users {
		resp.Users = append(resp.Users, users[i].Response())
	}
	return resp, nil
}

// normalizeEmail trims and case-folds email so lookups are case-insensitive.
func normalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}
