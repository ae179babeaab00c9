package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herald/herald-go/internal/config"
	"github.com/herald/herald-go/internal/crypto"
	"github.com/herald/herald-go/internal/model"
)

func newTestAuthService() *AuthService {
	return NewAuthService(nil, nil, nil, nil, nil, nil)
}

func TestRegister_EmptyName(t *testing.T) {
	svc := newTestAuthService()

	_, err := svc.Register(context.Background(), model.CreateUserRequest{
		Name:     "  ",
		Email:    "test@example.com",
		Password: "password123",
	})

	if err != ErrNameRequired {
		t.Errorf("expected ErrNameRequired, got %v", err)
	}
}

func TestRegister_EmptyEmail(t *testing.T) {
	svc := newTestAuthService()

	_, err := svc.Register(context.Background(), model.CreateUserRequest{
		Name:     "Alice",
		Email:    "",
		Password: "password123",
	})

	if err != ErrEmailRequired {
		t.Errorf("expected ErrEmailRequired, got %v", err)
	}
}

func TestRegister_EmptyPassword(t *testing.T) {
	svc := newTestAuthService()

	_, err := svc.Register(context.Background(), model.CreateUserRequest{
		Name:     "Alice",
		Email:    "test@example.com",
		Password: "",
	})

	if err != ErrPasswordRequired {
		t.Errorf("expected ErrPasswordRequired, got %v", err)
	}
}

func TestListUsers_NegativePage(t *testing.T) {
	svc := newTestAuthService()

	_, err := svc.ListUsers(context.Background(), model.ListUsersRequest{Page: -1})

	if err != ErrInvalidPage {
		t.Errorf("expected ErrInvalidPage, got %v", err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "a@x.com", want: "a@x.com"},
		{in: "  A@X.Com ", want: "a@x.com"},
		{in: "STRASSE@x.com", want: "strasse@x.com"},
	}

	for _, tt := range tests {
		if got := normalizeEmail(tt.in); got != tt.want {
			t.Errorf("normalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRegisterLoginWhoami(t *testing.T) {
	env := newTestEnv(t, config.PushSingle)
	ctx := context.Background()

	alice := env.register(t, "Alice", "a@x.com", "pw123")
	assert.Equal(t, "Alice", alice.Name)
	assert.Equal(t, "a@x.com", alice.Email)
	assert.Equal(t, defaultRole, alice.Role)

	resp, err := env.auth.Login(ctx, model.LoginRequest{Email: "a@x.com", Password: "pw123"})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, resp.User.ID)

	claims, err := env.tokens.Verify(resp.Token)
	require.NoError(t, err)
	subject, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, alice.ID, subject)

	me, err := env.auth.Authenticate(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, me.ID)
	assert.Equal(t, "Alice", me.Name)
	assert.Equal(t, "a@x.com", me.Email)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t, config.PushSingle)
	env.register(t, "Alice", "a@x.com", "pw123")

	for _, email := range []string{"a@x.com", " A@X.COM "} {
		_, err := env.auth.Register(context.Background(), model.CreateUserRequest{Name: "Other", Email: email, Password: "pw"})
		assert.ErrorIs(t, err, ErrEmailTaken, email)
	}
}

func TestRegisterSendsWelcomeNotification(t *testing.T) {
	env := newTestEnv(t, config.PushSingle)
	alice := env.register(t, "Alice", "a@x.com", "pw123")

	list, err := env.notifications.List(context.Background(), alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Welcome!", list[0].Title)
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t, config.PushSingle)
	env.register(t, "Alice", "a@x.com", "pw123")

	tests := []struct {
		name string
		req  model.LoginRequest
		want error
	}{
		{name: "wrong password", req: model.LoginRequest{Email: "a@x.com", Password: "pw124"}, want: ErrInvalidCredentials},
		{name: "unknown email", req: model.LoginRequest{Email: "b@x.com", Password: "pw123"}, want: ErrInvalidCredentials},
		{name: "missing email", req: model.LoginRequest{Password: "pw123"}, want: ErrEmailRequired},
		{name: "missing password", req: model.LoginRequest{Email: "a@x.com"}, want: ErrPasswordRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.auth.Login(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.AuthFailures.WithLabelValues("credentials")))
}

func TestLoginIsCaseInsensitive(t *testing.T) {
	env := newTestEnv(t, config.PushSingle)
	env.register(t, "Alice", "Alice@Example.com", "pw123")

	_, err := env.auth.Login(context.Background(), model.LoginRequest{Email: "alice@example.COM", Password: "pw123"})
	assert.NoError(t, err)
}

func TestAuthenticateRejections(t *testing.T) {
	env := newTestEnv(t, config.PushSingle)
	alice := env.register(t, "Alice", "a@x.com", "pw123")

	reset, _, err := env.tokens.IssueReset(alice.ID)
	require.NoError(t, err)
	expired, _, err := env.tokens.Issue(alice.ID, crypto.PurposeSession, -time.Minute)
	require.NoError(t, err)
	ghost, _, err := env.tokens.IssueSession(9999)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{name: "garbage", token: "not-a-token", want: ErrTokenInvalid},
		{name: "reset purpose", token: reset, want: ErrTokenInvalid},
		{name: "expired", token: expired, want: ErrTokenExpired},
		{name: "deleted user", token: ghost, want: ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.auth.Authenticate(context.Background(), tt.token)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func TestAuthenticateCachesProfile(t *testing.T) {
	env := newTestEnv(t, config.PushSingle)
	alice := env.register(t, "Alice", "a@x.com", "pw123")

	token, _, err := env.tokens.IssueSession(alice.ID)
	require.NoError(t, err)

	_, err = env.auth.Authenticate(context.Background(), token)
	require.NoError(t, err)

	cached, ok := env.auth.profiles.Get(alice.ID)
	require.True(t, ok)
	assert.Equal(t, alice.Email, cached.Email)
}

func TestListUsers(t *testing.T) {
	env := newTestEnv(t, config.PushSingle)
	env.register(t, "Alice", "a@x.com", "pw")
	env.register(t, "Bob", "b@x.com", "pw")
	env.register(t, "Alina", "c@x.com", "pw")
	ctx := context.Background()

	page, err := env.auth.ListUsers(ctx, model.ListUsersRequest{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Count)
	require.Len(t, page.Users, 2)
	assert.Equal(t, "Alice", page.Users[0].Name)

	page, err = env.auth.ListUsers(ctx, model.ListUsersRequest{Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "Alina", page.Users[0].Name)

	page, err = env.auth.ListUsers(ctx, model.ListUsersRequest{Search: "Ali"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count)
	assert.Len(t, page.Users, 2)

	page, err = env.auth.ListUsers(ctx, model.ListUsersRequest{Page: 5})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Count)
	assert.NotNil(t, page.Users)
	assert.Empty(t, page.Users)
}
