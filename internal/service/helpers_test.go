package service

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/stretchr/testify/require"

	"github.com/herald/herald-go/internal/crypto"
	"github.com/herald/herald-go/internal/metrics"
	"github.com/herald/herald-go/internal/model"
	"github.com/herald/herald-go/internal/repository"
)

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (m *fakeMailer) messages() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

type published struct {
	userID  int64
	event   string
	payload any
}

type fakePublisher struct {
	mu          sync.Mutex
	calls       []published
	connections int
}

func (p *fakePublisher) PublishToUser(userID int64, event string, payload any) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, published{userID: userID, event: event, payload: payload})
	return p.connections
}

func (p *fakePublisher) published() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.calls...)
}

type testEnv struct {
	auth          *AuthService
	notifications *NotificationService
	reset         *ResetService
	tokens        *crypto.TokenService
	mail          *fakeMailer
	publisher     *fakePublisher
	metrics       *metrics.Metrics
}

func newTestEnv(t *testing.T, policy string) *testEnv {
	t.Helper()

	db, err := repository.NewDB(repository.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.Migrate(context.Background(), db, repository.DriverSQLite))

	users := repository.NewUserRepository(db)
	tokens := crypto.NewTokenService("test-secret", time.Hour, 15*time.Minute)
	hasher := crypto.NewHasher(crypto.HashParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}, 2)
	profiles := expirable.NewLRU[int64, model.UserResponse](16, nil, time.Minute)
	m := metrics.New()

	env := &testEnv{
		tokens:    tokens,
		mail:      &fakeMailer{},
		publisher: &fakePublisher{},
		metrics:   m,
	}
	env.notifications = NewNotificationService(repository.NewNotificationRepository(db), env.publisher, policy, m)
	env.auth = NewAuthService(users, tokens, hasher, profiles, env.notifications, m)
	env.reset = NewResetService(users, tokens, hasher, repository.NewConsumedTokenRepository(db),
		env.mail, env.notifications, m, "http://localhost:3000/reset-password")
	return env
}

func (e *testEnv) register(t *testing.T, name, email, password string) model.UserResponse {
	t.Helper()
	user, err := e.auth.Register(context.Background(), model.CreateUserRequest{Name: name, Email: email, Password: password})
	require.NoError(t, err)
	return user
}

var tokenPattern = regexp.MustCompile(`token=([A-Za-z0-9_\-.]+)`)

// resetTokenFrom pulls the reset token out of the link in a reset email.
func resetTokenFrom(t *testing.T, mail sentMail) string {
	t.Helper()
	match := tokenPattern.FindStringSubmatch(mail.body)
	require.Len(t, match, 2, "no reset link in mail body")
	return match[1]
}
