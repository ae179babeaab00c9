package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/herald/herald-go/internal/crypto"
	"github.com/herald/herald-go/internal/mailer"
	"github.com/herald/herald-go/internal/metrics"
	"github.com/herald/herald-go/internal/repository"
)

// ResetRequestedMessage is returned for every reset request, whether or not
// the address belongs to an account.
const ResetRequestedMessage = "If the email is registered, a password reset link has been sent."

const (
	resetSubject = "Change Password"
	mailTimeout  = 30 * time.Second
)

// Ledger remembers redeemed single-use tokens. Consume fails with
// repository.ErrTokenConsumed when jti was already redeemed.
type Ledger interface {
	Consume(ctx context.Context, jti string, expiresAt time.Time) error
}

// ResetService runs the email based password reset flow.
type ResetService struct {
	users    *repository.UserRepository
	tokens   *crypto.TokenService
	hasher   *crypto.Hasher
	ledger   Ledger
	mail     mailer.Mailer
	notifier Notifier
	metrics  *metrics.Metrics
	urlBase  string

	inflight sync.WaitGroup
}

// NewResetService creates a ResetService. Reset links point at urlBase with
// the token in the "token" query parameter.
func NewResetService(
	users *repository.UserRepository,
	tokens *crypto.TokenService,
	hasher *crypto.Hasher,
	ledger Ledger,
	mail mailer.Mailer,
	notifier Notifier,
	m *metrics.Metrics,
	urlBase string,
) *ResetService {
	return &ResetService{
		users:    users,
		tokens:   tokens,
		hasher:   hasher,
		ledger:   ledger,
		mail:     mail,
		notifier: notifier,
		metrics:  m,
		urlBase:  urlBase,
	}
}

// RequestReset emails a reset link to the account registered under email.
// Unknown addresses succeed silently and the mail is sent in the background,
// so callers cannot tell the two cases apart.
func (s *ResetService) RequestReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			slog.Info("password reset requested for unknown email")
			return nil
		}
		return err
	}

	token, claims, err := s.tokens.IssueReset(user.ID)
	if err != nil {
		return err
	}

	link, err := s.resetURL(token)
	if err != nil {
		return err
	}

	body, err := mailer.RenderResetEmail(mailer.ResetEmail{
		Name:     user.Name,
		ResetURL: link,
		TTL:      claims.ExpiresAt.Sub(claims.IssuedAt.Time),
	})
	if err != nil {
		return err
	}

	mailCtx := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx, cancel := context.WithTimeout(mailCtx, mailTimeout)
		defer cancel()

		if err := s.mail.Send(ctx, user.Email, resetSubject, body); err != nil {
			s.metrics.ResetMailFailures.Inc()
			slog.Error("send reset email", "user_id", user.ID, "error", err)
			return
		}
		slog.Info("reset email sent", "user_id", user.ID)
	}()

	return nil
}

// CompleteReset sets a new password for the user named by a reset token.
// Each token works once: replaying it returns ErrTokenInvalid.
func (s *ResetService) CompleteReset(ctx context.Context, token, newPassword, confirmation string) error {
	if newPassword == "" || confirmation == "" {
		return ErrPasswordRequired
	}
	if newPassword != confirmation {
		return ErrPasswordMismatch
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return err
	}
	if claims.Purpose != crypto.PurposeReset {
		return ErrTokenInvalid
	}
	userID, err := claims.UserID()
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}

	if err := s.ledger.Consume(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		if errors.Is(err, repository.ErrTokenConsumed) {
			return ErrTokenInvalid
		}
		return err
	}

	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	if _, err := s.notifier.CreateAndDispatch(ctx, userID, "Password Changed", "Your password was changed successfully."); err != nil {
		slog.Error("password change notification failed", "user_id", userID, "error", err)
	}

	return nil
}

// Wait blocks until every reset email started so far has been handed off or
// has failed.
func (s *ResetService) Wait() {
	s.inflight.Wait()
}

func (s *ResetService) resetURL(token string) (string, error) {
	u, err := url.Parse(s.urlBase)
	if err != nil {
		return "", fmt.Errorf("parse reset url base: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
