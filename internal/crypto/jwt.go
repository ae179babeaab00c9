package crypto

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer   = "herald"
	audience = "herald-api"
)

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

// Purpose restricts which endpoint accepts a token.
type Purpose string

const (
	PurposeSession Purpose = "session"
	PurposeReset   Purpose = "reset"
)

// Claims represents the JWT claims for Herald tokens. The user id always
// travels in the standard "sub" claim.
type Claims struct {
	jwt.RegisteredClaims
	Purpose Purpose `json:"purpose"`
}

// UserID parses the subject claim.
func (c Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrTokenInvalid
	}
	return id, nil
}

// TokenService issues and verifies signed, purpose-scoped tokens. The
// secret is fixed at construction.
type TokenService struct {
	secret     []byte
	sessionTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
}

// NewTokenService creates a TokenService signing with secret.
func NewTokenService(secret string, sessionTTL, resetTTL time.Duration) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		resetTTL:   resetTTL,
		now:        time.Now,
	}
}

// IssueSession issues a session token for userID.
func (s *TokenService) IssueSession(userID int64) (string, Claims, error) {
	return s.Issue(userID, PurposeSession, s.sessionTTL)
}

// IssueReset issues a short-lived, single-use reset token for userID.
func (s *TokenService) IssueReset(userID int64) (string, Claims, error) {
	return s.Issue(userID, PurposeReset, s.resetTTL)
}

// Issue creates a signed JWT for subject with the given purpose and lifetime.
func (s *TokenService) Issue(subject int64, purpose Purpose, ttl time.Duration) (string, Claims, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(subject, 10),
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		Purpose: purpose,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", Claims{}, err
	}
	return signed, claims, nil
}

// Verify checks the signature, issuer, audience and expiry of tokenString.
// It returns ErrTokenExpired for an otherwise valid token past its expiry and
// ErrTokenInvalid for everything else. The purpose is left to the caller.
func (s *TokenService) Verify(tokenString string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return s.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if !token.Valid || claims.ID == "" {
		return Claims{}, ErrTokenInvalid
	}
	if _, err := claims.UserID(); err != nil {
		return Claims{}, err
	}

	return claims, nil
}
