package services

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/yoockh/yoscribe/internal/utils"
)

const (
	adminSubject = "admin"
	tokenIssuer  = "yoscribe"
)

// AuthService checks shared-secret credentials and issues the short-lived
// admin session token used in place of the admin password after login.
type AuthService interface {
	AllowedRequester(credential string) bool
	AdminMatches(credential string) bool
	IssueAdminToken() (token string, expiresAt time.Time, err error)
	VerifyAdminToken(token string) error
}

type authService struct {
	allowed []string
	admin   string
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
}

// NewAuthService generates a random signing secret when none is given;
// tokens then stop validating on restart.
func NewAuthService(allowed []string, admin string, secret []byte, ttl time.Duration) (AuthService, error) {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &authService{
		allowed: append([]string(nil), allowed...),
		admin:   admin,
		secret:  secret,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

func (s *authService) AllowedRequester(credential string) bool {
	for _, a := range s.allowed {
		if utils.CheckPassword(a, credential) {
			return true
		}
	}
	return false
}

func (s *authService) AdminMatches(credential string) bool {
	return utils.CheckPassword(s.admin, credential)
}

func (s *authService) IssueAdminToken() (string, time.Time, error) {
	const op = "AuthService.IssueAdminToken"

	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   adminSubject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, utils.E(utils.CodeInternal, op, "failed to sign admin token", err)
	}
	return tok, exp, nil
}

func (s *authService) VerifyAdminToken(raw string) error {
	const op = "AuthService.VerifyAdminToken"

	if raw == "" {
		return utils.E(utils.CodeUnauthorized, op, "Unauthorized", nil)
	}
	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || tok == nil || !tok.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return utils.E(utils.CodeUnauthorized, op, "Unauthorized", err)
	}
	if claims.Subject != adminSubject {
		return utils.E(utils.CodeUnauthorized, op, "Unauthorized", nil)
	}
	return nil
}
