package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is stamped on every bridge token and required when parsing.
const Issuer = "chatsync"

// ErrWrongSubject is returned when a valid token was issued for another account.
var ErrWrongSubject = errors.New("token subject does not match account")

// TokenService issues and checks the tokens local bridge clients present.
// A token's subject is the operator account it grants access to.
type TokenService struct {
	secret    []byte
	expiresIn time.Duration
}

func NewTokenService(secret string, expiresIn time.Duration) *TokenService {
	return &TokenService{
		secret:    []byte(secret),
		expiresIn: expiresIn,
	}
}

// CreateForAccount issues a token for accountID with the default TTL.
func (t *TokenService) CreateForAccount(accountID string) (string, error) {
	return t.CreateWithTTL(accountID, t.expiresIn)
}

// CreateWithTTL issues a token for accountID valid for ttl.
func (t *TokenService) CreateWithTTL(accountID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse validates signature, issuer and expiry.
func (t *TokenService) Parse(tokenStr string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Authorize accepts tokenStr only if it is valid and was issued for accountID.
func (t *TokenService) Authorize(tokenStr, accountID string) error {
	claims, err := t.Parse(tokenStr)
	if err != nil {
		return err
	}
	if claims.Subject == "" || claims.Subject != accountID {
		return ErrWrongSubject
	}
	return nil
}
