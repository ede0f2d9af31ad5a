package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

/* ============================== JWT Claims ============================== */

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// Claims represents the JWT payload we issue and expect.
type Claims struct {
	Sub  string `json:"sub"`  // user ID
	Role string `json:"role"` // user role: "client" | "lawyer"
	Kind string `json:"typ"`  // access | refresh
	jwt.RegisteredClaims
}

// TokenPair is returned by /auth/token.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

var errTokenKind = errors.New("unexpected token type")

/* ============================== JWT Helpers ============================= */

// Tokens signs and verifies HS256 tokens with one secret.
type Tokens struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokens(secret string, accessTTL, refreshTTL time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

// Issue signs a fresh access/refresh pair for the given user and role.
func (t *Tokens) Issue(userID, role string) (TokenPair, error) {
	access, err := t.sign(userID, role, kindAccess, t.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := t.sign(userID, role, kindRefresh, t.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

// IssueAccess signs an access token only.
func (t *Tokens) IssueAccess(userID, role string) (string, error) {
	return t.sign(userID, role, kindAccess, t.accessTTL)
}

func (t *Tokens) sign(userID, role, kind string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := &Claims{
		Sub:  userID,
		Role: role,
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies signature, expiry and token type.
func (t *Tokens) Parse(raw, kind string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Kind != kind {
		return nil, errTokenKind
	}
	return claims, nil
}
