package remote

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"poscore/pkg/contracts/domain"
)

const tokenTTL = 5 * time.Minute

// ScopeSource yields the tenant scope at call time.
type ScopeSource interface {
	Scope() domain.TenantScope
}

// MachineIdentity yields the machine identifier.
type MachineIdentity interface {
	GetMachineID() string
}

// DeviceClaims identify the terminal to the cloud.
type DeviceClaims struct {
	BusinessID string `json:"bid,omitempty"`
	BranchID   string `json:"brid,omitempty"`
	jwt.RegisteredClaims
}

// TokenSource signs device tokens. A source with no secret signs nothing.
type TokenSource struct {
	secret   []byte
	identity MachineIdentity
	scope    ScopeSource
	now      func() time.Time
}

// NewTokenSource creates a token source. scope may be nil before a tenant
// exists.
func NewTokenSource(secret string, identity MachineIdentity, scope ScopeSource) *TokenSource {
	return &TokenSource{secret: []byte(secret), identity: identity, scope: scope, now: time.Now}
}

// Token returns a signed bearer token, or "" when no secret is configured.
func (s *TokenSource) Token() (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", nil
	}

	now := s.now()
	claims := DeviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.identity.GetMachineID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	if s.scope != nil {
		scope := s.scope.Scope()
		if scope.BusinessID != nil {
			claims.BusinessID = scope.BusinessID.String()
		}
		if scope.BranchID != nil {
			claims.BranchID = scope.BranchID.String()
		}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign device token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a device token signed with secret.
func ParseToken(raw, secret string) (*DeviceClaims, error) {
	claims := &DeviceClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return nil, fmt.Errorf("parse device token: %w", err)
	}
	return claims, nil
}
