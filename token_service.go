package warden

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// Token types distinguish the two cookies; only an access token opens a
// session, a refresh token presented in its place is rejected.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// PrincipalClaims is the signed claim set carried by both session cookies.
// It holds the principal's public identity fields plus an absolute expiry,
// never the credential hash.
type PrincipalClaims struct {
	jwt.RegisteredClaims
	Email    string `json:"email,omitempty"`
	Kind     string `json:"kind,omitempty"`
	TenantID string `json:"tid,omitempty"`
	Type     string `json:"typ,omitempty"`
}

// TokenService mints and validates the signed session tokens. The signing key
// is process wide and read-only after construction.
type TokenService struct {
	signingKey []byte
	issuer     string
	logger     Logger
	now        func() time.Time
}

func NewTokenService(signingKey []byte, issuer string) *TokenService {
	return &TokenService{
		signingKey: signingKey,
		issuer:     issuer,
		logger:     defLogger{},
		now:        time.Now,
	}
}

func (ts *TokenService) WithLogger(logger Logger) *TokenService {
	if logger != nil {
		ts.logger = logger
	}
	return ts
}

// WithClock injects a custom clock, useful for expiry boundary tests.
func (ts *TokenService) WithClock(clock func() time.Time) *TokenService {
	if clock != nil {
		ts.now = clock
	}
	return ts
}

// IssuePair mints the access and refresh tokens for an authenticated
// principal. tenantID is empty for admins and the owning tenant's id for end
// users; it rides along so validation can pin a token to its partition.
func (ts *TokenService) IssuePair(p Principal, tenantID string, accessTTL, refreshTTL time.Duration) (TokenPair, error) {
	now := ts.now()

	access, err := ts.sign(&PrincipalClaims{
		RegisteredClaims: ts.registered(p, now, accessTTL),
		Email:            p.PrincipalEmail(),
		Kind:             string(p.PrincipalKind()),
		TenantID:         tenantID,
		Type:             TokenTypeAccess,
	})
	if err != nil {
		return TokenPair{}, err
	}

	// The refresh token carries the bare minimum to re-resolve the principal.
	refresh, err := ts.sign(&PrincipalClaims{
		RegisteredClaims: ts.registered(p, now, refreshTTL),
		Kind:             string(p.PrincipalKind()),
		TenantID:         tenantID,
		Type:             TokenTypeRefresh,
	})
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		Access:     access,
		Refresh:    refresh,
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
	}, nil
}

// Validate checks signature and expiry. Callers must still re-resolve the
// principal and re-check verified/locked state: a token minted before a
// lockout has to stop working the moment the account locks.
func (ts *TokenService) Validate(raw string) (*PrincipalClaims, error) {
	claims := &PrincipalClaims{}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		options = append(options, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return ts.signingKey, nil
	}, options...)

	if err != nil || !token.Valid {
		ts.logger.Debug("token validation failed", "error", err)
		return nil, ErrInvalidAccessToken
	}

	return claims, nil
}

func (ts *TokenService) registered(p Principal, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    ts.issuer,
		Subject:   p.PrincipalID(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (ts *TokenService) sign(claims *PrincipalClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session token")
	}

	return signed, nil
}
