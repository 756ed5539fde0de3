package warden

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	defAdminAccessTTL  = 10 * time.Minute
	defAdminRefreshTTL = time.Hour
)

// Authenticator runs the credential checks and session resolution for both
// principal populations. Admin token lifetimes are fixed at construction; end
// users inherit theirs from the owning tenant.
type Authenticator struct {
	repo            RepositoryManager
	tokens          *TokenService
	logger          Logger
	adminAccessTTL  time.Duration
	adminRefreshTTL time.Duration
}

func NewAuthenticator(repo RepositoryManager, tokens *TokenService) *Authenticator {
	return &Authenticator{
		repo:            repo,
		tokens:          tokens,
		logger:          defLogger{},
		adminAccessTTL:  defAdminAccessTTL,
		adminRefreshTTL: defAdminRefreshTTL,
	}
}

func (a *Authenticator) WithLogger(logger Logger) *Authenticator {
	if logger != nil {
		a.logger = logger
	}
	return a
}

func (a *Authenticator) WithAdminTTLs(access, refresh time.Duration) *Authenticator {
	if access > 0 {
		a.adminAccessTTL = access
	}
	if refresh > 0 {
		a.adminRefreshTTL = refresh
	}
	return a
}

// LoginAdmin authenticates an admin with the client-side digest of their
// password. Unknown emails answer invalid_credentials, same as a wrong
// password, so the endpoint does not leak which emails are registered.
func (a *Authenticator) LoginAdmin(ctx context.Context, email, digest string) (*Admin, TokenPair, error) {
	admin, err := a.repo.Admins().GetByEmail(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, internalError(a.logger, "admin lookup failed during login", err, "email", email)
	}

	pair, err := a.login(ctx, admin, a.adminLockout(), digest, "", a.adminAccessTTL, a.adminRefreshTTL)
	if err != nil {
		return nil, TokenPair{}, err
	}

	return admin, pair, nil
}

// LoginUser authenticates a tenant end user under the tenant's own lockout
// threshold and token lifetimes.
func (a *Authenticator) LoginUser(ctx context.Context, tenant *Tenant, email, digest string) (*AppUser, TokenPair, error) {
	users := a.repo.UsersOf(tenant)

	user, err := users.GetByEmail(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, internalError(a.logger, "user lookup failed during login", err, "email", email)
	}

	pair, err := a.login(ctx, user, a.userLockout(tenant), digest,
		tenant.ID.String(), tenant.AccessTTL(), tenant.RefreshTTL())
	if err != nil {
		return nil, TokenPair{}, err
	}

	return user, pair, nil
}

// login is the shared credential check. Order matters: the lock is checked
// before anything else so a locked account always answers account_locked, and
// before the digest comparison so credential correctness never matters for a
// locked account.
func (a *Authenticator) login(ctx context.Context, p Principal, lockout *Lockout, digest, tenantID string, accessTTL, refreshTTL time.Duration) (TokenPair, error) {
	if err := lockout.Ensure(p.Attempts()); err != nil {
		return TokenPair{}, err
	}

	if !p.Verified() {
		return TokenPair{}, ErrAccountNotVerified
	}

	id, err := uuid.Parse(p.PrincipalID())
	if err != nil {
		return TokenPair{}, internalError(a.logger, "principal carries a malformed id", err)
	}

	if Hash(digest) != p.CredentialHash() {
		if err := lockout.RecordFailure(ctx, id); err != nil {
			return TokenPair{}, err
		}
		return TokenPair{}, ErrInvalidCredentials
	}

	if err := lockout.RecordSuccess(ctx, id); err != nil {
		return TokenPair{}, err
	}

	pair, err := a.tokens.IssuePair(p, tenantID, accessTTL, refreshTTL)
	if err != nil {
		return TokenPair{}, internalError(a.logger, "failed to issue session tokens", err, "principal", id)
	}

	return pair, nil
}

// CurrentAdmin resolves a session token back to a live admin. The stored
// account is re-checked on every call: a deleted, unverified, or locked admin
// is rejected even while their token is cryptographically valid.
func (a *Authenticator) CurrentAdmin(ctx context.Context, raw string) (*Admin, error) {
	claims, err := a.tokens.Validate(raw)
	if err != nil {
		return nil, err
	}

	if claims.Kind != string(KindAdmin) || claims.Type != TokenTypeAccess {
		return nil, ErrInvalidAccessToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidAccessToken
	}

	admin, err := a.repo.Admins().GetByID(ctx, id)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrUnauthorizedAccess
		}
		return nil, internalError(a.logger, "admin lookup failed during session check", err, "admin_id", id)
	}

	if err := a.ensureLive(admin, a.adminLockout()); err != nil {
		return nil, err
	}

	return admin, nil
}

// CurrentUser resolves a session token back to a live end user of the given
// tenant. Tokens minted for another tenant are rejected outright.
func (a *Authenticator) CurrentUser(ctx context.Context, tenant *Tenant, raw string) (*AppUser, error) {
	claims, err := a.tokens.Validate(raw)
	if err != nil {
		return nil, err
	}

	if claims.Kind != string(KindUser) || claims.Type != TokenTypeAccess ||
		claims.TenantID != tenant.ID.String() {
		return nil, ErrInvalidAccessToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidAccessToken
	}

	user, err := a.repo.UsersOf(tenant).GetByID(ctx, id)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrUnauthorizedAccess
		}
		return nil, internalError(a.logger, "user lookup failed during session check", err, "user_id", id)
	}

	if err := a.ensureLive(user, a.userLockout(tenant)); err != nil {
		return nil, err
	}

	return user, nil
}

// ChangeAdminPassword re-authenticates with the old digest before storing the
// new credential. A wrong old digest counts as a failed login attempt.
func (a *Authenticator) ChangeAdminPassword(ctx context.Context, admin *Admin, oldDigest, newDigest string) error {
	return a.changePassword(ctx, admin, a.adminLockout(), a.repo.Admins(), oldDigest, newDigest)
}

func (a *Authenticator) ChangeUserPassword(ctx context.Context, tenant *Tenant, user *AppUser, oldDigest, newDigest string) error {
	return a.changePassword(ctx, user, a.userLockout(tenant), a.repo.UsersOf(tenant), oldDigest, newDigest)
}

type credentialStore interface {
	SetCredential(ctx context.Context, id uuid.UUID, hash string) error
}

func (a *Authenticator) changePassword(ctx context.Context, p Principal, lockout *Lockout, store credentialStore, oldDigest, newDigest string) error {
	if err := lockout.Ensure(p.Attempts()); err != nil {
		return err
	}

	id, err := uuid.Parse(p.PrincipalID())
	if err != nil {
		return internalError(a.logger, "principal carries a malformed id", err)
	}

	if Hash(oldDigest) != p.CredentialHash() {
		if err := lockout.RecordFailure(ctx, id); err != nil {
			return err
		}
		return ErrInvalidCredentials
	}

	if err := store.SetCredential(ctx, id, Hash(newDigest)); err != nil {
		return internalError(a.logger, "failed to store new credential", err, "principal", id)
	}

	return lockout.RecordSuccess(ctx, id)
}

func (a *Authenticator) ensureLive(p Principal, lockout *Lockout) error {
	if err := lockout.Ensure(p.Attempts()); err != nil {
		return err
	}
	if !p.Verified() {
		return ErrAccountNotVerified
	}
	return nil
}

func (a *Authenticator) adminLockout() *Lockout {
	return NewLockout(AdminMaxLoginAttempts, a.repo.Admins()).WithLogger(a.logger)
}

func (a *Authenticator) userLockout(tenant *Tenant) *Lockout {
	return NewLockout(tenant.MaxLoginAttempts, a.repo.UsersOf(tenant)).WithLogger(a.logger)
}
