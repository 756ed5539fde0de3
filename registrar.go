package warden

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// adminServiceName is the sender identity used for admin-facing notifications.
// End-user notifications are branded with the owning app's name instead.
const adminServiceName = "Warden"

// defNotifyTimeout bounds code delivery so a slow mail relay cannot stall a
// registration request.
const defNotifyTimeout = 5 * time.Second

// Registrar handles account creation and the verification-code handshake for
// both admins and end users.
type Registrar struct {
	repo          RepositoryManager
	notifier      Notifier
	logger        Logger
	codeLength    int
	notifyTimeout time.Duration
}

func NewRegistrar(repo RepositoryManager, notifier Notifier) *Registrar {
	return &Registrar{
		repo:          repo,
		notifier:      notifier,
		logger:        defLogger{},
		codeLength:    VerificationCodeLength,
		notifyTimeout: defNotifyTimeout,
	}
}

func (r *Registrar) WithLogger(logger Logger) *Registrar {
	if logger != nil {
		r.logger = logger
	}
	return r
}

func (r *Registrar) WithNotifyTimeout(timeout time.Duration) *Registrar {
	if timeout > 0 {
		r.notifyTimeout = timeout
	}
	return r
}

// RegisterAdmin creates an unverified admin account and sends the verification
// code. digest is the client-side sha256 of the password, it gets hashed again
// before storage.
func (r *Registrar) RegisterAdmin(ctx context.Context, email, digest string) (*Admin, error) {
	if _, err := r.repo.Admins().GetByEmail(ctx, email); err == nil {
		return nil, DataConflict("email already used")
	} else if !goerrors.IsNotFound(err) {
		return nil, internalError(r.logger, "admin lookup failed during registration", err, "email", email)
	}

	code, err := GenerateVerificationCode(r.codeLength)
	if err != nil {
		return nil, internalError(r.logger, "failed to generate verification code", err)
	}

	admin, err := r.repo.Admins().Create(ctx, &Admin{
		Email:            email,
		Hash:             Hash(digest),
		VerificationCode: &code,
	})
	if err != nil {
		return nil, internalError(r.logger, "failed to create admin", err, "email", email)
	}

	r.deliverCode(ctx, adminServiceName, email, code)

	return admin, nil
}

// RegisterUser creates an unverified end user inside the tenant's partition.
func (r *Registrar) RegisterUser(ctx context.Context, tenant *Tenant, email, digest string) (*AppUser, error) {
	users := r.repo.UsersOf(tenant)

	if _, err := users.GetByEmail(ctx, email); err == nil {
		return nil, DataConflict("email already used")
	} else if !goerrors.IsNotFound(err) {
		return nil, internalError(r.logger, "user lookup failed during registration", err, "email", email)
	}

	code, err := GenerateVerificationCode(r.codeLength)
	if err != nil {
		return nil, internalError(r.logger, "failed to generate verification code", err)
	}

	user, err := users.Create(ctx, &AppUser{
		Email:            email,
		Hash:             Hash(digest),
		VerificationCode: &code,
	})
	if err != nil {
		return nil, internalError(r.logger, "failed to create app user", err, "email", email)
	}

	r.deliverCode(ctx, tenant.Name, email, code)

	return user, nil
}

// VerifyAdmin checks the submitted code against the pending one. A mismatch
// counts as a failed login attempt; a match consumes the code and resets the
// attempt counter.
func (r *Registrar) VerifyAdmin(ctx context.Context, id uuid.UUID, code string) error {
	admin, err := r.repo.Admins().GetByID(ctx, id)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrInvalidCredentials
		}
		return internalError(r.logger, "admin lookup failed during verification", err, "admin_id", id)
	}

	return r.verify(ctx, admin, r.repo.Admins(), NewLockout(AdminMaxLoginAttempts, r.repo.Admins()).WithLogger(r.logger), code)
}

// VerifyUser is VerifyAdmin for a tenant's end user, honoring the tenant's own
// attempt limit.
func (r *Registrar) VerifyUser(ctx context.Context, tenant *Tenant, id uuid.UUID, code string) error {
	users := r.repo.UsersOf(tenant)

	user, err := users.GetByID(ctx, id)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrInvalidCredentials
		}
		return internalError(r.logger, "user lookup failed during verification", err, "user_id", id)
	}

	return r.verify(ctx, user, users, NewLockout(tenant.MaxLoginAttempts, users).WithLogger(r.logger), code)
}

type verificationStore interface {
	ClearVerification(ctx context.Context, id uuid.UUID) error
}

func (r *Registrar) verify(ctx context.Context, p Principal, store verificationStore, lockout *Lockout, code string) error {
	if err := lockout.Ensure(p.Attempts()); err != nil {
		return err
	}

	// Re-running verification on an already verified account is rejected
	// without touching the attempt counter.
	if p.Verified() {
		return ErrInvalidCredentials
	}

	id, err := uuid.Parse(p.PrincipalID())
	if err != nil {
		return internalError(r.logger, "principal carries a malformed id", err)
	}

	if p.PendingCode() != code {
		if err := lockout.RecordFailure(ctx, id); err != nil {
			return err
		}
		return ErrInvalidCredentials
	}

	if err := store.ClearVerification(ctx, id); err != nil {
		return internalError(r.logger, "failed to mark account verified", err, "principal_id", id)
	}

	return nil
}

// deliverCode sends the verification code best effort. Registration succeeds
// even when delivery fails; the failure is logged and the account stays
// unverified until a successful code round trip.
func (r *Registrar) deliverCode(ctx context.Context, appName, recipient, code string) {
	if r.notifier == nil {
		r.logger.Debug("no notifier configured, skipping code delivery")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.notifyTimeout)
	defer cancel()

	message := "Your verification code is " + code

	if err := r.notifier.Send(ctx, appName, recipient, message); err != nil {
		r.logger.Error("verification code delivery failed",
			"app", appName,
			"email", redactedValue,
			"error", err,
		)
	}
}
