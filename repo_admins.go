package warden

import (
	"context"
	"database/sql"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Counter updates are single statements so concurrent logins for the same
// account cannot interleave a read-modify-write.
var incrementAdminAttemptsSQL = `UPDATE "admins"
SET
	"login_attempts" = "login_attempts" + 1,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"id" = ?
RETURNING "login_attempts";`

var clearAdminVerificationSQL = `UPDATE "admins"
SET
	"verification_code" = NULL,
	"login_attempts" = 0,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"id" = ?;`

// Admins is the persistence facade for operator accounts.
type Admins interface {
	AttemptCounter

	Create(ctx context.Context, admin *Admin) (*Admin, error)
	GetByEmail(ctx context.Context, email string) (*Admin, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Admin, error)
	SetCredential(ctx context.Context, id uuid.UUID, hash string) error
	ClearVerification(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type admins struct {
	db *bun.DB
}

var _ Admins = (*admins)(nil)

func newAdminsRepository(db *bun.DB) Admins {
	return &admins{db: db}
}

func (a *admins) Create(ctx context.Context, admin *Admin) (*Admin, error) {
	if admin.ID == uuid.Nil {
		admin.ID = uuid.New()
	}

	if _, err := a.db.NewInsert().Model(admin).Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to insert admin")
	}

	return admin, nil
}

func (a *admins) GetByEmail(ctx context.Context, email string) (*Admin, error) {
	record := &Admin{}

	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", email).
		Limit(1).
		Scan(ctx)

	return record, wrapLookupErr(err, "failed to select admin by email")
}

func (a *admins) GetByID(ctx context.Context, id uuid.UUID) (*Admin, error) {
	record := &Admin{}

	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	return record, wrapLookupErr(err, "failed to select admin by id")
}

func (a *admins) SetCredential(ctx context.Context, id uuid.UUID, hash string) error {
	_, err := a.db.NewUpdate().
		Model((*Admin)(nil)).
		Set("hash = ?", hash).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update admin credential")
	}

	return nil
}

// ClearVerification consumes the pending code and resets the counter in one
// statement; verification is a one-way transition.
func (a *admins) ClearVerification(ctx context.Context, id uuid.UUID) error {
	if _, err := a.db.NewRaw(clearAdminVerificationSQL, id).Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear admin verification code")
	}
	return nil
}

func (a *admins) IncrementLoginAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	var attempts int
	if err := a.db.NewRaw(incrementAdminAttemptsSQL, id).Scan(ctx, &attempts); err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to increment admin login attempts")
	}
	return attempts, nil
}

func (a *admins) ResetLoginAttempts(ctx context.Context, id uuid.UUID) error {
	_, err := a.db.NewUpdate().
		Model((*Admin)(nil)).
		Set("login_attempts = 0").
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reset admin login attempts")
	}

	return nil
}

func (a *admins) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := a.db.NewDelete().
		Model((*Admin)(nil)).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete admin")
	}

	return nil
}

func wrapLookupErr(err error, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRecordNotFound
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message)
}
