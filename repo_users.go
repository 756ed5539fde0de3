package warden

import (
	"context"
	"encoding/json"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TenantUsers is the persistence facade for one tenant's end users. Every
// instance is bound to a single partition at construction; there is no way to
// address another tenant's records through it.
type TenantUsers interface {
	AttemptCounter

	Create(ctx context.Context, user *AppUser) (*AppUser, error)
	GetByEmail(ctx context.Context, email string) (*AppUser, error)
	GetByID(ctx context.Context, id uuid.UUID) (*AppUser, error)
	SetCredential(ctx context.Context, id uuid.UUID, hash string) error
	SetData(ctx context.Context, id uuid.UUID, data map[string]any) error
	ClearVerification(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type tenantUsers struct {
	db        *bun.DB
	partition string
}

var _ TenantUsers = (*tenantUsers)(nil)

func newTenantUsersRepository(db *bun.DB, partition string) TenantUsers {
	return &tenantUsers{db: db, partition: partition}
}

func (u *tenantUsers) table() string {
	return u.partition
}

func (u *tenantUsers) Create(ctx context.Context, user *AppUser) (*AppUser, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	_, err := u.db.NewInsert().
		Model(user).
		ModelTableExpr("? AS usr", bun.Ident(u.table())).
		Exec(ctx)

	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to insert app user")
	}

	return user, nil
}

func (u *tenantUsers) GetByEmail(ctx context.Context, email string) (*AppUser, error) {
	record := &AppUser{}

	err := u.db.NewSelect().
		Model(record).
		ModelTableExpr("? AS usr", bun.Ident(u.table())).
		Where("usr.email = ?", email).
		Limit(1).
		Scan(ctx)

	return record, wrapLookupErr(err, "failed to select app user by email")
}

func (u *tenantUsers) GetByID(ctx context.Context, id uuid.UUID) (*AppUser, error) {
	record := &AppUser{}

	err := u.db.NewSelect().
		Model(record).
		ModelTableExpr("? AS usr", bun.Ident(u.table())).
		Where("usr.id = ?", id).
		Limit(1).
		Scan(ctx)

	return record, wrapLookupErr(err, "failed to select app user by id")
}

func (u *tenantUsers) SetCredential(ctx context.Context, id uuid.UUID, hash string) error {
	_, err := u.db.NewUpdate().
		Model((*AppUser)(nil)).
		ModelTableExpr("? AS usr", bun.Ident(u.table())).
		Set("hash = ?", hash).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("usr.id = ?", id).
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update app user credential")
	}

	return nil
}

func (u *tenantUsers) SetData(ctx context.Context, id uuid.UUID, data map[string]any) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode app user data")
	}

	_, err = u.db.NewUpdate().
		Model((*AppUser)(nil)).
		ModelTableExpr("? AS usr", bun.Ident(u.table())).
		Set("data = ?", string(encoded)).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("usr.id = ?", id).
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update app user data")
	}

	return nil
}

func (u *tenantUsers) ClearVerification(ctx context.Context, id uuid.UUID) error {
	_, err := u.db.NewUpdate().
		Model((*AppUser)(nil)).
		ModelTableExpr("? AS usr", bun.Ident(u.table())).
		Set("verification_code = NULL").
		Set("login_attempts = 0").
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("usr.id = ?", id).
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear app user verification code")
	}

	return nil
}

func (u *tenantUsers) IncrementLoginAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	var attempts int

	err := u.db.NewRaw(
		`UPDATE ? SET "login_attempts" = "login_attempts" + 1, "updated_at" = CURRENT_TIMESTAMP WHERE "id" = ? RETURNING "login_attempts"`,
		bun.Ident(u.table()), id,
	).Scan(ctx, &attempts)

	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to increment app user login attempts")
	}

	return attempts, nil
}

func (u *tenantUsers) ResetLoginAttempts(ctx context.Context, id uuid.UUID) error {
	_, err := u.db.NewUpdate().
		Model((*AppUser)(nil)).
		ModelTableExpr("? AS usr", bun.Ident(u.table())).
		Set("login_attempts = 0").
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("usr.id = ?", id).
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reset app user login attempts")
	}

	return nil
}

func (u *tenantUsers) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := u.db.NewDelete().
		Model((*AppUser)(nil)).
		ModelTableExpr("? AS usr", bun.Ident(u.table())).
		Where("usr.id = ?", id).
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete app user")
	}

	return nil
}
