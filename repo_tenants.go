package warden

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Tenants is the persistence facade for tenant (app) records.
type Tenants interface {
	Create(ctx context.Context, tenant *Tenant) (*Tenant, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetByName(ctx context.Context, ownerID uuid.UUID, name string) (*Tenant, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Tenant, error)
	Update(ctx context.Context, tenant *Tenant) error
	SetAPIKeyHash(ctx context.Context, id uuid.UUID, hash string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Partitions manages the isolated per-tenant end-user tables. Lifecycle is
// owned by TenantManager, which pairs every partition mutation with the
// matching tenant-record mutation.
type Partitions interface {
	Create(ctx context.Context, name string) error
	Rename(ctx context.Context, oldName, newName string) error
	Drop(ctx context.Context, name string) error
}

type tenants struct {
	db *bun.DB
}

var _ Tenants = (*tenants)(nil)

func newTenantsRepository(db *bun.DB) Tenants {
	return &tenants{db: db}
}

func (t *tenants) Create(ctx context.Context, tenant *Tenant) (*Tenant, error) {
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}

	if _, err := t.db.NewInsert().Model(tenant).Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to insert tenant")
	}

	return tenant, nil
}

func (t *tenants) GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	record := &Tenant{}

	err := t.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	return record, wrapLookupErr(err, "failed to select tenant by id")
}

func (t *tenants) GetByName(ctx context.Context, ownerID uuid.UUID, name string) (*Tenant, error) {
	record := &Tenant{}

	err := t.db.NewSelect().
		Model(record).
		Where("?TableAlias.owner_id = ?", ownerID).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)

	return record, wrapLookupErr(err, "failed to select tenant by name")
}

func (t *tenants) GetByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Tenant, error) {
	var records []*Tenant

	err := t.db.NewSelect().
		Model(&records).
		Where("?TableAlias.owner_id = ?", ownerID).
		Order("created_at ASC").
		Scan(ctx)

	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to select tenants by owner")
	}

	return records, nil
}

func (t *tenants) Update(ctx context.Context, tenant *Tenant) error {
	_, err := t.db.NewUpdate().
		Model(tenant).
		Column("name", "access_token_exp_sec", "refresh_token_exp_sec",
			"max_login_attempts", "lockout_time_per_attempt_sec", "partition_name").
		Set("updated_at = CURRENT_TIMESTAMP").
		WherePK().
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update tenant")
	}

	return nil
}

func (t *tenants) SetAPIKeyHash(ctx context.Context, id uuid.UUID, hash string) error {
	_, err := t.db.NewUpdate().
		Model((*Tenant)(nil)).
		Set("api_key_hash = ?", hash).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update tenant API key hash")
	}

	return nil
}

func (t *tenants) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := t.db.NewDelete().
		Model((*Tenant)(nil)).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete tenant")
	}

	return nil
}

type partitions struct {
	db *bun.DB
}

var _ Partitions = (*partitions)(nil)

func newPartitionsRepository(db *bun.DB) Partitions {
	return &partitions{db: db}
}

var createPartitionSQL = `CREATE TABLE IF NOT EXISTS ? (
	"id" UUID PRIMARY KEY,
	"email" VARCHAR NOT NULL UNIQUE,
	"hash" VARCHAR NOT NULL,
	"data" JSONB,
	"login_attempts" INTEGER NOT NULL DEFAULT 0,
	"verification_code" VARCHAR,
	"created_at" TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	"updated_at" TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

func (p *partitions) Create(ctx context.Context, name string) error {
	if _, err := p.db.NewRaw(createPartitionSQL, bun.Ident(name)).Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create partition")
	}
	return nil
}

func (p *partitions) Rename(ctx context.Context, oldName, newName string) error {
	_, err := p.db.NewRaw("ALTER TABLE ? RENAME TO ?", bun.Ident(oldName), bun.Ident(newName)).Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to rename partition")
	}
	return nil
}

func (p *partitions) Drop(ctx context.Context, name string) error {
	if _, err := p.db.NewRaw("DROP TABLE IF EXISTS ?", bun.Ident(name)).Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to drop partition")
	}
	return nil
}
