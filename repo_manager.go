package warden

import (
	"context"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories. End-user access goes through
// UsersOf so the partition handle is always derived from an authenticated
// Tenant record, never from client-supplied input.
type RepositoryManager interface {
	Admins() Admins
	Tenants() Tenants
	UsersOf(t *Tenant) TenantUsers
	Partitions() Partitions
	Migrate(ctx context.Context) error
}

type mngr struct {
	db         *bun.DB
	admins     Admins
	tenants    Tenants
	partitions Partitions
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:         db,
		admins:     newAdminsRepository(db),
		tenants:    newTenantsRepository(db),
		partitions: newPartitionsRepository(db),
	}
}

func (m *mngr) Admins() Admins { return m.admins }

func (m *mngr) Tenants() Tenants { return m.tenants }

func (m *mngr) Partitions() Partitions { return m.partitions }

func (m *mngr) UsersOf(t *Tenant) TenantUsers {
	return newTenantUsersRepository(m.db, t.Partition)
}

// Migrate creates the fixed tables. Tenant partitions are provisioned per
// registration, not here.
func (m *mngr) Migrate(ctx context.Context) error {
	models := []any{
		(*Admin)(nil),
		(*Tenant)(nil),
	}

	for _, model := range models {
		if _, err := m.db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return err
		}
	}

	return nil
}
