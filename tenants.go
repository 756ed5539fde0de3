package warden

import (
	"context"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Tenant names end up inside partition identifiers, so the charset is the
// intersection of what an app label needs and what a SQL identifier allows.
var tenantNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// TenantInput carries the client-settable tenant fields. The API key hash and
// partition name are derived server side and have no input counterpart.
type TenantInput struct {
	Name                     string `json:"name"`
	AccessTokenExpSec        int    `json:"access_token_exp_sec"`
	RefreshTokenExpSec       int    `json:"refresh_token_exp_sec"`
	MaxLoginAttempts         int    `json:"max_login_attempts"`
	LockoutTimePerAttemptSec int    `json:"lockout_time_per_attempt_sec"`
}

func (i TenantInput) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.Name,
			validation.Required,
			validation.Length(1, 64),
			validation.Match(tenantNamePattern),
		),
		validation.Field(&i.AccessTokenExpSec, validation.Required, validation.Min(1)),
		validation.Field(&i.RefreshTokenExpSec, validation.Required, validation.Min(1)),
		validation.Field(&i.MaxLoginAttempts, validation.Required, validation.Min(1)),
		validation.Field(&i.LockoutTimePerAttemptSec, validation.Min(0)),
	)
}

// TenantManager owns the tenant lifecycle. Every mutation that touches both
// the tenant record and its partition runs the partition step with explicit
// compensation, so a half-applied registration or rename does not leave an
// orphan behind.
type TenantManager struct {
	repo   RepositoryManager
	logger Logger
}

func NewTenantManager(repo RepositoryManager) *TenantManager {
	return &TenantManager{
		repo:   repo,
		logger: defLogger{},
	}
}

func (m *TenantManager) WithLogger(logger Logger) *TenantManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// List returns the owner's tenants in creation order.
func (m *TenantManager) List(ctx context.Context, ownerID uuid.UUID) ([]*Tenant, error) {
	records, err := m.repo.Tenants().GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, internalError(m.logger, "failed to list tenants", err, "owner_id", ownerID)
	}
	return records, nil
}

// Register creates a tenant and provisions its partition. Names are unique per
// owner; two admins can each run an app with the same name.
func (m *TenantManager) Register(ctx context.Context, ownerID uuid.UUID, input TenantInput) (*Tenant, error) {
	if err := input.Validate(); err != nil {
		return nil, BadRequest(err.Error())
	}

	if _, err := m.repo.Tenants().GetByName(ctx, ownerID, input.Name); err == nil {
		return nil, DataConflict("app already exists")
	} else if !goerrors.IsNotFound(err) {
		return nil, internalError(m.logger, "tenant lookup failed during registration", err, "owner_id", ownerID)
	}

	partition := PartitionName(ownerID, input.Name)

	if err := m.repo.Partitions().Create(ctx, partition); err != nil {
		return nil, internalError(m.logger, "failed to provision partition", err, "partition", partition)
	}

	tenant, err := m.repo.Tenants().Create(ctx, &Tenant{
		OwnerID:                  ownerID,
		Name:                     input.Name,
		AccessTokenExpSec:        input.AccessTokenExpSec,
		RefreshTokenExpSec:       input.RefreshTokenExpSec,
		MaxLoginAttempts:         input.MaxLoginAttempts,
		LockoutTimePerAttemptSec: input.LockoutTimePerAttemptSec,
		Partition:                partition,
	})
	if err != nil {
		// Compensate so a record failure does not strand an empty partition.
		if dropErr := m.repo.Partitions().Drop(ctx, partition); dropErr != nil {
			m.logger.Error("orphan partition left behind after failed registration",
				"partition", partition, "error", dropErr)
		}
		return nil, internalError(m.logger, "failed to create tenant", err, "owner_id", ownerID)
	}

	return tenant, nil
}

// Update changes a tenant's settings. A name change renames the partition in
// the same logical step; on a record failure the rename is rolled back.
func (m *TenantManager) Update(ctx context.Context, ownerID, tenantID uuid.UUID, input TenantInput) (*Tenant, error) {
	if err := input.Validate(); err != nil {
		return nil, BadRequest(err.Error())
	}

	tenant, err := m.ownedTenant(ctx, ownerID, tenantID)
	if err != nil {
		return nil, err
	}

	oldPartition := tenant.Partition
	newPartition := PartitionName(ownerID, input.Name)
	renamed := input.Name != tenant.Name

	if renamed {
		if _, err := m.repo.Tenants().GetByName(ctx, ownerID, input.Name); err == nil {
			return nil, DataConflict("app already exists")
		} else if !goerrors.IsNotFound(err) {
			return nil, internalError(m.logger, "tenant lookup failed during update", err, "owner_id", ownerID)
		}

		if err := m.repo.Partitions().Rename(ctx, oldPartition, newPartition); err != nil {
			return nil, internalError(m.logger, "failed to rename partition", err,
				"partition", oldPartition)
		}
	}

	tenant.Name = input.Name
	tenant.AccessTokenExpSec = input.AccessTokenExpSec
	tenant.RefreshTokenExpSec = input.RefreshTokenExpSec
	tenant.MaxLoginAttempts = input.MaxLoginAttempts
	tenant.LockoutTimePerAttemptSec = input.LockoutTimePerAttemptSec
	tenant.Partition = newPartition

	if err := m.repo.Tenants().Update(ctx, tenant); err != nil {
		if renamed {
			if backErr := m.repo.Partitions().Rename(ctx, newPartition, oldPartition); backErr != nil {
				m.logger.Error("partition and tenant record diverged after failed update",
					"tenant_id", tenant.ID, "partition", newPartition, "error", backErr)
			}
		}
		return nil, internalError(m.logger, "failed to update tenant", err, "tenant_id", tenant.ID)
	}

	return tenant, nil
}

// Delete removes the tenant and its partition, end users included. Existing
// user sessions die with the partition since validation re-resolves the user.
func (m *TenantManager) Delete(ctx context.Context, ownerID, tenantID uuid.UUID) error {
	tenant, err := m.ownedTenant(ctx, ownerID, tenantID)
	if err != nil {
		return err
	}

	if err := m.repo.Partitions().Drop(ctx, tenant.Partition); err != nil {
		return internalError(m.logger, "failed to drop partition", err, "partition", tenant.Partition)
	}

	if err := m.repo.Tenants().Delete(ctx, tenant.ID); err != nil {
		return internalError(m.logger, "failed to delete tenant", err, "tenant_id", tenant.ID)
	}

	return nil
}

// GenerateAPIKey mints a fresh API key for the tenant and stores its hash.
// The plaintext key is returned exactly once; a new call invalidates the
// previous key.
func (m *TenantManager) GenerateAPIKey(ctx context.Context, ownerID, tenantID uuid.UUID) (string, error) {
	tenant, err := m.ownedTenant(ctx, ownerID, tenantID)
	if err != nil {
		return "", err
	}

	key, err := GenerateAPIKey()
	if err != nil {
		return "", internalError(m.logger, "failed to generate API key", err)
	}

	if err := m.repo.Tenants().SetAPIKeyHash(ctx, tenant.ID, Hash(key)); err != nil {
		return "", internalError(m.logger, "failed to store API key hash", err, "tenant_id", tenant.ID)
	}

	return key, nil
}

// Authenticate resolves the tenant API headers to a tenant record. All
// mismatch flavors answer the same invalid_headers error so the endpoint does
// not confirm which tenant ids exist.
func (m *TenantManager) Authenticate(ctx context.Context, rawID, key string) (*Tenant, error) {
	if rawID == "" || key == "" {
		return nil, ErrMissingHeaders
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, ErrInvalidHeaders
	}

	tenant, err := m.repo.Tenants().GetByID(ctx, id)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrInvalidHeaders
		}
		return nil, internalError(m.logger, "tenant lookup failed during API auth", err, "tenant_id", id)
	}

	if tenant.APIKeyHash == "" || Hash(key) != tenant.APIKeyHash {
		return nil, ErrInvalidHeaders
	}

	return tenant, nil
}

// DeleteAdmin removes an admin account and cascades over every tenant they
// own, partitions included.
func (m *TenantManager) DeleteAdmin(ctx context.Context, adminID uuid.UUID) error {
	tenants, err := m.repo.Tenants().GetByOwner(ctx, adminID)
	if err != nil {
		return internalError(m.logger, "failed to list tenants for cascade", err, "admin_id", adminID)
	}

	for _, tenant := range tenants {
		if err := m.Delete(ctx, adminID, tenant.ID); err != nil {
			return err
		}
	}

	if err := m.repo.Admins().Delete(ctx, adminID); err != nil {
		return internalError(m.logger, "failed to delete admin", err, "admin_id", adminID)
	}

	return nil
}

// ownedTenant fetches a tenant and enforces ownership. A tenant owned by a
// different admin answers the same error as a missing one.
func (m *TenantManager) ownedTenant(ctx context.Context, ownerID, tenantID uuid.UUID) (*Tenant, error) {
	tenant, err := m.repo.Tenants().GetByID(ctx, tenantID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, DataConflict("app does not exist")
		}
		return nil, internalError(m.logger, "tenant lookup failed", err, "tenant_id", tenantID)
	}

	if tenant.OwnerID != ownerID {
		return nil, DataConflict("app does not exist")
	}

	return tenant, nil
}
