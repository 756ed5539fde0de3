package warden

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PrincipalKind distinguishes the two account populations.
type PrincipalKind string

const (
	KindAdmin PrincipalKind = "admin"
	KindUser  PrincipalKind = "user"
)

// AdminMaxLoginAttempts is fixed for admin accounts; end users inherit the
// configurable threshold from their owning tenant.
const AdminMaxLoginAttempts = 3

// Admin is an operator account that owns tenants.
type Admin struct {
	bun.BaseModel `bun:"table:admins,alias:adm"`

	ID               uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email            string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Hash             string     `bun:"hash,notnull" json:"-"`
	LoginAttempts    int        `bun:"login_attempts,notnull,default:0" json:"-"`
	VerificationCode *string    `bun:"verification_code,nullzero" json:"-"`
	CreatedAt        *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt        *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

func (a *Admin) PrincipalID() string          { return a.ID.String() }
func (a *Admin) PrincipalEmail() string       { return a.Email }
func (a *Admin) PrincipalKind() PrincipalKind { return KindAdmin }
func (a *Admin) CredentialHash() string       { return a.Hash }
func (a *Admin) Attempts() int                { return a.LoginAttempts }

// Verified reports whether the pending code has been consumed. The field is
// removed on verification, never set to an empty marker, so absence is the
// one and only verified state.
func (a *Admin) Verified() bool {
	return a.VerificationCode == nil || *a.VerificationCode == ""
}

// PendingCode returns the outstanding verification code, or "" once verified.
func (a *Admin) PendingCode() string {
	if a.VerificationCode == nil {
		return ""
	}
	return *a.VerificationCode
}

// Tenant is an app registered by an admin: an isolated namespace with its own
// end users, token TTLs, lockout policy, and API key.
type Tenant struct {
	bun.BaseModel `bun:"table:tenants,alias:tnt"`

	ID                       uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	OwnerID                  uuid.UUID  `bun:"owner_id,notnull,type:uuid" json:"owner_id,omitempty"`
	Name                     string     `bun:"name,notnull" json:"name,omitempty"`
	AccessTokenExpSec        int        `bun:"access_token_exp_sec,notnull" json:"access_token_exp_sec,omitempty"`
	RefreshTokenExpSec       int        `bun:"refresh_token_exp_sec,notnull" json:"refresh_token_exp_sec,omitempty"`
	MaxLoginAttempts         int        `bun:"max_login_attempts,notnull" json:"max_login_attempts,omitempty"`
	LockoutTimePerAttemptSec int        `bun:"lockout_time_per_attempt_sec" json:"lockout_time_per_attempt_sec,omitempty"`
	APIKeyHash               string     `bun:"api_key_hash,notnull,default:''" json:"-"`
	Partition                string     `bun:"partition_name,notnull" json:"-"`
	CreatedAt                *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt                *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// AccessTTL returns the access token lifetime for end users of this tenant.
func (t *Tenant) AccessTTL() time.Duration {
	return time.Duration(t.AccessTokenExpSec) * time.Second
}

// RefreshTTL returns the refresh token lifetime for end users of this tenant.
func (t *Tenant) RefreshTTL() time.Duration {
	return time.Duration(t.RefreshTokenExpSec) * time.Second
}

// AppUser is an end-user account scoped to exactly one tenant partition.
type AppUser struct {
	bun.BaseModel `bun:"table:app_users,alias:usr"`

	ID               uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email            string         `bun:"email,notnull,unique" json:"email,omitempty"`
	Hash             string         `bun:"hash,notnull" json:"-"`
	Data             map[string]any `bun:"data,type:jsonb" json:"data,omitempty"`
	LoginAttempts    int            `bun:"login_attempts,notnull,default:0" json:"-"`
	VerificationCode *string        `bun:"verification_code,nullzero" json:"-"`
	CreatedAt        *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt        *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

func (u *AppUser) PrincipalID() string          { return u.ID.String() }
func (u *AppUser) PrincipalEmail() string       { return u.Email }
func (u *AppUser) PrincipalKind() PrincipalKind { return KindUser }
func (u *AppUser) CredentialHash() string       { return u.Hash }
func (u *AppUser) Attempts() int                { return u.LoginAttempts }

func (u *AppUser) Verified() bool {
	return u.VerificationCode == nil || *u.VerificationCode == ""
}

func (u *AppUser) PendingCode() string {
	if u.VerificationCode == nil {
		return ""
	}
	return *u.VerificationCode
}

// PartitionName derives the storage partition for a tenant from its owner and
// display name. Embedding the name means a tenant rename implies a partition
// rename, which Register/Update/Delete treat as one logical operation.
func PartitionName(ownerID uuid.UUID, name string) string {
	return fmt.Sprintf("app_%s_%s", ownerID, name)
}
