package warden

import (
	"context"

	"github.com/google/uuid"
)

// LockState is the per-principal brute-force state.
type LockState string

const (
	LockStateActive LockState = "active"
	LockStateLocked LockState = "locked"
)

// AttemptCounter is the slice of a repository the tracker needs. Both
// mutations must be atomic at the storage layer; concurrent logins for the
// same principal race on the counter otherwise.
type AttemptCounter interface {
	IncrementLoginAttempts(ctx context.Context, id uuid.UUID) (int, error)
	ResetLoginAttempts(ctx context.Context, id uuid.UUID) error
}

// Lockout tracks failed credential checks for one principal population.
// Transitions: a successful check resets the counter to 0; a failed check
// increments it; reaching max locks the account. The lock is sticky, there is
// no automatic unlock at this layer.
type Lockout struct {
	max      int
	counters AttemptCounter
	logger   Logger
}

func NewLockout(max int, counters AttemptCounter) *Lockout {
	return &Lockout{
		max:      max,
		counters: counters,
		logger:   defLogger{},
	}
}

func (l *Lockout) WithLogger(logger Logger) *Lockout {
	if logger != nil {
		l.logger = logger
	}
	return l
}

// State maps a stored attempt counter to the principal's lock state.
func (l *Lockout) State(attempts int) LockState {
	if attempts >= l.max {
		return LockStateLocked
	}
	return LockStateActive
}

// Ensure rejects locked principals before any credential or code comparison
// runs, so a locked account answers account_locked regardless of credential
// correctness.
func (l *Lockout) Ensure(attempts int) error {
	if l.State(attempts) == LockStateLocked {
		return ErrAccountLocked
	}
	return nil
}

// RecordFailure bumps the counter through the repository's atomic increment.
func (l *Lockout) RecordFailure(ctx context.Context, id uuid.UUID) error {
	attempts, err := l.counters.IncrementLoginAttempts(ctx, id)
	if err != nil {
		return internalError(l.logger, "could not increment login attempts", err, "principal", id)
	}
	if attempts >= l.max {
		l.logger.Info("account locked after repeated failures", "principal", id, "attempts", attempts)
	}
	return nil
}

// RecordSuccess resets the counter to 0 regardless of its prior value.
func (l *Lockout) RecordSuccess(ctx context.Context, id uuid.UUID) error {
	if err := l.counters.ResetLoginAttempts(ctx, id); err != nil {
		return internalError(l.logger, "could not reset login attempts", err, "principal", id)
	}
	return nil
}
