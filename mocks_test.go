package warden_test

import (
	"context"
	"sync"

	warden "github.com/goliatone/go-warden"
	"github.com/google/uuid"
)

// fakeRepo is an in-memory RepositoryManager. Partitions are modeled as named
// user maps, so partition create/rename/drop semantics mirror the real table
// lifecycle closely enough to exercise the compensation paths.
type fakeRepo struct {
	mu         sync.Mutex
	admins     map[uuid.UUID]*warden.Admin
	tenants    map[uuid.UUID]*warden.Tenant
	partitions map[string]map[uuid.UUID]*warden.AppUser

	// failures maps an operation name to the error it should return.
	failures map[string]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		admins:     map[uuid.UUID]*warden.Admin{},
		tenants:    map[uuid.UUID]*warden.Tenant{},
		partitions: map[string]map[uuid.UUID]*warden.AppUser{},
		failures:   map[string]error{},
	}
}

func (f *fakeRepo) failOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

func (f *fakeRepo) failure(op string) error {
	return f.failures[op]
}

func (f *fakeRepo) Admins() warden.Admins         { return &fakeAdmins{repo: f} }
func (f *fakeRepo) Tenants() warden.Tenants       { return &fakeTenants{repo: f} }
func (f *fakeRepo) Partitions() warden.Partitions { return &fakePartitions{repo: f} }

func (f *fakeRepo) UsersOf(t *warden.Tenant) warden.TenantUsers {
	return &fakeUsers{repo: f, partition: t.Partition}
}

func (f *fakeRepo) Migrate(ctx context.Context) error { return nil }

type fakeAdmins struct {
	repo *fakeRepo
}

func (a *fakeAdmins) Create(ctx context.Context, admin *warden.Admin) (*warden.Admin, error) {
	a.repo.mu.Lock()
	defer a.repo.mu.Unlock()
	if err := a.repo.failure("admins.create"); err != nil {
		return nil, err
	}
	if admin.ID == uuid.Nil {
		admin.ID = uuid.New()
	}
	clone := *admin
	a.repo.admins[admin.ID] = &clone
	return admin, nil
}

func (a *fakeAdmins) GetByEmail(ctx context.Context, email string) (*warden.Admin, error) {
	a.repo.mu.Lock()
	defer a.repo.mu.Unlock()
	if err := a.repo.failure("admins.get"); err != nil {
		return nil, err
	}
	for _, admin := range a.repo.admins {
		if admin.Email == email {
			clone := *admin
			return &clone, nil
		}
	}
	return nil, warden.ErrRecordNotFound
}

func (a *fakeAdmins) GetByID(ctx context.Context, id uuid.UUID) (*warden.Admin, error) {
	a.repo.mu.Lock()
	defer a.repo.mu.Unlock()
	if err := a.repo.failure("admins.get"); err != nil {
		return nil, err
	}
	admin, ok := a.repo.admins[id]
	if !ok {
		return nil, warden.ErrRecordNotFound
	}
	clone := *admin
	return &clone, nil
}

func (a *fakeAdmins) SetCredential(ctx context.Context, id uuid.UUID, hash string) error {
	a.repo.mu.Lock()
	defer a.repo.mu.Unlock()
	if admin, ok := a.repo.admins[id]; ok {
		admin.Hash = hash
	}
	return nil
}

func (a *fakeAdmins) ClearVerification(ctx context.Context, id uuid.UUID) error {
	a.repo.mu.Lock()
	defer a.repo.mu.Unlock()
	if err := a.repo.failure("admins.clear"); err != nil {
		return err
	}
	if admin, ok := a.repo.admins[id]; ok {
		admin.VerificationCode = nil
		admin.LoginAttempts = 0
	}
	return nil
}

func (a *fakeAdmins) IncrementLoginAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	a.repo.mu.Lock()
	defer a.repo.mu.Unlock()
	if err := a.repo.failure("admins.increment"); err != nil {
		return 0, err
	}
	admin, ok := a.repo.admins[id]
	if !ok {
		return 0, warden.ErrRecordNotFound
	}
	admin.LoginAttempts++
	return admin.LoginAttempts, nil
}

func (a *fakeAdmins) ResetLoginAttempts(ctx context.Context, id uuid.UUID) error {
	a.repo.mu.Lock()
	defer a.repo.mu.Unlock()
	if admin, ok := a.repo.admins[id]; ok {
		admin.LoginAttempts = 0
	}
	return nil
}

func (a *fakeAdmins) Delete(ctx context.Context, id uuid.UUID) error {
	a.repo.mu.Lock()
	defer a.repo.mu.Unlock()
	delete(a.repo.admins, id)
	return nil
}

type fakeTenants struct {
	repo *fakeRepo
}

func (t *fakeTenants) Create(ctx context.Context, tenant *warden.Tenant) (*warden.Tenant, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if err := t.repo.failure("tenants.create"); err != nil {
		return nil, err
	}
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	clone := *tenant
	t.repo.tenants[tenant.ID] = &clone
	return tenant, nil
}

func (t *fakeTenants) GetByID(ctx context.Context, id uuid.UUID) (*warden.Tenant, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	tenant, ok := t.repo.tenants[id]
	if !ok {
		return nil, warden.ErrRecordNotFound
	}
	clone := *tenant
	return &clone, nil
}

func (t *fakeTenants) GetByName(ctx context.Context, ownerID uuid.UUID, name string) (*warden.Tenant, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, tenant := range t.repo.tenants {
		if tenant.OwnerID == ownerID && tenant.Name == name {
			clone := *tenant
			return &clone, nil
		}
	}
	return nil, warden.ErrRecordNotFound
}

func (t *fakeTenants) GetByOwner(ctx context.Context, ownerID uuid.UUID) ([]*warden.Tenant, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	var out []*warden.Tenant
	for _, tenant := range t.repo.tenants {
		if tenant.OwnerID == ownerID {
			clone := *tenant
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (t *fakeTenants) Update(ctx context.Context, tenant *warden.Tenant) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if err := t.repo.failure("tenants.update"); err != nil {
		return err
	}
	clone := *tenant
	t.repo.tenants[tenant.ID] = &clone
	return nil
}

func (t *fakeTenants) SetAPIKeyHash(ctx context.Context, id uuid.UUID, hash string) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if tenant, ok := t.repo.tenants[id]; ok {
		tenant.APIKeyHash = hash
	}
	return nil
}

func (t *fakeTenants) Delete(ctx context.Context, id uuid.UUID) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	delete(t.repo.tenants, id)
	return nil
}

type fakePartitions struct {
	repo *fakeRepo
}

func (p *fakePartitions) Create(ctx context.Context, name string) error {
	p.repo.mu.Lock()
	defer p.repo.mu.Unlock()
	if err := p.repo.failure("partitions.create"); err != nil {
		return err
	}
	if _, ok := p.repo.partitions[name]; !ok {
		p.repo.partitions[name] = map[uuid.UUID]*warden.AppUser{}
	}
	return nil
}

func (p *fakePartitions) Rename(ctx context.Context, oldName, newName string) error {
	p.repo.mu.Lock()
	defer p.repo.mu.Unlock()
	if err := p.repo.failure("partitions.rename"); err != nil {
		return err
	}
	users, ok := p.repo.partitions[oldName]
	if !ok {
		return warden.ErrRecordNotFound
	}
	delete(p.repo.partitions, oldName)
	p.repo.partitions[newName] = users
	return nil
}

func (p *fakePartitions) Drop(ctx context.Context, name string) error {
	p.repo.mu.Lock()
	defer p.repo.mu.Unlock()
	if err := p.repo.failure("partitions.drop"); err != nil {
		return err
	}
	delete(p.repo.partitions, name)
	return nil
}

type fakeUsers struct {
	repo      *fakeRepo
	partition string
}

func (u *fakeUsers) users() map[uuid.UUID]*warden.AppUser {
	users, ok := u.repo.partitions[u.partition]
	if !ok {
		users = map[uuid.UUID]*warden.AppUser{}
		u.repo.partitions[u.partition] = users
	}
	return users
}

func (u *fakeUsers) Create(ctx context.Context, user *warden.AppUser) (*warden.AppUser, error) {
	u.repo.mu.Lock()
	defer u.repo.mu.Unlock()
	if err := u.repo.failure("users.create"); err != nil {
		return nil, err
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	clone := *user
	u.users()[user.ID] = &clone
	return user, nil
}

func (u *fakeUsers) GetByEmail(ctx context.Context, email string) (*warden.AppUser, error) {
	u.repo.mu.Lock()
	defer u.repo.mu.Unlock()
	for _, user := range u.users() {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, warden.ErrRecordNotFound
}

func (u *fakeUsers) GetByID(ctx context.Context, id uuid.UUID) (*warden.AppUser, error) {
	u.repo.mu.Lock()
	defer u.repo.mu.Unlock()
	user, ok := u.users()[id]
	if !ok {
		return nil, warden.ErrRecordNotFound
	}
	clone := *user
	return &clone, nil
}

func (u *fakeUsers) SetCredential(ctx context.Context, id uuid.UUID, hash string) error {
	u.repo.mu.Lock()
	defer u.repo.mu.Unlock()
	if user, ok := u.users()[id]; ok {
		user.Hash = hash
	}
	return nil
}

func (u *fakeUsers) SetData(ctx context.Context, id uuid.UUID, data map[string]any) error {
	u.repo.mu.Lock()
	defer u.repo.mu.Unlock()
	if user, ok := u.users()[id]; ok {
		user.Data = data
	}
	return nil
}

func (u *fakeUsers) ClearVerification(ctx context.Context, id uuid.UUID) error {
	u.repo.mu.Lock()
	defer u.repo.mu.Unlock()
	if user, ok := u.users()[id]; ok {
		user.VerificationCode = nil
		user.LoginAttempts = 0
	}
	return nil
}

func (u *fakeUsers) IncrementLoginAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	u.repo.mu.Lock()
	defer u.repo.mu.Unlock()
	user, ok := u.users()[id]
	if !ok {
		return 0, warden.ErrRecordNotFound
	}
	user.LoginAttempts++
	return user.LoginAttempts, nil
}

func (u *fakeUsers) ResetLoginAttempts(ctx context.Context, id uuid.UUID) error {
	u.repo.mu.Lock()
	defer u.repo.mu.Unlock()
	if user, ok := u.users()[id]; ok {
		user.LoginAttempts = 0
	}
	return nil
}

func (u *fakeUsers) Delete(ctx context.Context, id uuid.UUID) error {
	u.repo.mu.Lock()
	defer u.repo.mu.Unlock()
	delete(u.users(), id)
	return nil
}

// recordingNotifier captures every Send call. Set err to simulate delivery
// failures.
type recordingNotifier struct {
	mu    sync.Mutex
	sends []sentMessage
	err   error
}

type sentMessage struct {
	appName   string
	recipient string
	message   string
}

func (n *recordingNotifier) Send(ctx context.Context, appName, recipient, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sends = append(n.sends, sentMessage{appName: appName, recipient: recipient, message: message})
	return nil
}

func (n *recordingNotifier) last() (sentMessage, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sends) == 0 {
		return sentMessage{}, false
	}
	return n.sends[len(n.sends)-1], true
}

// recordingLogger captures structured log lines for redaction assertions.
type recordingLogger struct {
	mu    sync.Mutex
	lines []logLine
}

type logLine struct {
	level string
	msg   string
	args  []any
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record("error", msg, args) }

func (l *recordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, logLine{level: level, msg: msg, args: args})
}

func (l *recordingLogger) contains(value any) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		for _, arg := range line.args {
			if arg == value {
				return true
			}
		}
	}
	return false
}
