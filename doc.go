// Package warden implements a multi-tenant credential and session service:
// admins register apps (tenants), each tenant owns an isolated population of
// end users, and every principal authenticates with a double-hashed credential
// gated by verification codes and a sticky lockout counter.
//
// The package is transport-thin: HTTP wiring lives in http.go and the
// controllers, while every state transition funnels through the Registrar,
// Authenticator, and TenantManager services, which talk to storage only
// through the RepositoryManager facade.
package warden
