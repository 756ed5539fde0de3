package warden_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	warden "github.com/goliatone/go-warden"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClient struct {
	t       *testing.T
	repo    *fakeRepo
	server  *warden.Server
	cookies map[string]string
	headers map[string]string
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()

	repo := newFakeRepo()
	tokens := warden.NewTokenService(testSigningKey, "warden")
	auth := warden.NewAuthenticator(repo, tokens)
	registrar := warden.NewRegistrar(repo, &recordingNotifier{})
	tenants := warden.NewTenantManager(repo)

	return &testClient{
		t:       t,
		repo:    repo,
		server:  warden.NewServer(auth, registrar, tenants),
		cookies: map[string]string{},
		headers: map[string]string{},
	}
}

func (c *testClient) do(method, path string, body any) (*http.Response, map[string]any) {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, value := range c.headers {
		req.Header.Set(name, value)
	}
	for name, value := range c.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	res, err := c.server.App().Test(req, -1)
	require.NoError(c.t, err)

	for _, cookie := range res.Cookies() {
		if cookie.Value == "" || cookie.MaxAge < 0 {
			delete(c.cookies, cookie.Name)
			continue
		}
		c.cookies[cookie.Name] = cookie.Value
	}

	payload := map[string]any{}
	raw, err := io.ReadAll(res.Body)
	require.NoError(c.t, err)
	res.Body.Close()
	if len(raw) > 0 {
		require.NoError(c.t, json.Unmarshal(raw, &payload), "body: %s", raw)
	}

	return res, payload
}

// registerVerifiedAdmin walks the register and verify steps, returning the
// admin id.
func (c *testClient) registerVerifiedAdmin(email, digest string) string {
	c.t.Helper()

	res, body := c.do("POST", "/admin/register", map[string]string{
		"email": email,
		"hash":  digest,
	})
	require.Equal(c.t, http.StatusCreated, res.StatusCode)
	id := body["id"].(string)

	admin, err := c.repo.Admins().GetByEmail(context.Background(), email)
	require.NoError(c.t, err)

	res, _ = c.do("POST", "/admin/"+id+"/verify", map[string]string{
		"verification_code": admin.PendingCode(),
	})
	require.Equal(c.t, http.StatusOK, res.StatusCode)

	return id
}

func (c *testClient) loginAdmin(email, digest string) {
	c.t.Helper()

	res, _ := c.do("POST", "/admin/login", map[string]string{
		"email": email,
		"hash":  digest,
	})
	require.Equal(c.t, http.StatusOK, res.StatusCode)
	require.NotEmpty(c.t, c.cookies[warden.CookieAccessToken])
	require.NotEmpty(c.t, c.cookies[warden.CookieRefreshToken])
}

func (c *testClient) createApp(name string) string {
	c.t.Helper()

	res, body := c.do("POST", "/admin/app", map[string]any{
		"name":                  name,
		"access_token_exp_sec":  600,
		"refresh_token_exp_sec": 3600,
		"max_login_attempts":    5,
	})
	require.Equal(c.t, http.StatusCreated, res.StatusCode)
	return body["id"].(string)
}

func (c *testClient) issueAppKey(appID string) {
	c.t.Helper()

	res, body := c.do("GET", fmt.Sprintf("/admin/app/%s/generate_api_key", appID), nil)
	require.Equal(c.t, http.StatusOK, res.StatusCode)

	c.headers[warden.HeaderAPIID] = appID
	c.headers[warden.HeaderAPIKey] = body["api_key"].(string)
}

func TestAdminLifecycle(t *testing.T) {
	c := newTestClient(t)
	digest := warden.Hash("admin password")

	c.registerVerifiedAdmin("op@example.com", digest)
	c.loginAdmin("op@example.com", digest)

	res, body := c.do("GET", "/admin/", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "op@example.com", body["email"])

	res, _ = c.do("GET", "/admin/logout", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	// The session cookie is gone; protected routes reject the request.
	res, body = c.do("GET", "/admin/", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, warden.TextCodeUnauthorizedAccess, body["error"])
}

func TestAdminRegisterValidation(t *testing.T) {
	c := newTestClient(t)

	res, body := c.do("POST", "/admin/register", map[string]string{
		"email": "not-an-email",
		"hash":  "x",
	})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, warden.TextCodeBadRequest, body["error"])
}

func TestAdminDuplicateRegistration(t *testing.T) {
	c := newTestClient(t)
	digest := warden.Hash("pw")

	c.registerVerifiedAdmin("op@example.com", digest)

	res, body := c.do("POST", "/admin/register", map[string]string{
		"email": "op@example.com",
		"hash":  digest,
	})
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, warden.TextCodeDataConflict, body["error"])
}

func TestAdminLoginBeforeVerification(t *testing.T) {
	c := newTestClient(t)
	digest := warden.Hash("pw")

	res, _ := c.do("POST", "/admin/register", map[string]string{
		"email": "op@example.com",
		"hash":  digest,
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res, body := c.do("POST", "/admin/login", map[string]string{
		"email": "op@example.com",
		"hash":  digest,
	})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, warden.TextCodeAccountNotVerified, body["error"])
}

func TestAdminLockoutOverHTTP(t *testing.T) {
	c := newTestClient(t)
	digest := warden.Hash("pw")
	c.registerVerifiedAdmin("op@example.com", digest)

	for i := 0; i < warden.AdminMaxLoginAttempts; i++ {
		res, body := c.do("POST", "/admin/login", map[string]string{
			"email": "op@example.com",
			"hash":  warden.Hash("wrong"),
		})
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		assert.Equal(t, warden.TextCodeInvalidCredentials, body["error"])
	}

	res, body := c.do("POST", "/admin/login", map[string]string{
		"email": "op@example.com",
		"hash":  digest,
	})
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.Equal(t, warden.TextCodeAccountLocked, body["error"])
}

func TestAppManagement(t *testing.T) {
	c := newTestClient(t)
	digest := warden.Hash("pw")
	c.registerVerifiedAdmin("op@example.com", digest)
	c.loginAdmin("op@example.com", digest)

	appID := c.createApp("shopfront")

	// Duplicate name for the same owner conflicts.
	res, body := c.do("POST", "/admin/app", map[string]any{
		"name":                  "shopfront",
		"access_token_exp_sec":  600,
		"refresh_token_exp_sec": 3600,
		"max_login_attempts":    5,
	})
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, warden.TextCodeDataConflict, body["error"])

	// Setting the key material by hand is rejected.
	res, body = c.do("POST", "/admin/app", map[string]any{
		"name":                  "another",
		"access_token_exp_sec":  600,
		"refresh_token_exp_sec": 3600,
		"max_login_attempts":    5,
		"api_key_hash":          "sneaky",
	})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, warden.TextCodeBadRequest, body["error"])

	res, body = c.do("GET", "/admin/app", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	apps := body["apps"].([]any)
	assert.Len(t, apps, 1)

	res, body = c.do("PATCH", "/admin/app/"+appID, map[string]any{
		"name":                  "storefront",
		"access_token_exp_sec":  900,
		"refresh_token_exp_sec": 3600,
		"max_login_attempts":    5,
	})
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "storefront", body["name"])

	res, _ = c.do("DELETE", "/admin/app/"+appID, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestUserLifecycle(t *testing.T) {
	c := newTestClient(t)
	adminDigest := warden.Hash("admin pw")
	c.registerVerifiedAdmin("op@example.com", adminDigest)
	c.loginAdmin("op@example.com", adminDigest)
	appID := c.createApp("shopfront")
	c.issueAppKey(appID)

	// Drop the admin session so the user flow stands on its own cookies.
	delete(c.cookies, warden.CookieAccessToken)
	delete(c.cookies, warden.CookieRefreshToken)

	userDigest := warden.Hash("user pw")
	res, body := c.do("POST", "/user/register", map[string]string{
		"email": "user@example.com",
		"hash":  userDigest,
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	userID := body["id"].(string)

	tenantID, err := uuid.Parse(c.headers[warden.HeaderAPIID])
	require.NoError(t, err)
	tenant, err := c.repo.Tenants().GetByID(context.Background(), tenantID)
	require.NoError(t, err)
	user, err := c.repo.UsersOf(tenant).GetByEmail(context.Background(), "user@example.com")
	require.NoError(t, err)

	res, _ = c.do("POST", "/user/"+userID+"/verify", map[string]string{
		"verification_code": user.PendingCode(),
	})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = c.do("POST", "/user/login", map[string]string{
		"email": "user@example.com",
		"hash":  userDigest,
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotEmpty(t, c.cookies[warden.CookieAccessToken])

	res, body = c.do("GET", "/user/", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "user@example.com", body["email"])

	// Attach an opaque payload to the account.
	res, body = c.do("PATCH", "/user/", map[string]any{
		"data": map[string]any{"theme": "dark"},
	})
	assert.Equal(t, http.StatusOK, res.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, "dark", data["theme"])
}

func TestUserRoutesRequireTenantHeaders(t *testing.T) {
	c := newTestClient(t)

	res, body := c.do("POST", "/user/register", map[string]string{
		"email": "user@example.com",
		"hash":  "x",
	})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, warden.TextCodeMissingHeaders, body["error"])

	c.headers[warden.HeaderAPIID] = "not-a-uuid"
	c.headers[warden.HeaderAPIKey] = "nope"
	res, body = c.do("POST", "/user/register", map[string]string{
		"email": "user@example.com",
		"hash":  "x",
	})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, warden.TextCodeInvalidHeaders, body["error"])
}

func TestTenantDeletionInvalidatesHeaders(t *testing.T) {
	c := newTestClient(t)
	digest := warden.Hash("pw")
	c.registerVerifiedAdmin("op@example.com", digest)
	c.loginAdmin("op@example.com", digest)
	appID := c.createApp("shopfront")
	c.issueAppKey(appID)

	res, _ := c.do("DELETE", "/admin/app/"+appID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	// Previously working tenant headers now answer invalid_headers.
	res, body := c.do("POST", "/user/register", map[string]string{
		"email": "user@example.com",
		"hash":  "x",
	})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, warden.TextCodeInvalidHeaders, body["error"])
}

func TestAdminDeleteCascadesOverHTTP(t *testing.T) {
	c := newTestClient(t)
	digest := warden.Hash("pw")
	c.registerVerifiedAdmin("op@example.com", digest)
	c.loginAdmin("op@example.com", digest)
	appID := c.createApp("shopfront")
	c.issueAppKey(appID)

	res, _ := c.do("DELETE", "/admin/", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	assert.Empty(t, c.repo.admins)
	assert.Empty(t, c.repo.tenants)
	assert.Empty(t, c.repo.partitions)
}
