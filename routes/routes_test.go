package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/user-auth-api/app"
	"github.com/upb/user-auth-api/config"
	"github.com/upb/user-auth-api/models"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			APIPrefix:       "/api/v1",
			ShutdownTimeout: 5 * time.Second,
		},
		Database: config.DatabaseConfig{
			Driver:           config.DriverSQLite,
			ConnectionString: filepath.Join(t.TempDir(), "routes.db") + "?_foreign_keys=ON",
			AutoMigrate:      true,
		},
		Auth: config.AuthConfig{
			LoginTokenKey:     "login-key",
			SecureTokenKey:    "secure-key",
			LoginTokenTTL:     time.Hour,
			LoginTokenMaxTTL:  time.Hour,
			SecureTokenTTL:    time.Hour,
			SecureTokenMaxTTL: time.Hour,
			LoginCookieName:   "api_access_token",
			SecureCookieName:  "secure_access_token",
			BcryptCost:        4,
		},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}, MaxAge: 300},
		RateLimit: config.RateLimitConfig{Enabled: true, LoginPerMinute: 100},
		Audit:     config.AuditConfig{BufferSize: 64, WorkerCount: 1},
		Observability: config.ObservabilityConfig{
			LogLevel: "debug",
		},
	}
}

type apiFixture struct {
	deps   *app.Dependencies
	server *httptest.Server
	client *http.Client
}

func newAPIFixture(t *testing.T, cfg *config.Config) *apiFixture {
	t.Helper()
	ctx := context.Background()

	deps, err := app.NewDependencies(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(ctx) })

	srv := httptest.NewServer(SetupRoutes(deps))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &apiFixture{
		deps:   deps,
		server: srv,
		client: &http.Client{Jar: jar},
	}
}

func (f *apiFixture) url(path string) string {
	return f.server.URL + "/api/v1" + path
}

func (f *apiFixture) do(t *testing.T, method, path, contentType, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.url(path), strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *apiFixture) signUp(t *testing.T, username, email, password string) {
	t.Helper()
	body := `{"username":"` + username + `","email":"` + email + `","password":"` + password + `"}`
	resp := f.do(t, http.MethodPost, "/users/", "application/json", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func (f *apiFixture) login(t *testing.T, identifier, password string) *http.Response {
	t.Helper()
	form := url.Values{"username": {identifier}, "password": {password}}
	return f.do(t, http.MethodPost, "/login/access-token", "application/x-www-form-urlencoded", form.Encode())
}

func TestSessionLifecycle(t *testing.T) {
	f := newAPIFixture(t, testConfig(t))

	f.signUp(t, "alice", "alice@example.com", "correct-horse")

	resp := f.do(t, http.MethodGet, "/users/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))

	resp = f.login(t, "alice@example.com", "wrong-password")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.login(t, "alice", "correct-horse")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, resp.Cookies(), 2)

	resp = f.do(t, http.MethodGet, "/users/me", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
	assert.Equal(t, "alice", me.Data["username"])

	resp = f.do(t, http.MethodGet, "/roles/admin/all-users", "", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/logout", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/users/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminAccess(t *testing.T) {
	f := newAPIFixture(t, testConfig(t))
	ctx := context.Background()

	f.signUp(t, "root", "root@example.com", "correct-horse")
	f.signUp(t, "bob", "bob@example.com", "correct-horse")

	admin, err := f.deps.RBAC.SeedDefaults(ctx)
	require.NoError(t, err)
	root, err := f.deps.Users.GetUserByUsername(ctx, "root")
	require.NoError(t, err)
	_, err = f.deps.RBAC.GrantRole(ctx, nil, root.ID, admin.ID, nil)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, f.login(t, "root", "correct-horse").StatusCode)

	resp := f.do(t, http.MethodGet, "/roles/admin/all-users", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed struct {
		Data struct {
			Users []map[string]interface{} `json:"users"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	assert.Len(t, listed.Data.Users, 2)

	resp = f.do(t, http.MethodGet, "/roles/admin/permissions", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var catalog struct {
		Data struct {
			Permissions []map[string]interface{} `json:"permissions"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&catalog))
	assert.Len(t, catalog.Data.Permissions, len(models.DefaultPermissionCatalog()))

	resp = f.do(t, http.MethodGet, "/roles/admin/shadow-user/bob", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// the login cookie now names bob; the secure cookie still names root
	resp = f.do(t, http.MethodGet, "/users/me", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
	assert.Equal(t, "bob", me.Data["username"])

	resp = f.do(t, http.MethodDelete, "/users/me", "", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRoleWritesNeedManagePermission(t *testing.T) {
	f := newAPIFixture(t, testConfig(t))
	ctx := context.Background()

	f.signUp(t, "viewer", "viewer@example.com", "correct-horse")

	admin, err := f.deps.RBAC.SeedDefaults(ctx)
	require.NoError(t, err)
	readOnly, err := f.deps.RBAC.CreateRole(ctx, "Viewer", "read only")
	require.NoError(t, err)
	require.NoError(t, f.deps.RBAC.AttachPermission(ctx, readOnly.ID, models.PermissionAdminSeeAllUsers))
	viewer, err := f.deps.Users.GetUserByUsername(ctx, "viewer")
	require.NoError(t, err)
	_, err = f.deps.RBAC.GrantRole(ctx, nil, viewer.ID, readOnly.ID, nil)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, f.login(t, "viewer", "correct-horse").StatusCode)

	resp := f.do(t, http.MethodGet, "/roles/admin/all-users", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := `{"role_id":"` + admin.ID.String() + `"}`
	resp = f.do(t, http.MethodPost, "/roles/admin/users/"+viewer.ID.String()+"/roles", "application/json", body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/roles/admin/roles", "application/json", `{"role_name":"Sneaky"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	assert.False(t, f.deps.RBAC.HasPermission(ctx, viewer, models.PermissionShadowUser, nil))
}

func TestSecureContextRequiredForDelete(t *testing.T) {
	f := newAPIFixture(t, testConfig(t))
	f.signUp(t, "carol", "carol@example.com", "correct-horse")
	require.Equal(t, http.StatusOK, f.login(t, "carol", "correct-horse").StatusCode)

	// drop the secure cookie
	u, _ := url.Parse(f.server.URL)
	var login *http.Cookie
	for _, c := range f.client.Jar.Cookies(u) {
		if c.Name == "api_access_token" {
			login = c
		}
	}
	require.NotNil(t, login)

	req, err := http.NewRequest(http.MethodDelete, f.url("/users/me"), nil)
	require.NoError(t, err)
	req.AddCookie(login)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/users/me", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.login(t, "carol", "correct-horse")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.LoginPerMinute = 2
	f := newAPIFixture(t, cfg)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusUnauthorized, f.login(t, "nobody", "pw").StatusCode)
	}
	resp := f.login(t, "nobody", "pw")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestNotFoundAndHealth(t *testing.T) {
	f := newAPIFixture(t, testConfig(t))

	resp := f.do(t, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	healthResp, err := http.Get(f.server.URL + "/healthz")
	require.NoError(t, err)
	defer healthResp.Body.Close()
	assert.Equal(t, http.StatusOK, healthResp.StatusCode)
	assert.Equal(t, "DENY", healthResp.Header.Get("X-Frame-Options"))
	assert.NotEmpty(t, healthResp.Header.Get("X-Request-Id"))
}
