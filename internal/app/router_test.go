package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ff-menu/ff-menu/internal/auth"
	"github.com/ff-menu/ff-menu/internal/catalog"
	"github.com/ff-menu/ff-menu/internal/observability"
	"github.com/ff-menu/ff-menu/internal/shared"
	"github.com/ff-menu/ff-menu/jobs"
)

type memoryAdmins struct {
	user *auth.AdminUser
}

func (m *memoryAdmins) FindByUsername(_ context.Context, username string) (*auth.AdminUser, error) {
	if m.user == nil || m.user.Username != username {
		return nil, auth.ErrNotFound
	}
	return m.user, nil
}

func (m *memoryAdmins) UpsertAdmin(_ context.Context, username, hash string) (*auth.AdminUser, error) {
	m.user = &auth.AdminUser{ID: 1, Username: username, PasswordHash: hash, IsActive: true}
	return m.user, nil
}

type testServer struct {
	handler http.Handler
	cookies []*http.Cookie
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("supersecret"), bcrypt.MinCost)
	require.NoError(t, err)
	admins := &memoryAdmins{user: &auth.AdminUser{ID: 1, Username: "admin", PasswordHash: string(hash), IsActive: true}}

	cfg := &Config{AppEnv: "development", AppRequestTimeout: 5 * time.Second}
	sessions := shared.NewSessionManager(client, "menu_session", "session-secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	metrics := observability.NewMetrics()

	store := catalog.NewMemoryStore(catalog.MemorySeed{})
	svc := catalog.NewService(store, catalog.NewMenuCache(client, time.Minute), nil, metrics, nil)

	router := NewRouter(RouterParams{
		Config:         cfg,
		SessionManager: sessions,
		CSRFManager:    csrf,
		AuthHandler:    auth.NewHandler(nil, auth.NewService(admins), sessions, csrf),
		CatalogHandler: catalog.NewHandler(nil, svc, nil, catalog.HandlerConfig{}),
		JobHandler:     jobs.NewHandler(nil, nil),
		Metrics:        metrics,
	})
	return &testServer{handler: router}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set(auth.CSRFHeader, s.token)
	}
	for _, c := range s.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if cookies := rec.Result().Cookies(); len(cookies) > 0 {
		s.cookies = cookies
	}
	return rec
}

func (s *testServer) login(t *testing.T) {
	t.Helper()
	rec := s.do(http.MethodPost, "/api/auth/login", `{"username":"admin","password":"supersecret"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var info auth.SessionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.NotEmpty(t, info.CSRFToken)
	s.token = info.CSRFToken
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = srv.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "menu_import_rows_total")
}

func TestSecurityHeadersApplied(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodGet, "/api/menu", "")
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestPublicMenuNeedsNoSession(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodGet, "/api/menu", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAdminRoutesGuarded(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodGet, "/api/categories", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(http.MethodGet, "/api/jobs/health", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	srv.login(t)
	token := srv.token
	srv.token = ""
	rec = srv.do(http.MethodPost, "/api/categories", `{"name":"Pizza"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	srv.token = token
}

func TestAdminFlowPublishesMenu(t *testing.T) {
	srv := newTestServer(t)
	srv.login(t)

	rec := srv.do(http.MethodPost, "/api/categories", `{"name":"Pizza"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var category catalog.Category
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &category))

	rec = srv.do(http.MethodGet, "/api/menu", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var menu []catalog.MenuSection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &menu))
	require.Len(t, menu, 1)
	assert.Equal(t, "Pizza", menu[0].Name)

	rec = srv.do(http.MethodGet, "/api/jobs/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(http.MethodPost, "/api/auth/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = srv.do(http.MethodGet, "/api/categories", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnknownRouteIsProblem(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}
