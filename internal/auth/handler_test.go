package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ff-menu/ff-menu/internal/auth"
	"github.com/ff-menu/ff-menu/internal/shared"
	_ "github.com/ff-menu/ff-menu/testing"
)

type stubRepo struct {
	user *auth.AdminUser
}

func (s *stubRepo) FindByUsername(_ context.Context, username string) (*auth.AdminUser, error) {
	if s.user == nil || s.user.Username != username {
		return nil, auth.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) UpsertAdmin(_ context.Context, username, hash string) (*auth.AdminUser, error) {
	s.user = &auth.AdminUser{ID: 1, Username: username, PasswordHash: hash, IsActive: true}
	return s.user, nil
}

type commitWriter struct {
	http.ResponseWriter
	ctx       context.Context
	sess      *shared.Session
	manager   *shared.SessionManager
	t         *testing.T
	committed bool
}

func (w *commitWriter) WriteHeader(code int) {
	if !w.committed {
		w.committed = true
		require.NoError(w.t, w.manager.Commit(w.ctx, w.ResponseWriter, w.sess))
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *commitWriter) Write(b []byte) (int, error) {
	if !w.committed {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func newAuthRouter(t *testing.T, repo auth.Repository) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "menu_session", "session-secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")
	handler := auth.NewHandler(nil, auth.NewService(repo), sessions, csrf)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessions.Load(r.Context(), r)
			require.NoError(t, err)
			ctx := shared.ContextWithSession(r.Context(), sess)
			next.ServeHTTP(&commitWriter{ResponseWriter: w, ctx: ctx, sess: sess, manager: sessions, t: t}, r.WithContext(ctx))
		})
	})
	r.Route("/api/auth", handler.MountRoutes)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAdmin, auth.RequireCSRF(csrf, nil))
		r.Get("/api/secret", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
		r.Post("/api/secret", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	})
	return r
}

func seededRepo(t *testing.T) *stubRepo {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	require.NoError(t, err)
	return &stubRepo{user: &auth.AdminUser{ID: 1, Username: "admin", PasswordHash: string(hashed), IsActive: true}}
}

func send(router http.Handler, method, target, body string, cookies []*http.Cookie, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "menu_session" {
			return c
		}
	}
	t.Fatalf("no session cookie in response")
	return nil
}

func login(t *testing.T, router http.Handler) (*http.Cookie, auth.SessionInfo) {
	t.Helper()
	rec := send(router, http.MethodPost, "/api/auth/login", `{"username":"admin","password":"correctpass"}`, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var info auth.SessionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	return sessionCookie(t, rec), info
}

func TestLoginIssuesSessionAndToken(t *testing.T) {
	router := newAuthRouter(t, seededRepo(t))

	cookie, info := login(t, router)
	assert.True(t, info.LoggedIn)
	assert.Equal(t, "admin", info.Username)
	assert.NotEmpty(t, info.CSRFToken)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)

	rec := send(router, http.MethodGet, "/api/auth/session", "", []*http.Cookie{cookie}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var again auth.SessionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.True(t, again.LoggedIn)
	assert.Equal(t, info.CSRFToken, again.CSRFToken)
}

func TestLoginInvalidCredentials(t *testing.T) {
	router := newAuthRouter(t, seededRepo(t))

	rec := send(router, http.MethodPost, "/api/auth/login", `{"username":"admin","password":"wrongpass"}`, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = send(router, http.MethodPost, "/api/auth/login", `{"username":"nobody","password":"correctpass"}`, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = send(router, http.MethodPost, "/api/auth/login", `{"username":""}`, nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginRotatesSessionID(t *testing.T) {
	router := newAuthRouter(t, seededRepo(t))
	stale := &http.Cookie{Name: "menu_session", Value: "attacker-chosen"}

	rec := send(router, http.MethodPost, "/api/auth/login", `{"username":"admin","password":"correctpass"}`, []*http.Cookie{stale}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, "attacker-chosen", sessionCookie(t, rec).Value)
}

func TestAdminRoutesRequireSessionAndCSRF(t *testing.T) {
	router := newAuthRouter(t, seededRepo(t))

	rec := send(router, http.MethodGet, "/api/secret", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	cookie, info := login(t, router)
	rec = send(router, http.MethodGet, "/api/secret", "", []*http.Cookie{cookie}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = send(router, http.MethodPost, "/api/secret", "", []*http.Cookie{cookie}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = send(router, http.MethodPost, "/api/secret", "", []*http.Cookie{cookie}, map[string]string{auth.CSRFHeader: "forged"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = send(router, http.MethodPost, "/api/secret", "", []*http.Cookie{cookie}, map[string]string{auth.CSRFHeader: info.CSRFToken})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutEndsSession(t *testing.T) {
	router := newAuthRouter(t, seededRepo(t))
	cookie, _ := login(t, router)

	rec := send(router, http.MethodPost, "/api/auth/logout", "", []*http.Cookie{cookie}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = send(router, http.MethodGet, "/api/auth/session", "", []*http.Cookie{cookie}, nil)
	var info auth.SessionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.False(t, info.LoggedIn)

	rec = send(router, http.MethodGet, "/api/secret", "", []*http.Cookie{cookie}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEnsureAdminHashesPassword(t *testing.T) {
	repo := &stubRepo{}
	svc := auth.NewService(repo)

	_, err := svc.EnsureAdmin(context.Background(), "admin", "short")
	require.Error(t, err)

	user, err := svc.EnsureAdmin(context.Background(), " admin ", "longenough")
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)
	assert.NotEqual(t, "longenough", user.PasswordHash)

	_, err = svc.Authenticate(context.Background(), "admin", "longenough")
	require.NoError(t, err)
}
