package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"gatehouse/internal/action"
	"gatehouse/internal/config"
	"gatehouse/internal/flash"
	"gatehouse/internal/hosting"
	"gatehouse/internal/metrics"
	"gatehouse/internal/testutil"
	"gatehouse/internal/user"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type stubPuller struct{ out string }

func (s *stubPuller) Pull(ctx context.Context) (string, error) { return s.out, nil }

type recordingMailer struct {
	sent chan string
}

func (m *recordingMailer) SendWelcome(ctx context.Context, to, username string) error {
	m.sent <- to
	return nil
}

type testEnv struct {
	t       *testing.T
	cfg     *config.Config
	mr      *miniredis.Miniredis
	rdb     *redis.Client
	store   *user.Store
	flashes *flash.Store
	mailer  *recordingMailer
	metrics *metrics.Metrics
	router  *gin.Engine
	roles   map[string]*user.Role
	owner   *user.User
	admin   *user.User
	member  *user.User
	reloads int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := &testEnv{t: t}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/reload/") {
			env.reloads++
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"domain_name":"example.com"}`))
	}))
	t.Cleanup(upstream.Close)

	env.cfg = config.Default()
	env.cfg.Server.JWTSecret = "secret"
	env.cfg.App.ThemesDir = t.TempDir()
	env.cfg.Hosting = config.HostingConfig{Domain: "example.com", Username: "me", Token: "tok", APIBase: upstream.URL}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	env.mr = mr
	env.rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { env.rdb.Close() })

	env.store = user.NewStore(testutil.NewDB(t))
	env.roles = testutil.SeedRoles(t, env.store)
	env.owner = testutil.SeedUser(t, env.store, "owner", env.roles, "owner", "admin", "member")
	env.admin = testutil.SeedUser(t, env.store, "admin", env.roles, "admin", "member")
	env.member = testutil.SeedUser(t, env.store, "member", env.roles, "member")

	env.flashes = flash.NewStore(env.rdb, time.Hour)
	env.mailer = &recordingMailer{sent: make(chan string, 1)}
	env.metrics = metrics.New()
	dispatcher := action.NewDispatcher(action.DefaultRegistry(), env.store, hosting.NewClient(env.cfg.Hosting), &stubPuller{out: "Already up-to-date."}, env.flashes)
	dispatcher.DefaultRole = env.cfg.App.DefaultRole
	dispatcher.OnResult = env.metrics.ObserveAction

	env.router = SetupRouter(Deps{
		Config:     env.cfg,
		Redis:      env.rdb,
		Store:      env.store,
		Flashes:    env.flashes,
		Dispatcher: dispatcher,
		Mailer:     env.mailer,
		Metrics:    env.metrics,
	})
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, target string, body any) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func formRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// login returns a session token for username via the JSON login endpoint.
func (e *testEnv) login(username string) string {
	e.t.Helper()
	w := e.do(jsonRequest(http.MethodPost, "/auth/login", map[string]string{"identity": username, "password": "pw"}))
	if w.Code != http.StatusOK {
		e.t.Fatalf("login as %s failed: %d %s", username, w.Code, w.Body.String())
	}
	var resp LoginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		e.t.Fatalf("bad login response: %v", err)
	}
	return resp.Token
}

func withCookie(req *http.Request, token string) *http.Request {
	req.AddCookie(&http.Cookie{Name: "session_token", Value: token})
	return req
}
