package tests

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
	"gatehouse/internal/api"
	"gatehouse/internal/bootstrap"
	"gatehouse/internal/config"
	"gatehouse/internal/flash"
	"gatehouse/internal/hosting"
	"gatehouse/internal/testutil"
	"gatehouse/internal/update"
	"gatehouse/internal/user"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type app struct {
	t       *testing.T
	router  http.Handler
	store   *user.Store
	flashes *flash.Store
}

// newApp provisions a fresh instance the way the serve command does.
func newApp(t *testing.T) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Server.JWTSecret = "secret"

	store := user.NewStore(testutil.NewDB(t))
	if _, err := bootstrap.Provision(context.Background(), store, cfg); err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	flashes := flash.NewStore(rdb, time.Hour)
	dispatcher := action.NewDispatcher(action.DefaultRegistry(), store, hosting.NewClient(cfg.Hosting),
		&update.GitPuller{Dir: t.TempDir()}, flashes)
	dispatcher.DefaultRole = cfg.App.DefaultRole
	r := api.SetupRouter(api.Deps{
		Config:     cfg,
		Redis:      rdb,
		Store:      store,
		Flashes:    flashes,
		Dispatcher: dispatcher,
	})
	return &app{t: t, router: api.RateLimited(r, 0), store: store, flashes: flashes}
}

func (a *app) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *app) postJSON(target string, body map[string]string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", target, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return a.do(req)
}

func (a *app) login(identity, password string) string {
	a.t.Helper()
	w := a.postJSON("/auth/login", map[string]string{"identity": identity, "password": password})
	if w.Code != http.StatusOK {
		a.t.Fatalf("login as %s failed: %d %s", identity, w.Code, w.Body.String())
	}
	var resp api.LoginResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp.Token
}

func (a *app) act(token string, form url.Values) flash.Message {
	a.t.Helper()
	req := httptest.NewRequest("POST", "/action", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "session_token", Value: token})
	w := a.do(req)
	if w.Code != http.StatusFound {
		a.t.Fatalf("expected redirect from /action, got %d: %s", w.Code, w.Body.String())
	}
	u := a.userFromToken(token)
	msgs, err := a.flashes.Pop(context.Background(), u.ID)
	if err != nil || len(msgs) != 1 {
		a.t.Fatalf("expected exactly one flash, got %v (%v)", msgs, err)
	}
	return msgs[0]
}

func (a *app) userFromToken(token string) *user.User {
	a.t.Helper()
	req := httptest.NewRequest("GET", "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := a.do(req)
	var me struct {
		Username string `json:"username"`
	}
	json.Unmarshal(w.Body.Bytes(), &me)
	u, err := a.store.FindUserByUsername(context.Background(), me.Username)
	if err != nil {
		a.t.Fatalf("lookup %q failed: %v", me.Username, err)
	}
	return u
}

func TestBootstrappedOwnerManagesRegisteredUser(t *testing.T) {
	a := newApp(t)

	w := a.postJSON("/auth/register", map[string]string{"username": "alice", "email": "alice@example.com", "password": "pw"})
	if w.Code != http.StatusCreated {
		t.Fatalf("register failed: %d %s", w.Code, w.Body.String())
	}
	alice := a.login("alice@example.com", "pw")
	admin := a.login("admin", "admin")

	// Registered members cannot reach the admin panel.
	req := httptest.NewRequest("GET", "/admin", nil)
	req.AddCookie(&http.Cookie{Name: "session_token", Value: alice})
	if w := a.do(req); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for member on /admin, got %d", w.Code)
	}

	msg := a.act(admin, url.Values{"action": {"update_user_role"}, "target_user": {"alice"}, "target_role": {"admin"}})
	if msg.Category != "success" {
		t.Fatalf("expected promotion to succeed, got %+v", msg)
	}

	// The promoted user now sees the panel but cannot touch the owner.
	req = httptest.NewRequest("GET", "/admin", nil)
	req.AddCookie(&http.Cookie{Name: "session_token", Value: alice})
	if w := a.do(req); w.Code != http.StatusOK {
		t.Errorf("expected 200 for promoted admin, got %d", w.Code)
	}
	msg = a.act(alice, url.Values{"action": {"remove_user_role"}, "target_user": {"admin"}, "target_role": {"member"}})
	if msg.Category != "danger" {
		t.Errorf("expected admin to be denied against the owner, got %+v", msg)
	}

	msg = a.act(admin, url.Values{"action": {"remove_user_role"}, "target_user": {"admin"}, "target_role": {"owner"}})
	if msg.Text != "cannot modify your highest role." {
		t.Errorf("expected self-demotion to be refused, got %+v", msg)
	}
}

func TestApplicationActionsWithoutHosting(t *testing.T) {
	a := newApp(t)
	admin := a.login("admin", "admin")
	msg := a.act(admin, url.Values{"action": {"application_info"}})
	if msg.Category != "info" || !strings.Contains(msg.Text, "configuration incomplete") {
		t.Errorf("expected not-configured info flash, got %+v", msg)
	}
}

func TestBootstrapIsIdempotentAcrossRestarts(t *testing.T) {
	a := newApp(t)
	res, err := bootstrap.Provision(context.Background(), a.store, config.Default())
	if err != nil {
		t.Fatalf("second provision failed: %v", err)
	}
	if res.AdminCreated || len(res.RolesCreated) != 0 {
		t.Errorf("expected no changes on second run, got %+v", res)
	}
	if n, _ := a.store.CountUsers(context.Background()); n != 1 {
		t.Errorf("expected one user, got %d", n)
	}
}

func TestDefaultRoleCannotBeRemoved(t *testing.T) {
	a := newApp(t)
	w := a.postJSON("/auth/register", map[string]string{"username": "bob", "email": "bob@example.com", "password": "pw"})
	if w.Code != http.StatusCreated {
		t.Fatalf("register failed: %d %s", w.Code, w.Body.String())
	}
	admin := a.login("admin", "admin")

	msg := a.act(admin, url.Values{"action": {"remove_user_role"}, "target_user": {"bob"}, "target_role": {"member"}})
	if msg.Category != "danger" || msg.Text != "Cannot remove the default role." {
		t.Errorf("expected default role removal to be refused, got %+v", msg)
	}
	bob, err := a.store.FindUserByUsername(context.Background(), "bob")
	if err != nil {
		t.Fatalf("lookup bob failed: %v", err)
	}
	if !bob.HasRole("member") || len(bob.Roles) != 1 {
		t.Errorf("expected bob to keep only member, got %v", bob.RoleNames())
	}

	// bob can still reach the member settings page.
	bobToken := a.login("bob", "pw")
	req := httptest.NewRequest("GET", "/settings", nil)
	req.AddCookie(&http.Cookie{Name: "session_token", Value: bobToken})
	if w := a.do(req); w.Code != http.StatusOK {
		t.Errorf("expected 200 on /settings, got %d", w.Code)
	}
}
