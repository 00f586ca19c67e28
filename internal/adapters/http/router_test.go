package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/dkeye/Board/internal/adapters/auth"
	"github.com/dkeye/Board/internal/adapters/authz"
	"github.com/dkeye/Board/internal/app"
	"github.com/dkeye/Board/internal/app/orch"
	"github.com/dkeye/Board/internal/config"
	"github.com/dkeye/Board/internal/core"
	"github.com/dkeye/Board/internal/domain"
)

const testPolicy = `
p, *, project:1, view
p, user:1, project:2, view
`

type testEnv struct {
	srv      *httptest.Server
	router   *gin.Engine
	verifier *auth.JWTVerifier
	orch     *orch.Orchestrator
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Mode:       "test",
		Secret:     "cookie-secret",
		ReadLimit:  32768,
		PingPeriod: 5 * time.Second,
		PongWait:   10 * time.Second,
		WriteWait:  time.Second,
		SendBuffer: 64,
		Limits:     config.LimitsConfig{EditingRate: 100, EditingBurst: 100},
		Internal:   config.InternalConfig{Token: "internal-secret"},
	}
	if mutate != nil {
		mutate(cfg)
	}

	verifier, err := auth.NewJWTVerifier("jwt-secret", "")
	if err != nil {
		t.Fatal(err)
	}
	checker, err := authz.NewCheckerFromPolicy(testPolicy)
	if err != nil {
		t.Fatal(err)
	}
	reg := app.NewRegistry()
	hub := core.NewHub(core.HubOptions{OnDrop: app.DropHandler(reg, app.SimplePolicy{})})
	o := &orch.Orchestrator{
		Gateway: &app.Gateway{
			Verifier: verifier,
			Profiles: auth.StaticProfiles{1: {Name: "Ann"}, 2: {Name: "Bob"}},
			Registry: reg,
			Hub:      hub,
		},
		Registry: reg,
		Hub:      hub,
		Access:   checker,
	}

	ctx, cancel := context.WithCancel(context.Background())
	router := SetupRouter(ctx, cfg, o)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &testEnv{srv: srv, router: router, verifier: verifier, orch: o}
}

func (e *testEnv) token(t *testing.T, id domain.UserID) string {
	t.Helper()
	tok, err := e.verifier.IssueToken(id, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (e *testEnv) wsURL(token string) string {
	u := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/api/ws"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func (e *testEnv) dial(t *testing.T, id domain.UserID) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL(e.token(t, id)), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

// readUntil skips frames until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("bad frame %s: %v", data, err)
		}
		if m["type"] == typ {
			return m
		}
	}
}

func userIDs(t *testing.T, m map[string]any) []float64 {
	t.Helper()
	raw, ok := m["users"].([]any)
	if !ok {
		t.Fatalf("frame has no users: %v", m)
	}
	out := make([]float64, 0, len(raw))
	for _, u := range raw {
		out = append(out, u.(map[string]any)["id"].(float64))
	}
	return out
}

func TestWS_MissingTokenIsRefused(t *testing.T) {
	env := newTestEnv(t, nil)
	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL(""), nil)
	if err == nil {
		t.Fatal("expected the handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestWS_RejectedTokenIsClosed(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL("not-a-jwt"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, 4401) {
		t.Errorf("expected close code 4401, got %v", err)
	}
	if n := env.orch.Stats().Sessions; n != 0 {
		t.Errorf("rejected connection registered %d sessions", n)
	}
}

func TestWS_JoinEditDisconnect(t *testing.T) {
	env := newTestEnv(t, nil)
	ann := env.dial(t, 1)
	bob := env.dial(t, 2)

	send(t, ann, map[string]any{"type": "join", "projectId": 1})
	state := readUntil(t, ann, core.TypeRoomState)
	if state["room"] != "project:1" {
		t.Errorf("room_state room = %v", state["room"])
	}

	send(t, bob, map[string]any{"type": "join", "projectId": 1})
	readUntil(t, bob, core.TypeRoomState)
	joined := readUntil(t, ann, core.TypePresenceJoined)
	for len(userIDs(t, joined)) < 2 {
		joined = readUntil(t, ann, core.TypePresenceJoined)
	}
	if ids := userIDs(t, joined); ids[0] != 1 || ids[1] != 2 {
		t.Errorf("presence order = %v, want [1 2]", ids)
	}

	send(t, ann, map[string]any{"type": "editing:start", "projectId": 1, "taskId": 42})
	started := readUntil(t, bob, core.TypeEditingStarted)
	if started["taskId"] != float64(42) || started["userId"] != float64(1) || started["userName"] != "Ann" {
		t.Errorf("unexpected editing:started %v", started)
	}

	_ = ann.Close()

	stopped := readUntil(t, bob, core.TypeEditingStopped)
	if stopped["taskId"] != float64(42) {
		t.Errorf("expected editing:stopped for 42, got %v", stopped)
	}
	left := readUntil(t, bob, core.TypePresenceLeft)
	if ids := userIDs(t, left); len(ids) != 1 || ids[0] != 2 {
		t.Errorf("presence:left users = %v, want [2]", ids)
	}
}

func TestWS_JoinDeniedKeepsConnection(t *testing.T) {
	env := newTestEnv(t, nil)
	bob := env.dial(t, 2)

	send(t, bob, map[string]any{"type": "join", "projectId": 2})
	m := readUntil(t, bob, "error")
	if m["error"] != "forbidden" || m["room"] != "project:2" {
		t.Errorf("unexpected error frame %v", m)
	}

	send(t, bob, map[string]any{"type": "join", "projectId": 99})
	m = readUntil(t, bob, "notice")
	if m["code"] != "not_found" || m["room"] != "project:99" {
		t.Errorf("unexpected notice %v", m)
	}

	send(t, bob, map[string]any{"type": "ping"})
	readUntil(t, bob, "pong")
}

func TestWS_SoftNotices(t *testing.T) {
	env := newTestEnv(t, nil)
	ann := env.dial(t, 1)

	send(t, ann, map[string]any{"type": "editing:start", "projectId": 1, "taskId": 3})
	m := readUntil(t, ann, "notice")
	if m["code"] != "not_member" || m["taskId"] != float64(3) {
		t.Errorf("unexpected notice %v", m)
	}

	send(t, ann, map[string]any{"type": "presence", "projectId": 1})
	m = readUntil(t, ann, "notice")
	if m["code"] != "not_member" {
		t.Errorf("unexpected notice %v", m)
	}

	if err := ann.WriteMessage(websocket.TextMessage, []byte("{oops")); err != nil {
		t.Fatal(err)
	}
	m = readUntil(t, ann, "error")
	if m["error"] != "bad_payload" {
		t.Errorf("unexpected error %v", m)
	}

	send(t, ann, map[string]any{"type": "join"})
	m = readUntil(t, ann, "error")
	if m["error"] != "bad_payload" {
		t.Errorf("join without projectId: %v", m)
	}
}

func TestWS_EditingRateLimited(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Limits = config.LimitsConfig{EditingRate: 0.001, EditingBurst: 1}
	})
	ann := env.dial(t, 1)
	send(t, ann, map[string]any{"type": "join", "projectId": 1})
	readUntil(t, ann, core.TypeRoomState)

	send(t, ann, map[string]any{"type": "editing:start", "projectId": 1, "taskId": 1})
	readUntil(t, ann, core.TypeEditingStarted)
	send(t, ann, map[string]any{"type": "editing:start", "projectId": 1, "taskId": 2})
	m := readUntil(t, ann, "notice")
	if m["code"] != "rate_limited" {
		t.Errorf("expected rate_limited, got %v", m)
	}
}

func TestWS_WhoAmIAndLeave(t *testing.T) {
	env := newTestEnv(t, nil)
	ann := env.dial(t, 1)

	send(t, ann, map[string]any{"type": "join", "projectId": 1})
	readUntil(t, ann, core.TypeRoomState)
	send(t, ann, map[string]any{"type": "whoami"})
	m := readUntil(t, ann, "whoami")
	user := m["user"].(map[string]any)
	if user["name"] != "Ann" || user["color"] != domain.ColorFor(1) {
		t.Errorf("unexpected user %v", user)
	}
	if rooms := m["rooms"].([]any); len(rooms) != 1 || rooms[0] != "project:1" {
		t.Errorf("rooms = %v", rooms)
	}

	send(t, ann, map[string]any{"type": "presence", "projectId": 1})
	if ids := userIDs(t, readUntil(t, ann, core.TypeRoomState)); len(ids) != 1 || ids[0] != 1 {
		t.Errorf("presence resend users = %v", ids)
	}

	send(t, ann, map[string]any{"type": "leave", "projectId": 1})
	m = readUntil(t, ann, "left")
	if m["room"] != "project:1" {
		t.Errorf("left room = %v", m["room"])
	}
	if env.orch.Hub.RoomCount() != 0 {
		t.Error("room should be destroyed after the last member left")
	}
}

func do(env *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func TestHTTP_Healthz(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := do(env, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q", body.Status)
	}
}

func TestHTTP_Metrics(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := do(env, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "board_ws_connections") {
		t.Errorf("metrics not exposed: %d", rec.Code)
	}
}

func TestHTTP_Presence(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"no token", "/api/projects/1/presence", "", http.StatusUnauthorized},
		{"bad token", "/api/projects/1/presence", "junk", http.StatusUnauthorized},
		{"allowed", "/api/projects/1/presence", env.token(t, 2), http.StatusOK},
		{"forbidden", "/api/projects/2/presence", env.token(t, 2), http.StatusForbidden},
		{"unknown project", "/api/projects/3/presence", env.token(t, 1), http.StatusNotFound},
		{"bad id", "/api/projects/abc/presence", env.token(t, 1), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := do(env, req)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestHTTP_SessionCookie(t *testing.T) {
	env := newTestEnv(t, nil)
	body := bytes.NewBufferString(`{"token":"` + env.token(t, 1) + `"}`)
	rec := do(env, httptest.NewRequest(http.MethodPost, "/api/session", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("create session: %d %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("no session cookie set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/projects/1/presence", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	if rec := do(env, req); rec.Code != http.StatusOK {
		t.Errorf("presence with cookie: %d", rec.Code)
	}

	bad := do(env, httptest.NewRequest(http.MethodPost, "/api/session", bytes.NewBufferString(`{"token":"junk"}`)))
	if bad.Code != http.StatusUnauthorized {
		t.Errorf("invalid token stored: %d", bad.Code)
	}
}

func TestWS_CookieSessionRequiresSameOrigin(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.AllowedOrigins = []string{"http://app.example"}
	})
	body := bytes.NewBufferString(`{"token":"` + env.token(t, 1) + `"}`)
	rec := do(env, httptest.NewRequest(http.MethodPost, "/api/session", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("create session: %d", rec.Code)
	}
	var cookie []string
	for _, ck := range rec.Result().Cookies() {
		cookie = append(cookie, ck.Name+"="+ck.Value)
	}
	header := func(origin string) http.Header {
		h := http.Header{"Cookie": {strings.Join(cookie, "; ")}}
		if origin != "" {
			h.Set("Origin", origin)
		}
		return h
	}

	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL(""), header("http://evil.example"))
	if err == nil {
		t.Fatal("cross-origin upgrade with a cookie session must fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}

	for _, origin := range []string{"", env.srv.URL, "http://app.example"} {
		conn, _, err := websocket.DefaultDialer.Dial(env.wsURL(""), header(origin))
		if err != nil {
			t.Fatalf("origin %q: dial failed: %v", origin, err)
		}
		send(t, conn, map[string]any{"type": "whoami"})
		if m := readUntil(t, conn, "whoami"); m["user"].(map[string]any)["name"] != "Ann" {
			t.Errorf("origin %q: unexpected whoami %v", origin, m)
		}
		_ = conn.Close()
	}

	// An explicit token is not ambient, so a foreign origin may use it.
	h := http.Header{"Origin": {"http://evil.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL(env.token(t, 2)), h)
	if err != nil {
		t.Fatalf("explicit token from foreign origin: %v", err)
	}
	_ = conn.Close()
}

func TestHTTP_InternalChanges(t *testing.T) {
	env := newTestEnv(t, nil)
	ann := env.dial(t, 1)
	send(t, ann, map[string]any{"type": "join", "projectId": 1})
	readUntil(t, ann, core.TypeRoomState)

	post := func(token, body string) int {
		req := httptest.NewRequest(http.MethodPost, "/internal/projects/1/changes", bytes.NewBufferString(body))
		if token != "" {
			req.Header.Set("X-Internal-Token", token)
		}
		return do(env, req).Code
	}

	good := `{"action":"updated","entity":"task","entityId":9,"payload":{"title":"x"},"actor":"Bob"}`
	if code := post("", good); code != http.StatusForbidden {
		t.Errorf("missing internal token: %d", code)
	}
	if code := post("wrong", good); code != http.StatusForbidden {
		t.Errorf("wrong internal token: %d", code)
	}
	if code := post("internal-secret", `{"action":"moved","entity":"task","entityId":9}`); code != http.StatusBadRequest {
		t.Errorf("invalid change: %d", code)
	}
	if code := post("internal-secret", `not json`); code != http.StatusBadRequest {
		t.Errorf("bad body: %d", code)
	}
	if code := post("internal-secret", good); code != http.StatusAccepted {
		t.Fatalf("valid change: %d", code)
	}

	m := readUntil(t, ann, "task:changed")
	if m["updatedBy"] != "Bob" || m["entityId"] != float64(9) {
		t.Errorf("unexpected change frame %v", m)
	}
}
