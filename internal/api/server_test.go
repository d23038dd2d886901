package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/propctl/internal/device"
	"github.com/nerrad567/propctl/internal/infrastructure/config"
	"github.com/nerrad567/propctl/internal/infrastructure/database"
	"github.com/nerrad567/propctl/internal/infrastructure/logging"
	"github.com/nerrad567/propctl/internal/session"
	"github.com/nerrad567/propctl/internal/zone"
	_ "github.com/nerrad567/propctl/migrations"
)

// ─── Fixtures ─────────────────────────────────────────────────────

type fakeStates struct{ states []int }

func (f fakeStates) States() []int { return append([]int(nil), f.states...) }

type fakeCounter int

func (f fakeCounter) Count() int { return int(f) }

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type panicZones struct{}

func (panicZones) Statuses() []zone.Status             { panic("statuses exploded") }
func (panicZones) Status(int) (zone.Status, error)      { return zone.Status{}, nil }
func (panicZones) Trigger(int, string) (string, error) { return "", nil }

type testEnv struct {
	srv     *Server
	handler http.Handler
	zones   *zone.Machine
	runs    *zone.SQLiteRepository
	history *device.SQLiteStateHistoryRepository
	backlog *session.Backlog
	release chan struct{}
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "json"}, "test", io.Discard)
}

// newTestEnv wires a real zone machine (zone 1 blocks until release is
// closed, zone 2 finishes at once) and journals on a migrated database.
func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()

	db, err := database.Open(database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	env := &testEnv{
		zones:   zone.NewMachine(),
		runs:    zone.NewSQLiteRepository(db.DB),
		history: device.NewSQLiteStateHistoryRepository(db.DB),
		backlog: session.NewBacklog(4),
		release: make(chan struct{}),
	}
	env.zones.SetObserver(zone.NewJournal(env.runs, nil))

	if err := env.zones.Register(1, "thunder", func(ctx context.Context) error {
		select {
		case <-env.release:
		case <-ctx.Done():
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := env.zones.Register(2, "", func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		select {
		case <-env.release:
		default:
			close(env.release)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = env.zones.Drain(ctx) //nolint:errcheck // test cleanup
	})

	deps := Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5}},
		WebSocket: config.WebSocketConfig{Enabled: true, Path: "/ws", MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:    testLogger(),
		States:    fakeStates{states: []int{0, 0, 1, 0, 0, 0, 0, 0, 0, 0}},
		Zones:     env.zones,
		Runs:      env.runs,
		History:   env.history,
		Clients:   fakeCounter(3),
		Backlog:   env.backlog,
		Version:   "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	env.srv = srv
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ─── Construction ─────────────────────────────────────────────────

func TestNewRequiresDeps(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{States: fakeStates{}, Zones: zone.NewMachine()}},
		{"no states", Deps{Logger: testLogger(), Zones: zone.NewMachine()}},
		{"no zones", Deps{Logger: testLogger(), States: fakeStates{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

func TestStartAndClose(t *testing.T) {
	env := newTestEnv(t, nil)

	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	resp, err := http.Get("http://" + env.srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := env.srv.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestStartPortInUse(t *testing.T) {
	first := newTestEnv(t, nil)
	if err := first.srv.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer first.srv.Close() //nolint:errcheck // test cleanup

	_, portStr, err := net.SplitHostPort(first.srv.Addr())
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}

	second := newTestEnv(t, func(d *Deps) { d.Config.Port = port })
	if err := second.srv.Start(context.Background()); err == nil {
		second.srv.Close() //nolint:errcheck // test cleanup
		t.Fatal("Start() on a bound port should fail")
	}
}

// ─── Health & state ───────────────────────────────────────────────

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		env := newTestEnv(t, func(d *Deps) {
			d.Health = map[string]HealthChecker{
				"database": checkerFunc(func(context.Context) error { return nil }),
			}
		})
		rec := env.do(t, http.MethodGet, "/api/v1/health")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		got := decode[healthResponse](t, rec)
		if got.Status != "ok" || got.Version != "test" || got.Clients != 3 {
			t.Errorf("health = %+v", got)
		}
		if got.Components["database"] != "ok" {
			t.Errorf("components = %v", got.Components)
		}
	})

	t.Run("degraded", func(t *testing.T) {
		env := newTestEnv(t, func(d *Deps) {
			d.Health = map[string]HealthChecker{
				"database": checkerFunc(func(context.Context) error { return nil }),
				"mqtt":     checkerFunc(func(context.Context) error { return errors.New("mqtt: client not connected") }),
			}
		})
		rec := env.do(t, http.MethodGet, "/api/v1/health")
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
		got := decode[healthResponse](t, rec)
		if got.Status != "degraded" || got.Components["mqtt"] != "mqtt: client not connected" {
			t.Errorf("health = %+v", got)
		}
	})
}

func TestGetState(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/state")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[stateResponse](t, rec)
	if got.Devices != 10 || got.States[2] != 1 {
		t.Errorf("state = %+v", got)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
}

func TestGetHistory(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	for _, e := range []device.StateHistoryEntry{
		{Device: 3, States: []int{0, 0, 1}, Source: device.StateHistorySourceSerial},
		{Device: 0, States: []int{0, 1, 2}, Source: device.StateHistorySourceClient},
	} {
		if err := env.history.RecordStateChange(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/v1/history?limit=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[struct {
		History []device.StateHistoryEntry `json:"history"`
		Count   int                        `json:"count"`
	}](t, rec)
	if got.Count != 1 || got.History[0].Device != 0 {
		t.Errorf("history = %+v, want newest snapshot only", got)
	}

	for _, limit := range []string{"0", "201", "ten"} {
		if rec := env.do(t, http.MethodGet, "/api/v1/history?limit="+limit); rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s status = %d, want 400", limit, rec.Code)
		}
	}

	disabled := newTestEnv(t, func(d *Deps) { d.History = nil })
	if rec := disabled.do(t, http.MethodGet, "/api/v1/history"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled history status = %d, want 503", rec.Code)
	}
}

// ─── Zones ────────────────────────────────────────────────────────

func TestTriggerZone(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/zones/1/trigger")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first trigger status = %d, want 202", rec.Code)
	}
	got := decode[triggerResponse](t, rec)
	if got.RunID == "" || got.Zone != 1 {
		t.Errorf("trigger response = %+v", got)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/zones/1/trigger")
	if rec.Code != http.StatusConflict {
		t.Errorf("busy trigger status = %d, want 409", rec.Code)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/zones/9/trigger", http.StatusNotFound},
		{"/api/v1/zones/0/trigger", http.StatusBadRequest},
		{"/api/v1/zones/abc/trigger", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := env.do(t, http.MethodPost, tt.path); rec.Code != tt.want {
			t.Errorf("POST %s status = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/zones/1/trigger"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET trigger status = %d, want 405", rec.Code)
	}
}

func TestTriggerZoneWhileStopping(t *testing.T) {
	env := newTestEnv(t, nil)
	close(env.release)
	if err := env.zones.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/zones/2/trigger"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestListAndGetZones(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.zones.Trigger(1, zone.SourceSerial); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/zones")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	list := decode[struct {
		Zones []zone.Status `json:"zones"`
		Count int           `json:"count"`
	}](t, rec)
	if list.Count != 2 || list.Zones[0].Name != "thunder" || !list.Zones[0].Running || list.Zones[1].Running {
		t.Errorf("zones = %+v", list)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/zones/2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[zone.Status](t, rec); got.ID != 2 || got.Name != "zone 2" {
		t.Errorf("zone 2 = %+v", got)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/zones/7"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown zone status = %d, want 404", rec.Code)
	}
}

func TestZoneRuns(t *testing.T) {
	env := newTestEnv(t, nil)

	runID, err := env.zones.Trigger(2, zone.SourceClient)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		run, err := env.runs.GetRun(context.Background(), runID)
		return err == nil && run.Status == zone.StatusCompleted
	})

	rec := env.do(t, http.MethodGet, "/api/v1/zones/2/runs")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	list := decode[struct {
		Runs  []zone.Run `json:"runs"`
		Count int        `json:"count"`
	}](t, rec)
	if list.Count != 1 || list.Runs[0].ID != runID || list.Runs[0].Source != zone.SourceClient {
		t.Errorf("runs = %+v", list)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/runs/"+runID)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET run status = %d", rec.Code)
	}
	if got := decode[zone.Run](t, rec); got.Zone != 2 || got.DurationMS == nil {
		t.Errorf("run = %+v", got)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/runs/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("missing run status = %d, want 404", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/zones/5/runs"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown zone runs status = %d, want 404", rec.Code)
	}

	disabled := newTestEnv(t, func(d *Deps) { d.Runs = nil })
	if rec := disabled.do(t, http.MethodGet, "/api/v1/zones/1/runs"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled journal status = %d, want 503", rec.Code)
	}
}

// ─── Middleware ───────────────────────────────────────────────────

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/state")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not assigned")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
	req.Header.Set("X-Request-ID", "cue-42")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "cue-42" {
		t.Errorf("X-Request-ID = %q, want cue-42", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Zones = panicZones{} })

	rec := env.do(t, http.MethodGet, "/api/v1/zones")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decode[Error](t, rec); got.Code != ErrCodeInternal {
		t.Errorf("error body = %+v", got)
	}
}

// ─── WebSocket ────────────────────────────────────────────────────

func TestWebSocketClientJoinsBacklog(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer ws.Close()

	var conn session.Conn
	waitFor(t, func() bool {
		c, ok := env.backlog.TryAccept()
		conn = c
		return ok
	})
	defer conn.Close() //nolint:errcheck // test cleanup

	if err := conn.Write([]byte("@HDP0010000000?%")); err != nil {
		t.Fatalf("conn.Write() error = %v", err)
	}
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if msgType != websocket.TextMessage || string(data) != "@HDP0010000000?%" {
		t.Errorf("got (%d, %q)", msgType, data)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("@ZSA2?")); err != nil {
		t.Fatal(err)
	}
	var got []byte
	waitFor(t, func() bool {
		chunk, err := conn.Poll()
		if err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
		got = append(got, chunk...)
		return len(got) > 0
	})
	if string(got) != "@ZSA2?" {
		t.Errorf("Poll() = %q, want @ZSA2?", got)
	}
}

func TestWebSocketDisabled(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.WebSocket.Enabled = false })

	for _, path := range []string{"/ws", "/panel/"} {
		if rec := env.do(t, http.MethodGet, path); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, rec.Code)
		}
	}
}

func TestPanelMounted(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/panel")
	if rec.Code != http.StatusMovedPermanently || rec.Header().Get("Location") != "/panel/" {
		t.Errorf("GET /panel = %d -> %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = env.do(t, http.MethodGet, "/panel/config.json")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ws_path":"/ws"`) {
		t.Errorf("GET /panel/config.json = %d %q", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/panel/")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<!DOCTYPE html>") {
		t.Errorf("GET /panel/ = %d", rec.Code)
	}
}

func TestWebSocketPlainHTTP(t *testing.T) {
	env := newTestEnv(t, nil)

	// Not an upgrade request: gorilla answers 400 and nothing is queued.
	if rec := env.do(t, http.MethodGet, "/ws"); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if env.backlog.Pending() != 0 {
		t.Error("failed upgrade should not queue a client")
	}
}
