package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/propctl/internal/infrastructure/config"
)

// fakeInflux answers /ping and records line protocol bodies sent to
// /api/v2/write.
type fakeInflux struct {
	*httptest.Server

	mu          sync.Mutex
	lines       []string
	query       string
	writeStatus int
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{writeStatus: http.StatusNoContent}
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/v2/write", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
		f.mu.Lock()
		f.query = r.URL.RawQuery
		status := f.writeStatus
		if status < 300 {
			for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				f.lines = append(f.lines, line)
			}
		}
		f.mu.Unlock()
		if status >= 300 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"code":"invalid","message":"bad line"}`))
			return
		}
		w.WriteHeader(status)
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "propctl-test-token",
		Org:           "theatre",
		Bucket:        "show",
		BatchSize:     100,
		FlushInterval: 60,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// ─── Connection ───────────────────────────────────────────────────

func TestConnect(t *testing.T) {
	srv := newFakeInflux(t)

	c, err := Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close() //nolint:errcheck // test cleanup

	if !c.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnectErrors(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		cfg := testConfig("http://127.0.0.1:1")
		cfg.Enabled = false
		if _, err := Connect(cfg); !errors.Is(err, ErrDisabled) {
			t.Errorf("Connect() error = %v, want ErrDisabled", err)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		if _, err := Connect(testConfig(url)); !errors.Is(err, ErrConnectionFailed) {
			t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
		}
	})

	t.Run("unhealthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		if _, err := Connect(testConfig(srv.URL)); !errors.Is(err, ErrConnectionFailed) {
			t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
		}
	})
}

func TestClose(t *testing.T) {
	srv := newFakeInflux(t)
	c, err := Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	c.WriteDeviceState(1, []int{1, 0}, "serial", time.Now())
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := len(srv.received()); got != 1 {
		t.Errorf("points flushed on Close = %d, want 1", got)
	}

	// Writes after Close are dropped; a second Close is harmless.
	c.WriteDeviceState(2, []int{1, 1}, "serial", time.Now())
	c.Flush()
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close = %v, want ErrNotConnected", err)
	}

	var zero Client
	if err := zero.Close(); err != nil {
		t.Errorf("Close() on zero Client = %v", err)
	}
}

// ─── Writes ───────────────────────────────────────────────────────

func TestWrites(t *testing.T) {
	srv := newFakeInflux(t)
	c, err := Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close() //nolint:errcheck // test cleanup

	at := time.Unix(1767225600, 0)
	c.WriteDeviceState(3, []int{0, 0, 1, 0}, "serial", at)
	c.WriteDeviceState(0, []int{0, 1, 2, 3}, "client", at)
	c.WriteZoneRun(2, "pepper ghost", "client", "failed", 1500*time.Millisecond, "relay stuck", at)
	c.Flush()

	waitFor(t, func() bool { return len(srv.received()) == 3 })
	got := srv.received()

	want := []string{
		`device_state,device=3,source=serial state=1i,states="0010" 1767225600000000000`,
		`device_state,device=all,source=client states="0123" 1767225600000000000`,
		`zone_run,source=client,status=failed,zone=2,zone_name=pepper\ ghost duration_ms=1500i,error="relay stuck" 1767225600000000000`,
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d:\n got %s\nwant %s", i, got[i], want[i])
		}
	}

	srv.mu.Lock()
	query := srv.query
	srv.mu.Unlock()
	if !strings.Contains(query, "org=theatre") || !strings.Contains(query, "bucket=show") {
		t.Errorf("write query = %q, want org and bucket", query)
	}
}

func TestWriteErrorsReachCallback(t *testing.T) {
	srv := newFakeInflux(t)
	srv.writeStatus = http.StatusBadRequest

	c, err := Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close() //nolint:errcheck // test cleanup

	errs := make(chan error, 4)
	c.SetOnError(func(err error) { errs <- err })

	c.WriteZoneRun(1, "zone 1", "serial", "completed", time.Second, "", time.Now())
	c.Flush()

	select {
	case err := <-errs:
		if err == nil {
			t.Error("callback got nil error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("write error not reported")
	}
}

func TestDeviceStatePointOutOfRange(t *testing.T) {
	p := deviceStatePoint(5, []int{1, 2}, "serial", time.Now())

	for _, f := range p.FieldList() {
		if f.Key == "state" {
			t.Error("state field written for a device beyond the array")
		}
	}
}
