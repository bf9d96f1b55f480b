package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smolin/procwarden/internal/config"
	"github.com/smolin/procwarden/internal/events"
	"github.com/smolin/procwarden/internal/supervisor"
	"github.com/smolin/procwarden/internal/version"
)

const (
	testUser = "admin"
	testPass = "secret"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer wires a real supervisor over a shell script to the API.
func newTestServer(t *testing.T, script string) (*Server, *supervisor.Supervisor) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "app.sh")
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}
	spec := &config.AppSpec{
		Name:              "api-test",
		Executable:        "/bin/sh",
		Script:            path,
		WorkingDir:        dir,
		AutoRestart:       true,
		MaxRestarts:       3,
		RestartDelayMs:    10,
		StopGracePeriodMs: 500,
	}

	bus := events.New()
	sup := supervisor.New(spec, supervisor.Options{
		Logger:      discardLogger(),
		ChildLogger: discardLogger(),
		Bus:         bus,
	})

	server := NewServer(&Options{
		AuthUsername: testUser,
		AuthPassword: testPass,
		Supervisor:   sup,
		Bus:          bus,
		PrometheusHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	})
	return server, sup
}

func doRequest(t *testing.T, server *Server, method, path string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if auth {
		req.SetBasicAuth(testUser, testPass)
	}
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)
	return rec
}

func TestHealthNeedsNoAuth(t *testing.T) {
	server, _ := newTestServer(t, "exit 0\n")

	rec := doRequest(t, server, http.MethodGet, "/api/health", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var data HealthData
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatal(err)
	}
	if data.Status != "ok" {
		t.Errorf("expected status ok, got %q", data.Status)
	}
	if data.Version != version.Version {
		t.Errorf("expected version %q, got %q", version.Version, data.Version)
	}
	if data.GoVersion == "" || data.Platform == "" {
		t.Errorf("expected build metadata, got go=%q platform=%q", data.GoVersion, data.Platform)
	}
}

func TestStatusRequiresAuth(t *testing.T) {
	server, _ := newTestServer(t, "exit 0\n")

	if rec := doRequest(t, server, http.MethodGet, "/api/status", false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rec.Code)
	}

	rec := doRequest(t, server, http.MethodGet, "/api/status", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with credentials, got %d", rec.Code)
	}

	var data StatusData
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatal(err)
	}
	if data.App != "api-test" || data.Phase != "stopped" {
		t.Errorf("unexpected status payload: %+v", data)
	}
}

func TestStatusOfRunningChild(t *testing.T) {
	server, sup := newTestServer(t, "trap 'exit 0' TERM\nwhile :; do sleep 0.1; done\n")
	if err := sup.Start(); err != nil {
		t.Fatal(err)
	}
	defer sup.Stop(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	var data StatusData
	for time.Now().Before(deadline) {
		rec := doRequest(t, server, http.MethodGet, "/api/status", true)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
			t.Fatal(err)
		}
		if data.Phase == "running" && data.PID > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if data.Phase != "running" || data.PID == 0 || data.Launches != 1 {
		t.Errorf("unexpected running status: %+v", data)
	}
	if data.StartedAt == "" {
		t.Error("expected started_at for a running child")
	}
}

func TestRestartWhileStoppedConflicts(t *testing.T) {
	server, _ := newTestServer(t, "exit 0\n")

	rec := doRequest(t, server, http.MethodPost, "/api/restart", true)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 when nothing is running, got %d", rec.Code)
	}
}

func TestStopEndpoint(t *testing.T) {
	server, sup := newTestServer(t, "trap 'exit 0' TERM\nwhile :; do sleep 0.1; done\n")
	if err := sup.Start(); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, server, http.MethodPost, "/api/stop", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if sup.Phase() != supervisor.PhaseStopped {
		t.Errorf("expected supervisor stopped, got %s", sup.Phase())
	}

	// Stop is idempotent.
	if rec := doRequest(t, server, http.MethodPost, "/api/stop", true); rec.Code != http.StatusOK {
		t.Errorf("expected 200 on second stop, got %d", rec.Code)
	}
}

func TestLogsEndpoint(t *testing.T) {
	server, _ := newTestServer(t, "exit 0\n")

	rec := doRequest(t, server, http.MethodGet, "/api/logs?count=5", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var data LogsData
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatal(err)
	}
	if data.Count != len(data.Entries) {
		t.Errorf("count %d does not match entries %d", data.Count, len(data.Entries))
	}
}

func TestMetricsBypassesAuth(t *testing.T) {
	server, _ := newTestServer(t, "exit 0\n")

	rec := doRequest(t, server, http.MethodGet, "/metrics", false)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for unauthenticated scrape, got %d", rec.Code)
	}
}
