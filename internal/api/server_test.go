package api

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Mist/internal/processor"
)

// mockStatus returns a fixed status.
type mockStatus struct {
	status processor.Status
}

func (m *mockStatus) Status() processor.Status {
	return m.status
}

var testNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestServer(status StatusProvider, maxAge time.Duration) *Server {
	s := New(":0", Info{Address: "0xabc", KeyServers: 2, Threshold: 2, OwnerBound: true}, status, processor.NewMetrics().Registry(), maxAge)
	s.now = func() time.Time { return testNow }

	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", path, nil))

	return w
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(&mockStatus{}, 0)

	w := get(t, server.Handler(), "/health")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestHealthStalled(t *testing.T) {
	status := &mockStatus{status: processor.Status{Cycles: 4, LastCycle: testNow.Add(-time.Minute)}}
	server := newTestServer(status, 30*time.Second)

	if w := get(t, server.Handler(), "/health"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}

	status.status.LastCycle = testNow.Add(-time.Second)

	if w := get(t, server.Handler(), "/health"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	status := &mockStatus{status: processor.Status{
		Cycles:    7,
		LastCycle: testNow,
		LastError: "query events: timeout",
		Pending:   1,
		Outcomes:  map[string]uint64{"settled": 3, "expired": 1},
	}}

	w := get(t, newTestServer(status, 0).Handler(), "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Address    string            `json:"address"`
		Threshold  int               `json:"threshold"`
		OwnerBound bool              `json:"owner_bound"`
		Cycles     uint64            `json:"cycles"`
		LastError  string            `json:"last_error"`
		Pending    int               `json:"pending"`
		Outcomes   map[string]uint64 `json:"outcomes"`
	}

	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp.Address != "0xabc" || resp.Threshold != 2 || !resp.OwnerBound {
		t.Errorf("info = %+v", resp)
	}

	if resp.Cycles != 7 || resp.Pending != 1 || resp.Outcomes["settled"] != 3 || resp.LastError == "" {
		t.Errorf("status = %+v", resp)
	}
}

func TestStatusUnavailable(t *testing.T) {
	if w := get(t, newTestServer(nil, 0).Handler(), "/status"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := httptest.NewServer(newTestServer(&mockStatus{}, 0).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `mist_intents_total{kind="settled"} 0`) {
		t.Fatalf("metrics = %d %s", resp.StatusCode, body)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	w := httptest.NewRecorder()
	newTestServer(&mockStatus{}, 0).Handler().ServeHTTP(w, httptest.NewRequest("POST", "/status", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestStartAddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	server := New(ln.Addr().String(), Info{}, &mockStatus{}, nil, 0)

	if err := server.Start(); err == nil {
		server.Stop()
		t.Fatal("expected bind error")
	}

	if err := server.Stop(); err != nil {
		t.Errorf("stop after failed start: %v", err)
	}
}
