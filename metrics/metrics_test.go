package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCollectorSeries(t *testing.T) {
	c := New()
	c.TrackKeyCount(func() int64 { return 7 })

	c.RecordClientConnected()
	c.RecordClientConnected()
	c.RecordClientDisconnected()
	c.RecordCommandProcessed("GET", time.Millisecond)
	c.RecordCommandProcessed("GET", time.Millisecond)
	c.RecordError("unknown_command")
	c.RecordSnapshotLoad(3, 1, 5*time.Millisecond)
	c.RecordHandshake(time.Millisecond, errors.New("boom"))
	c.OnKeyExpired("k")

	var sb strings.Builder
	c.WritePrometheus(&sb)
	out := sb.String()

	for _, want := range []string{
		"redis_connections_total 2",
		"redis_connections_active 1",
		`redis_commands_total{command="GET"} 2`,
		`redis_errors_total{type="unknown_command"} 1`,
		`redis_snapshot_keys_total{result="loaded"} 3`,
		`redis_replica_handshakes_total{result="failure"} 1`,
		"redis_keys_expired_total 1",
		"redis_keys 7",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RecordClientConnected()

	var sb strings.Builder
	b.WritePrometheus(&sb)
	if !strings.Contains(sb.String(), "redis_connections_total 0") {
		t.Errorf("second collector saw first collector's counter:\n%s", sb.String())
	}
}

func TestRouter(t *testing.T) {
	c := New()
	c.RecordClientConnected()
	router := NewRouter(c, func() Status { return Status{Role: "master", Keys: 2} })

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
		contains       string
	}{
		{"metrics", "GET", "/metrics", http.StatusOK, "redis_connections_total 1"},
		{"health", "GET", "/healthz", http.StatusOK, `"role":"master"`},
		{"wrong method", "POST", "/metrics", http.StatusMethodNotAllowed, ""},
		{"unknown path", "GET", "/nope", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
			if tt.contains != "" && !strings.Contains(rr.Body.String(), tt.contains) {
				t.Errorf("body missing %q:\n%s", tt.contains, rr.Body.String())
			}
		})
	}
}

func TestHealthBody(t *testing.T) {
	router := NewRouter(New(), func() Status { return Status{Role: "slave", Keys: 0} })

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/healthz", nil))

	var got Status
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Role != "slave" {
		t.Errorf("Role = %q", got.Role)
	}
}
