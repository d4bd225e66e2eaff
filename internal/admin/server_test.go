package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/peersync/internal/peer"
	"github.com/danmuck/peersync/internal/testutil/testlog"
	"github.com/danmuck/peersync/internal/transport"
	"github.com/danmuck/peersync/internal/transport/loopback"
	"github.com/gin-gonic/gin"
)

func startPeers(t *testing.T) (*peer.Peer, *peer.Peer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	la, lb := loopback.NewPair("a", "b", transport.DefaultConfig())
	cfgA := peer.DefaultConfig()
	cfgA.Name = "admin-a"
	cfgB := peer.DefaultConfig()
	cfgB.Name = "admin-b"
	a, err := peer.New(cfgA, la, nil)
	if err != nil {
		t.Fatalf("new a: %v", err)
	}
	b, err := peer.New(cfgB, lb, nil)
	if err != nil {
		t.Fatalf("new b: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	doneA := make(chan error, 1)
	doneB := make(chan error, 1)
	go func() { doneA <- a.Run(ctx) }()
	go func() { doneB <- b.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-doneA
		<-doneB
		_ = la.Close()
		_ = lb.Close()
	})
	return a, b
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func do(t *testing.T, s *Server, method, path string) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(method, path, nil))
	var body map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s %s: decode body: %v", method, path, err)
		}
	}
	return w.Code, body
}

func TestHealthAndMetrics(t *testing.T) {
	testlog.Start(t)
	a, _ := startPeers(t)
	s := New(DefaultConfig(), a)

	code, body := do(t, s, http.MethodGet, "/health")
	if code != http.StatusOK || body["peer"] != "admin-a" {
		t.Fatalf("health code=%d body=%v", code, body)
	}

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "peersync_") {
		t.Fatalf("metrics code=%d", w.Code)
	}
}

func TestActionsDriveSession(t *testing.T) {
	testlog.Start(t)
	a, b := startPeers(t)
	s := New(DefaultConfig(), a)

	waitFor(t, "connection", func() bool {
		return a.Snapshot().Connected && b.Snapshot().Connected
	})
	if code, _ := do(t, s, http.MethodGet, "/ready"); code != http.StatusOK {
		t.Fatalf("ready=%d", code)
	}

	if code, body := do(t, s, http.MethodPost, "/actions/spawn"); code != http.StatusConflict {
		t.Fatalf("spawn before host code=%d body=%v", code, body)
	}
	if code, body := do(t, s, http.MethodPost, "/actions/host"); code != http.StatusOK {
		t.Fatalf("host code=%d body=%v", code, body)
	}
	if code, _ := do(t, s, http.MethodPost, "/actions/host"); code != http.StatusConflict {
		t.Fatalf("second host code=%d", code)
	}

	code, body := do(t, s, http.MethodPost, "/actions/spawn")
	if code != http.StatusOK || body["object"] != "NetObj0" {
		t.Fatalf("spawn code=%d body=%v", code, body)
	}
	waitFor(t, "snapshot publish", func() bool {
		_, ok := a.Snapshot().Object("NetObj0")
		return ok
	})
	if code, _ := do(t, s, http.MethodGet, "/session/objects/NetObj0"); code != http.StatusOK {
		t.Fatalf("object code=%d", code)
	}
	if code, _ := do(t, s, http.MethodGet, "/session/objects/nope"); code != http.StatusNotFound {
		t.Fatalf("missing object code=%d", code)
	}

	code, body = do(t, s, http.MethodGet, "/session")
	if code != http.StatusOK || body["role"] != "host" {
		t.Fatalf("session code=%d body=%v", code, body)
	}
	waitFor(t, "client replica", func() bool {
		_, ok := b.Snapshot().Object("NetObj0")
		return ok && b.Snapshot().Role == "client"
	})

	code, body = do(t, s, http.MethodPost, "/actions/color")
	if code != http.StatusOK || body["color"] == "" {
		t.Fatalf("color code=%d body=%v", code, body)
	}
}

func TestReadyBeforeConnect(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	la, _ := loopback.NewPair("a", "b", transport.DefaultConfig())
	cfg := peer.DefaultConfig()
	cfg.Name = "admin-lonely"
	p, err := peer.New(cfg, la, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s := New(DefaultConfig(), p)
	code, body := do(t, s, http.MethodGet, "/ready")
	if code != http.StatusServiceUnavailable || body["ready"] != false {
		t.Fatalf("ready code=%d body=%v", code, body)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := map[error]int{
		peer.ErrNotEstablished:    http.StatusConflict,
		transport.ErrNotConnected: http.StatusConflict,
		context.DeadlineExceeded:  http.StatusGatewayTimeout,
		peer.ErrStopped:           http.StatusServiceUnavailable,
		peer.ErrUnhandledMessage:  http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := statusFor(err); got != want {
			t.Fatalf("%v: got=%d want=%d", err, got, want)
		}
	}
}

func TestActionTokenGuard(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	la, _ := loopback.NewPair("a", "b", transport.DefaultConfig())
	cfg := peer.DefaultConfig()
	cfg.Name = "admin-guarded"
	p, err := peer.New(cfg, la, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	acfg := DefaultConfig()
	acfg.ActionToken = "s3cret"
	acfg.ActionTimeout = 50 * time.Millisecond
	s := New(acfg, p)

	if code, _ := do(t, s, http.MethodPost, "/actions/host"); code != http.StatusUnauthorized {
		t.Fatalf("missing token code=%d", code)
	}
	if code, _ := do(t, s, http.MethodGet, "/session"); code != http.StatusOK {
		t.Fatalf("read routes stay open, code=%d", code)
	}

	// the peer is not ticking, so an authorized action times out in Do
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/actions/host", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("authorized action code=%d body=%s", w.Code, w.Body.String())
	}
}
