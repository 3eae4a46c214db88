package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jpalmerr/livefetch/internal/store"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingTrigger records triggered names and knows a fixed set of resources.
type recordingTrigger struct {
	mu    sync.Mutex
	known map[string]bool
	names []string
	err   error
}

func (rt *recordingTrigger) Trigger(name string) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if !rt.known[name] {
		return ErrUnknownResource
	}
	if rt.err != nil {
		return rt.err
	}
	rt.names = append(rt.names, name)
	return nil
}

func (rt *recordingTrigger) triggered() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]string(nil), rt.names...)
}

func newTestServer(st store.Store, trigger Trigger) *Server {
	return NewServer(st, trigger, 0, nil, "", testLogger())
}

func TestHandleList(t *testing.T) {
	ms := store.NewMemoryStore()
	ms.Update(store.Snapshot{Name: "weather", Value: map[string]any{"temp": 21.5}})
	ms.Update(store.Snapshot{Name: "quotes", Fetching: true})

	srv := httptest.NewServer(newTestServer(ms, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/resources")
	if err != nil {
		t.Fatalf("GET /api/resources error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var snaps []store.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snaps); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(snaps))
	}
	if snaps[0].Name != "quotes" || !snaps[0].Fetching {
		t.Errorf("snaps[0] = %+v, want quotes fetching", snaps[0])
	}
	if snaps[1].Name != "weather" {
		t.Errorf("snaps[1].Name = %q, want weather", snaps[1].Name)
	}
}

func TestHandleList_MethodNotAllowed(t *testing.T) {
	srv := httptest.NewServer(newTestServer(store.NewMemoryStore(), nil).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/resources", "application/json", nil)
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

func TestHandleGet(t *testing.T) {
	ms := store.NewMemoryStore()
	msg := "upstream returned 503"
	ms.Update(store.Snapshot{Name: "quotes", Error: &msg})

	srv := httptest.NewServer(newTestServer(ms, nil).Handler())
	defer srv.Close()

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "known resource", path: "/api/resources/quotes", wantStatus: http.StatusOK},
		{name: "unknown resource", path: "/api/resources/nope", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatalf("GET error = %v", err)
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var snap store.Snapshot
			if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
				t.Fatalf("decode error = %v", err)
			}
			if snap.Error == nil || *snap.Error != msg {
				t.Errorf("Error = %v, want %q", snap.Error, msg)
			}
		})
	}
}

func TestHandleRefresh(t *testing.T) {
	trigger := &recordingTrigger{known: map[string]bool{"quotes": true}}
	srv := httptest.NewServer(newTestServer(store.NewMemoryStore(), trigger).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/resources/quotes/refresh", "", nil)
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	var body refreshBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if body.Name != "quotes" || body.Status != "refreshing" {
		t.Errorf("body = %+v, want quotes refreshing", body)
	}

	if got := trigger.triggered(); len(got) != 1 || got[0] != "quotes" {
		t.Errorf("triggered = %v, want [quotes]", got)
	}
}

func TestHandleRefresh_Errors(t *testing.T) {
	tests := []struct {
		name       string
		trigger    Trigger
		path       string
		wantStatus int
	}{
		{
			name:       "unknown resource",
			trigger:    &recordingTrigger{known: map[string]bool{"quotes": true}},
			path:       "/api/resources/nope/refresh",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "no trigger configured",
			trigger:    nil,
			path:       "/api/resources/quotes/refresh",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "trigger unavailable",
			trigger:    TriggerFunc(func(string) error { return errors.New("board not running") }),
			path:       "/api/resources/quotes/refresh",
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(newTestServer(store.NewMemoryStore(), tt.trigger).Handler())
			defer srv.Close()

			resp, err := http.Post(srv.URL+tt.path, "", nil)
			if err != nil {
				t.Fatalf("POST error = %v", err)
			}
			_ = resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestHandleSSE_InitialSnapshots(t *testing.T) {
	ms := store.NewMemoryStore()
	ms.Update(store.Snapshot{Name: "quotes"})
	ms.Update(store.Snapshot{Name: "weather"})

	srv := newTestServer(ms, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	// returns once ctx times out
	srv.handleSSE(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	body := rec.Body.String()
	for _, name := range []string{"quotes", "weather"} {
		if !strings.Contains(body, `"name":"`+name+`"`) {
			t.Errorf("response should contain %s, got: %s", name, body)
		}
	}
	if !strings.HasPrefix(body, "data: ") {
		t.Errorf("response should start with SSE data prefix, got: %s", body)
	}
}

func TestHandleSSE_StreamsUpdates(t *testing.T) {
	ms := store.NewMemoryStore()
	srv := httptest.NewServer(newTestServer(ms, nil).Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/sse", nil)
	if err != nil {
		t.Fatalf("NewRequest error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/sse error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// headers are flushed with the first write, so publish after connecting
	go func() {
		time.Sleep(50 * time.Millisecond)
		ms.Update(store.Snapshot{Name: "quotes", Fetching: true})
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed before update arrived")
			}
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var snap store.Snapshot
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap); err != nil {
				t.Fatalf("invalid SSE payload %q: %v", line, err)
			}
			if snap.Name == "quotes" && snap.Fetching {
				return
			}
		case <-timeout:
			t.Fatal("did not receive streamed update")
		}
	}
}

func TestHandleSSE_ServerShutdown(t *testing.T) {
	ms := store.NewMemoryStore()
	srv := newTestServer(ms, nil)

	serverCtx, serverCancel := context.WithCancel(context.Background())

	// BaseContext derives request contexts from the server context in
	// production; do the same by hand here
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(serverCtx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	serverCancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not exit after server shutdown")
	}
}

func TestHandleDashboard(t *testing.T) {
	assets := fstest.MapFS{
		"assets/index.html": &fstest.MapFile{Data: []byte("<title>{{.Title}}</title><h1>{{.Title}}</h1>")},
	}

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "custom title", title: "Team APIs", want: "<title>Team APIs</title><h1>Team APIs</h1>"},
		{name: "default title", title: "", want: "<title>livefetch</title>"},
		{name: "escapes html", title: `<script>alert("x")</script>`, want: "&lt;script&gt;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(store.NewMemoryStore(), nil, 0, assets, tt.title, testLogger())

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body = %q, want to contain %q", rec.Body.String(), tt.want)
			}
		})
	}
}

func TestHandleDashboard_NonRootPath(t *testing.T) {
	assets := fstest.MapFS{
		"assets/index.html": &fstest.MapFile{Data: []byte("<h1>{{.Title}}</h1>")},
	}
	srv := NewServer(store.NewMemoryStore(), nil, 0, assets, "", testLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleDashboard_MissingIndex(t *testing.T) {
	srv := NewServer(store.NewMemoryStore(), nil, 0, fstest.MapFS{}, "", testLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestStart_AvailablePort_ReturnsNil(t *testing.T) {
	// port 0 lets the OS pick
	srv := newTestServer(store.NewMemoryStore(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Errorf("Start() on available port returned error: %v", err)
	}
}

func TestStart_PortInUse_ReturnsError(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = ln.Close() }()

	port := ln.Addr().(*net.TCPAddr).Port
	srv := NewServer(store.NewMemoryStore(), nil, port, nil, "", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = srv.Start(ctx)
	if err == nil {
		t.Fatal("Start() on occupied port should return error")
	}
	if !strings.Contains(err.Error(), "failed to bind") {
		t.Errorf("expected bind error, got: %v", err)
	}
}
