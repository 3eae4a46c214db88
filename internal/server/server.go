package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jpalmerr/livefetch/internal/store"
)

const (
	// sseWriteTimeout bounds a single SSE write so a stalled client cannot
	// pin its handler goroutine. Must be <= shutdownTimeout.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	defaultTitle     = "livefetch"
	titlePlaceholder = "{{.Title}}"
)

// ErrUnknownResource is returned by a [Trigger] for a name it does not own.
var ErrUnknownResource = errors.New("unknown resource")

// Trigger starts a refresh of a named resource without waiting for it.
type Trigger interface {
	Trigger(name string) error
}

// TriggerFunc adapts a function to [Trigger].
type TriggerFunc func(name string) error

// Trigger calls f(name).
func (f TriggerFunc) Trigger(name string) error {
	return f(name)
}

// Server handles HTTP requests for the livefetch dashboard and API.
//
// Routes:
//   - GET /: embedded dashboard HTML
//   - GET /api/resources: all snapshots as JSON
//   - GET /api/resources/{name}: one snapshot as JSON
//   - POST /api/resources/{name}/refresh: start a refresh, 202 Accepted
//   - GET /api/sse: Server-Sent Events stream of snapshot changes
//
// The server shuts down gracefully when the context passed to
// [Server.Start] is cancelled.
type Server struct {
	store      store.Store
	trigger    Trigger
	port       int
	httpServer *http.Server
	assets     fs.FS
	title      string
	logger     *slog.Logger
}

// NewServer creates a [Server]. assets may be nil, in which case no
// dashboard is served; trigger may be nil, in which case refresh requests
// are answered with 404.
func NewServer(st store.Store, trigger Trigger, port int, assets fs.FS, title string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:   st,
		trigger: trigger,
		port:    port,
		assets:  assets,
		title:   title,
		logger:  logger,
	}
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/resources", s.handleList)
	mux.HandleFunc("GET /api/resources/{name}", s.handleGet)
	mux.HandleFunc("POST /api/resources/{name}/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/sse", s.handleSSE)

	if s.assets != nil {
		mux.HandleFunc("GET /{$}", s.handleDashboard)
	}

	return mux
}

// Start binds the port and serves in a background goroutine.
//
// Start returns once the listener is bound. The server shuts down with a
// 5-second grace period when ctx is cancelled. Returns an error if the
// port cannot be bound.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx, so SSE handlers end on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	title := s.title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.GetAll())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.store.Get(r.PathValue("name"))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: ErrUnknownResource.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// handleRefresh starts a refresh and answers before it completes. The
// outcome reaches clients through /api/sse and /api/resources.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if s.trigger == nil {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: ErrUnknownResource.Error()})
		return
	}

	if err := s.trigger.Trigger(name); err != nil {
		if errors.Is(err, ErrUnknownResource) {
			s.writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
			return
		}
		s.logger.Warn("refresh trigger failed", "resource", name, "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
		return
	}

	s.writeJSON(w, http.StatusAccepted, refreshBody{Name: name, Status: "refreshing"})
}

type errorBody struct {
	Error string `json:"error"`
}

type refreshBody struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// handleSSE streams snapshot changes via Server-Sent Events.
//
// Every write carries a deadline so that a slow or vanished client cannot
// block the handler past shutdown.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Debug("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// subscribe before the initial snapshot so no change is lost in between
	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	// send headers now so clients connect before the first change
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	for _, snap := range s.store.GetAll() {
		data, err := json.Marshal(snap)
		if err != nil {
			s.logger.Warn("failed to encode snapshot", "resource", snap.Name, "error", err)
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				s.logger.Warn("failed to encode snapshot", "resource", snap.Name, "error", err)
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and, via BaseContext, on shutdown
			return
		}
	}
}
