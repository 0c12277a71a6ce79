// Package listener accepts deep links forwarded by a second reqdesk process
// (`reqdesk open --forward`) and hands them to a dispatcher. Only JSON POSTs
// are accepted, so a browser page cannot trigger a dispatch with a plain
// form submit or a GET.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// OpenPath is the endpoint deep links are posted to.
const OpenPath = "/open"

// Dispatcher is the subset of deeplink.Dispatcher used by the listener.
type Dispatcher interface {
	Dispatch(ctx context.Context, raw string) error
}

// OpenRequest is the body of POST /open.
type OpenRequest struct {
	URL string `json:"url"`
}

// Server accepts forwarded links. Each link is dispatched on its own
// goroutine so a pending confirmation never blocks later deliveries.
type Server struct {
	dispatcher Dispatcher
	router     *mux.Router
	// base is the context dispatches run under; cancelled by Shutdown.
	base   context.Context
	cancel context.CancelFunc
	srv    *http.Server
	log    *slog.Logger
}

// New creates a Server.
func New(d Dispatcher, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{dispatcher: d, base: ctx, cancel: cancel, log: log}
	r := mux.NewRouter()
	r.HandleFunc(OpenPath, s.handleOpen).Methods("POST")
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		http.Error(w, "content type must be application/json", http.StatusUnsupportedMediaType)
		return
	}
	var req OpenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.accept(w, req.URL)
}

func (s *Server) accept(w http.ResponseWriter, raw string) {
	if raw == "" {
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}
	s.log.Debug("Deep link received", "url", raw)
	go func() {
		if err := s.dispatcher.Dispatch(s.base, raw); err != nil {
			s.log.Error("Deep link handler failed", "url", raw, "error", err)
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info("Listening for deep links", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		s.cancel()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
