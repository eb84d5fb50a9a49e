package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// HTTPServer serves srv until its context is cancelled, then shuts it down
// gracefully within the configured timeout.
type HTTPServer struct {
	name            string
	srv             *http.Server
	shutdownTimeout time.Duration
	listen          func(network, addr string) (net.Listener, error)
}

// NewHTTPServer wraps srv as a Worker.
func NewHTTPServer(name string, srv *http.Server, shutdownTimeout time.Duration) *HTTPServer {
	return &HTTPServer{name: name, srv: srv, shutdownTimeout: shutdownTimeout, listen: net.Listen}
}

// Name returns the worker name.
func (h *HTTPServer) Name() string { return h.name }

// Run listens on srv.Addr and blocks until ctx is done or serving fails.
func (h *HTTPServer) Run(ctx context.Context) error {
	ln, err := h.listen("tcp", h.srv.Addr)
	if err != nil {
		return fmt.Errorf("%s: listen %s: %w", h.name, h.srv.Addr, err)
	}
	slog.Info("listening", "server", h.name, "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("%s: serve: %w", h.name, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.shutdownTimeout)
	defer cancel()
	if err := h.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s: shutdown: %w", h.name, err)
	}
	return nil
}
