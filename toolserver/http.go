package toolserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

const (
	DefaultAddr = ":8092"
	MCPPath     = "/mcp"

	shutdownTimeout = 30 * time.Second
)

// NewHandler routes MCP streamable HTTP traffic to server. The endpoint is
// reachable both with and without a trailing slash.
func NewHandler(server *mcp.Server, log logrus.FieldLogger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(log))

	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
	r.Handle(MCPPath, streamable)
	r.Handle(MCPPath+"/", streamable)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}

// requestLogger logs each request once it completes. The wrapped writer
// keeps http.Flusher so that event streams still flush.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.WithFields(logrus.Fields{
				"request_id": chimiddleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     status,
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start),
			}).Debug("request completed")
		})
	}
}

// Serve serves handler on addr until ctx is cancelled, then drains
// in-flight requests.
func Serve(ctx context.Context, addr string, handler http.Handler, log logrus.FieldLogger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ServeListener(ctx, ln, handler, log)
}

// ServeListener is like Serve but uses an existing listener.
func ServeListener(ctx context.Context, ln net.Listener, handler http.Handler, log logrus.FieldLogger) error {
	// No WriteTimeout: tool calls stream their result for as long as the
	// package timeout allows.
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Infof("serving MCP on http://%s%s/", ln.Addr(), MCPPath)
		serverErrors <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Info("server stopped gracefully")
		return nil
	}
}
