package httpu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"time"
)

const shutdownTimeout = 5 * time.Second

// ErrHandlerPanic is the cause returned by Serve after a handler panics.
var ErrHandlerPanic = errors.New("http handler panic")

type handlerWithContext struct {
	http.Handler
	cancel context.CancelCauseFunc
	logger *slog.Logger
}

func (h handlerWithContext) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if rec == http.ErrAbortHandler {
			panic(rec)
		}
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, false)
		h.logger.Error("http handler panic", "method", r.Method, "path", r.URL.Path, "panic", rec, "stack", string(buf[:n]))
		http.Error(w, "internal error", http.StatusInternalServerError)
		h.cancel(fmt.Errorf("%w: %v", ErrHandlerPanic, rec))
	}()
	h.Handler.ServeHTTP(w, r)
}

type Server struct {
	http.Server
	logger *slog.Logger
}

func NewServer(handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Server: http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Serve acts like an (nil)(*http.Server).Serve method but also includes a
// context argument. The server will shutdown when the context is canceled. The
// server will also shutdown if the http.Handler panics. This is unlike the
// typical http.Server behavior which recovers panics and continues processing.
//
// Returns nil after a shutdown caused by canceling ctx and an error wrapping
// ErrHandlerPanic after a panic.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	s.Server.Handler = handlerWithContext{s.Server.Handler, cancel, s.logger}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		shutdownErr <- s.Server.Shutdown(shutdownCtx)
	}()

	if err := s.Server.Serve(l); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if cause := context.Cause(ctx); errors.Is(cause, ErrHandlerPanic) {
		return cause
	}
	return nil
}
