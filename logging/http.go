package logging

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

type loggingHandler struct {
	httpHandler http.Handler
	log         *slog.Logger
}

// NewHTTPHandler logs each request after it's served. Request bodies hold
// user values and are logged by size only.
func NewHTTPHandler(h http.Handler, logger *slog.Logger) http.Handler {
	return &loggingHandler{
		httpHandler: h,
		log:         logger,
	}
}

func (h *loggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	h.httpHandler.ServeHTTP(ww, r)

	status := ww.Status()
	if status == 0 {
		status = http.StatusOK
	}
	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"bytes", ww.BytesWritten(),
		"duration", time.Since(start),
	}
	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		attrs = append(attrs, "bodySize", r.ContentLength)
	}
	if status >= http.StatusInternalServerError {
		h.log.Warn("request", attrs...)
		return
	}
	h.log.Info("request", attrs...)
}
