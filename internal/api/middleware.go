package api

import (
	"net/http"
	"time"

	"lob/internal/logger"

	"github.com/go-chi/chi/v5/middleware"
)

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("http request",
					logger.NewField("method", r.Method),
					logger.NewField("path", r.URL.Path),
					logger.NewField("status", ww.Status()),
					logger.NewField("bytes", ww.BytesWritten()),
					logger.NewField("duration", time.Since(start)),
					logger.NewField("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
