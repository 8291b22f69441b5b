package api

import (
	"net/http"
	"strconv"

	"github.com/cuemby/refit/pkg/log"
	"github.com/cuemby/refit/pkg/metrics"
)

// statusRecorder captures the response code for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request count and duration per route and turns a
// handler panic into a 500
func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				logger := log.WithComponent("api")
				logger.Error().
					Interface("panic", p).
					Str("route", route).
					Msg("Handler panicked")
				rec.WriteHeader(http.StatusInternalServerError)
			}
			metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
			timer.ObserveDurationVec(metrics.APIRequestDuration, route)
		}()

		next.ServeHTTP(rec, r)
	})
}
