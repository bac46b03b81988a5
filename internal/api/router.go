package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/dealerai/backend/internal/api/handlers"
	"github.com/wonny/dealerai/backend/internal/realtime"
	"github.com/wonny/dealerai/backend/pkg/database"
	"github.com/wonny/dealerai/backend/pkg/logger"
	"github.com/wonny/dealerai/backend/pkg/metrics"
)

// DatabaseChecker reports database health for /health
type DatabaseChecker interface {
	HealthCheck(ctx context.Context) (*database.HealthStatus, error)
}

// Handlers groups everything the router serves
type Handlers struct {
	Score    *handlers.ScoreHandler
	Tenant   *handlers.TenantHandler
	Hub      *realtime.Hub     // nil → no /ws/benchmarks
	Metrics  *metrics.Recorder // nil → no /metrics
	Database DatabaseChecker   // nil → memory store, not reported
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler(h.Database)).Methods("GET")

	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics.Handler()).Methods("GET")
	}
	if h.Hub != nil {
		r.HandleFunc("/ws/benchmarks", h.Hub.ServeWS).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	// Scoring
	api.HandleFunc("/score", h.Score.Score).Methods("POST")

	// Tenant endpoints
	t := api.PathPrefix("/tenants/{tenant}").Subrouter()
	t.HandleFunc("/weights/current", h.Tenant.CurrentWeights).Methods("GET")
	t.HandleFunc("/weights", h.Tenant.WeightHistory).Methods("GET")
	t.HandleFunc("/history", h.Tenant.History).Methods("GET")
	t.HandleFunc("/forecast", h.Tenant.Forecast).Methods("GET")
	t.HandleFunc("/benchmarks", h.Tenant.Benchmarks).Methods("GET")
	t.HandleFunc("/calibrate", h.Tenant.Calibrate).Methods("POST")

	// Apply middleware
	r.Use(loggingMiddleware(log, h.Metrics))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status; 503 when the database is down
func healthCheckHandler(db DatabaseChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":  "ok",
			"service": "dealerai-api",
		}
		code := http.StatusOK

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			status, err := db.HealthCheck(ctx)
			body["database"] = status
			if err != nil {
				body["status"] = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(body)
	}
}

// statusRecorder captures the response code for logging and metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack is required by the websocket upgrade
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// loggingMiddleware logs HTTP requests and counts them by route template
func loggingMiddleware(log *logger.Logger, rec *metrics.Recorder) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			rec.ObserveHTTP(route, r.Method, strconv.Itoa(sw.status))

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   sw.status,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
