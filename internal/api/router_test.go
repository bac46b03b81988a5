package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/dealerai/backend/internal/api/handlers"
	"github.com/wonny/dealerai/backend/internal/calibration"
	"github.com/wonny/dealerai/backend/internal/contracts"
	"github.com/wonny/dealerai/backend/internal/features"
	"github.com/wonny/dealerai/backend/internal/insights"
	"github.com/wonny/dealerai/backend/internal/realtime"
	"github.com/wonny/dealerai/backend/internal/scoring"
	"github.com/wonny/dealerai/backend/internal/store/memory"
	"github.com/wonny/dealerai/backend/pkg/database"
	"github.com/wonny/dealerai/backend/pkg/logger"
	"github.com/wonny/dealerai/backend/pkg/metrics"
)

var firstWeek = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func payload(q float64) map[string]interface{} {
	return map[string]interface{}{
		"price_age_min":          1440 * (1 - q),
		"availability_age_min":   1440 * (1 - q),
		"mileage_age_min":        10080 * (1 - q),
		"price_parity_ok":        true,
		"avail_parity_ok":        true,
		"gbp_hours_match_site":   true,
		"ai_zero_click_share":    q,
		"citation_depth_idx":     q,
		"cwv_lcp_ms":             2000.0,
		"cwv_inp_ms":             150.0,
		"cwv_cls":                0.05,
		"review_reply_rate":      100 * q,
		"avg_rating":             1 + 4*q,
		"review_volume":          50 + 400*q,
		"inventory_recency_idx":  q,
		"policy_violation_flag":  false,
		"dishonest_pricing_flag": false,
		"entity_resolve_score":   q,
		"schema_completeness":    q,
		"nap_consistency":        q,
	}
}

// weeklySignals improves with every week after firstWeek
type weeklySignals struct{}

func (weeklySignals) FetchSnapshots(_ context.Context, tenant string, period time.Time) ([]contracts.EntitySnapshot, error) {
	w := int(period.Sub(firstWeek).Hours() / (24 * 7))
	out := make([]contracts.EntitySnapshot, 0, 5)
	for e := 0; e < 5; e++ {
		q := 0.4 + 0.08*float64(w) + 0.01*float64(e)
		out = append(out, contracts.EntitySnapshot{
			EntityID:    fmt.Sprintf("%s-%d", tenant, e),
			Raw:         payload(q),
			Outcome:     20000 * q,
			Secondary:   40 * q,
			CollectedAt: period,
			Source:      "api",
		})
	}
	return out, nil
}

type testEnv struct {
	router http.Handler
	hub    *realtime.Hub
	rec    *metrics.Recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, memory.New())
}

func newTestEnvWithStore(t *testing.T, store contracts.Store) *testEnv {
	t.Helper()

	rec := metrics.New()
	engine := scoring.NewEngine(zerolog.Nop())
	extractor := features.NewExtractor(zerolog.Nop())

	cfg := calibration.DefaultConfig()
	cfg.Retry = calibration.RetryPolicy{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	loop, err := calibration.NewLoop(cfg, calibration.Dependencies{
		Signals:   weeklySignals{},
		Store:     store,
		Engine:    engine,
		Extractor: extractor,
		Metrics:   rec,
	}, zerolog.Nop())
	require.NoError(t, err)

	hub := realtime.NewHub(logger.Nop())
	loop.OnBenchmark(hub.PublishBenchmark)

	svc := insights.NewService(store, loop, nil, zerolog.Nop())
	router := NewRouter(Handlers{
		Score:   handlers.NewScoreHandler(extractor, engine, loop, rec, logger.Nop()),
		Tenant:  handlers.NewTenantHandler(loop, svc, logger.Nop()),
		Hub:     hub,
		Metrics: rec,
	}, logger.Nop())

	return &testEnv{router: router, hub: hub, rec: rec}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

type fakeDB struct{ err error }

func (f fakeDB) HealthCheck(ctx context.Context) (*database.HealthStatus, error) {
	if f.err != nil {
		return &database.HealthStatus{Error: f.err.Error()}, f.err
	}
	return &database.HealthStatus{Healthy: true, MaxConns: 4}, nil
}

func TestHealth_Database(t *testing.T) {
	tests := []struct {
		name   string
		db     fakeDB
		code   int
		status string
	}{
		{"healthy", fakeDB{}, http.StatusOK, "ok"},
		{"down", fakeDB{err: fmt.Errorf("connection refused")}, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(Handlers{Database: tt.db}, logger.Nop())
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.code, w.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body["status"])
			assert.Contains(t, body, "database")
		})
	}
}

func TestScore(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/api/score", handlers.ScoreRequest{Raw: payload(0.8)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	result := body["result"].(map[string]interface{})
	score := result["score"].(float64)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 100.0)

	extraction := body["extraction"].(map[string]interface{})
	assert.InDelta(t, 1.0, extraction["completeness"], 1e-9)
}

func TestScore_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"raw":`, http.StatusBadRequest},
		{"missing raw", `{}`, http.StatusBadRequest},
		{"missing fields", `{"raw":{}}`, http.StatusUnprocessableEntity},
		{"wrong kind", `{"raw":{"avg_rating":"five"}}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/score", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestCalibrateThenRead(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 4; i++ {
		period := firstWeek.AddDate(0, 0, 7*i).Format("2006-01-02")
		w, body := env.do(t, http.MethodPost, "/api/tenants/dealer-a/calibrate", handlers.CalibrateRequest{Period: period})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		run := body["run"].(map[string]interface{})
		assert.Equal(t, "dealer-a", run["tenant"])
	}

	w, body := env.do(t, http.MethodGet, "/api/tenants/dealer-a/weights/current", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Greater(t, body["version"].(float64), 0.0)

	w, body = env.do(t, http.MethodGet, "/api/tenants/dealer-a/weights", nil)
	require.Equal(t, http.StatusOK, w.Code)
	versions := body["versions"].([]interface{})
	assert.Len(t, versions, int(body["current"].(float64))+1)

	w, _ = env.do(t, http.MethodGet, "/api/tenants/dealer-a/weights?version=0", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = env.do(t, http.MethodGet, "/api/tenants/dealer-a/weights?version=99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = env.do(t, http.MethodGet, "/api/tenants/dealer-a/history?weeks=4", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, body["time_series"], 4)
	quality := body["data_quality"].(map[string]interface{})
	assert.Equal(t, true, quality["smoothing_applied"])

	w, body = env.do(t, http.MethodGet, "/api/tenants/dealer-a/forecast?weeks=3&confidence=0.9", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	forecast := body["forecast"].(map[string]interface{})
	assert.Len(t, forecast["points"], 3)
	assert.InDelta(t, 0.9, forecast["level"], 1e-9)

	w, body = env.do(t, http.MethodGet, "/api/tenants/dealer-a/benchmarks?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["benchmarks"], 2)

	// route templates label the request counter
	metricsReq := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mw := httptest.NewRecorder()
	env.router.ServeHTTP(mw, metricsReq)
	assert.Contains(t, mw.Body.String(), `route="/api/tenants/{tenant}/calibrate"`)
}

func TestQueryValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		path string
		want int
	}{
		{"/api/tenants/dealer-a/history?weeks=0", http.StatusBadRequest},
		{"/api/tenants/dealer-a/history?weeks=53", http.StatusBadRequest},
		{"/api/tenants/dealer-a/history?weeks=abc", http.StatusBadRequest},
		{"/api/tenants/dealer-a/history?smoothing=maybe", http.StatusBadRequest},
		{"/api/tenants/dealer-a/history?weeks=4", http.StatusNotFound},
		{"/api/tenants/dealer-a/forecast?weeks=13", http.StatusBadRequest},
		{"/api/tenants/dealer-a/forecast?confidence=0.5", http.StatusBadRequest},
		{"/api/tenants/dealer-a/forecast?confidence=x", http.StatusBadRequest},
		{"/api/tenants/dealer-a/benchmarks?limit=0", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w, _ := env.do(t, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestCalibrate_RepeatedWeek(t *testing.T) {
	env := newTestEnv(t)

	// a Wednesday is rounded down to its Monday
	w, body := env.do(t, http.MethodPost, "/api/tenants/dealer-a/calibrate",
		handlers.CalibrateRequest{Period: firstWeek.AddDate(0, 0, 2).Format("2006-01-02")})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	run := body["run"].(map[string]interface{})
	assert.Equal(t, firstWeek.Format(time.RFC3339), run["period"])
	benchmark := run["benchmark"].(map[string]interface{})

	w, body = env.do(t, http.MethodPost, "/api/tenants/dealer-a/calibrate",
		handlers.CalibrateRequest{Period: firstWeek.Format("2006-01-02")})
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	run = body["run"].(map[string]interface{})
	assert.Equal(t, true, run["already_done"])
	assert.Equal(t, benchmark["id"], run["benchmark"].(map[string]interface{})["id"])

	w, body = env.do(t, http.MethodGet, "/api/tenants/dealer-a/benchmarks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["benchmarks"], 1)
}

// unreadableWeights fails every weight lookup
type unreadableWeights struct {
	*memory.Store
}

func (unreadableWeights) ListWeightVectors(ctx context.Context, tenant string) ([]contracts.WeightVector, error) {
	return nil, fmt.Errorf("weights table unavailable")
}

func TestCalibrate_StateFailureIsServerError(t *testing.T) {
	env := newTestEnvWithStore(t, unreadableWeights{memory.New()})

	w, body := env.do(t, http.MethodPost, "/api/tenants/dealer-a/calibrate",
		handlers.CalibrateRequest{Period: firstWeek.Format("2006-01-02")})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Nil(t, body["run"])
}

func TestCalibrate_BadPeriod(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodPost, "/api/tenants/dealer-a/calibrate", handlers.CalibrateRequest{Period: "03/02/2026"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
