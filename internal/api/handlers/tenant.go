package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/dealerai/backend/internal/calibration"
	"github.com/wonny/dealerai/backend/internal/contracts"
	"github.com/wonny/dealerai/backend/internal/insights"
	"github.com/wonny/dealerai/backend/internal/timeseries"
	"github.com/wonny/dealerai/backend/internal/weights"
	"github.com/wonny/dealerai/backend/pkg/logger"
)

// Calibrator is the part of the calibration loop the API drives
type Calibrator interface {
	WeightsProvider
	Registry(ctx context.Context, tenant string) (*weights.Registry, error)
	Run(ctx context.Context, tenant string, period time.Time) (*calibration.RunResult, error)
}

// Insights serves history, forecast and benchmark views
type Insights interface {
	History(ctx context.Context, tenant string, opts insights.HistoryOptions) (*insights.HistoryView, error)
	Forecast(ctx context.Context, tenant string, weeks int, level float64) (*insights.ForecastView, error)
	Benchmarks(ctx context.Context, tenant string, limit int) ([]contracts.BenchmarkRecord, error)
	Invalidate(ctx context.Context, tenant string) error
}

// TenantHandler serves per-tenant weights, analytics and calibration runs
// ⭐ SSOT: 테넌트 API 핸들러는 이 구조체에서만
type TenantHandler struct {
	loop     Calibrator
	insights Insights
	logger   *logger.Logger
}

// NewTenantHandler creates a new tenant handler
func NewTenantHandler(loop Calibrator, ins Insights, log *logger.Logger) *TenantHandler {
	return &TenantHandler{
		loop:     loop,
		insights: ins,
		logger:   log,
	}
}

// CurrentWeights returns the active weight vector
// GET /api/tenants/{tenant}/weights/current
func (h *TenantHandler) CurrentWeights(w http.ResponseWriter, r *http.Request) {
	tenant := mux.Vars(r)["tenant"]

	wv, err := h.loop.CurrentWeights(r.Context(), tenant)
	if err != nil {
		h.fail(w, err, tenant, "Failed to load weights")
		return
	}
	respondJSON(w, http.StatusOK, wv)
}

// WeightHistory returns every published version, or one with ?version=
// GET /api/tenants/{tenant}/weights
func (h *TenantHandler) WeightHistory(w http.ResponseWriter, r *http.Request) {
	tenant := mux.Vars(r)["tenant"]

	reg, err := h.loop.Registry(r.Context(), tenant)
	if err != nil {
		h.fail(w, err, tenant, "Failed to load weight registry")
		return
	}

	if raw := r.URL.Query().Get("version"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "version must be an integer")
			return
		}
		wv, err := reg.Version(v)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, wv)
		return
	}

	history := reg.History()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tenant":   tenant,
		"current":  reg.Current().Version,
		"versions": history,
	})
}

// History returns the composite series with analysis
// GET /api/tenants/{tenant}/history?weeks=8&smoothing=true&analysis=true
func (h *TenantHandler) History(w http.ResponseWriter, r *http.Request) {
	tenant := mux.Vars(r)["tenant"]

	weeks, err := intParam(r, "weeks", insights.DefaultHistoryWeeks)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	smoothing, err := boolParam(r, "smoothing", true)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	analysis, err := boolParam(r, "analysis", true)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	view, err := h.insights.History(r.Context(), tenant, insights.HistoryOptions{
		Weeks:     weeks,
		Smoothing: smoothing,
		Analysis:  analysis,
	})
	if err != nil {
		h.fail(w, err, tenant, "Failed to build history")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Forecast projects the composite series
// GET /api/tenants/{tenant}/forecast?weeks=4&confidence=0.95
func (h *TenantHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	tenant := mux.Vars(r)["tenant"]

	weeks, err := intParam(r, "weeks", timeseries.DefaultHorizon)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	level := 0.95
	if raw := r.URL.Query().Get("confidence"); raw != "" {
		if level, err = strconv.ParseFloat(raw, 64); err != nil {
			respondError(w, http.StatusBadRequest, "confidence must be a number")
			return
		}
	}

	view, err := h.insights.Forecast(r.Context(), tenant, weeks, level)
	if err != nil {
		h.fail(w, err, tenant, "Failed to build forecast")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Benchmarks lists recent benchmark records, oldest first
// GET /api/tenants/{tenant}/benchmarks?limit=12
func (h *TenantHandler) Benchmarks(w http.ResponseWriter, r *http.Request) {
	tenant := mux.Vars(r)["tenant"]

	limit, err := intParam(r, "limit", 12)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if limit < 1 || limit > 520 {
		respondError(w, http.StatusBadRequest, "limit must be between 1 and 520")
		return
	}

	recs, err := h.insights.Benchmarks(r.Context(), tenant, limit)
	if err != nil {
		h.fail(w, err, tenant, "Failed to list benchmarks")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tenant":     tenant,
		"benchmarks": recs,
	})
}

// CalibrateRequest is the optional body of POST .../calibrate
type CalibrateRequest struct {
	Period string `json:"period,omitempty"` // YYYY-MM-DD, default previous week
}

// Calibrate runs the weekly loop for one tenant synchronously.
// The period is rounded down to its Monday; a week that already has a
// benchmark answers 409 with the stored record.
// POST /api/tenants/{tenant}/calibrate
func (h *TenantHandler) Calibrate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := mux.Vars(r)["tenant"]

	var req CalibrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	period := calibration.PreviousWeek(time.Now())
	if req.Period != "" {
		p, err := time.Parse("2006-01-02", req.Period)
		if err != nil {
			respondError(w, http.StatusBadRequest, "period must be YYYY-MM-DD")
			return
		}
		period = calibration.WeekOf(p)
	}

	result, err := h.loop.Run(ctx, tenant, period)
	if err != nil && !ingestAborted(result) {
		h.fail(w, err, tenant, "Calibration failed")
		return
	}
	if !result.Aborted && !result.AlreadyDone {
		if cerr := h.insights.Invalidate(ctx, tenant); cerr != nil {
			h.logger.WithError(cerr).WithField("tenant", tenant).Warn("Cache invalidation failed")
		}
	}

	status := http.StatusOK
	switch {
	case result.Aborted:
		status = http.StatusUnprocessableEntity
	case result.AlreadyDone:
		status = http.StatusConflict
	}
	body := map[string]interface{}{"run": result}
	if err != nil {
		body["error"] = err.Error()
	}
	respondJSON(w, status, body)
}

// ingestAborted reports a run stopped by its Ingest stage. Failures before
// Ingest (tenant state, benchmark lookup) are plain errors.
func ingestAborted(result *calibration.RunResult) bool {
	if result == nil || !result.Aborted {
		return false
	}
	o, ok := result.Outcome(calibration.StageIngest)
	return ok && o.Status == calibration.StatusFailed
}

func (h *TenantHandler) fail(w http.ResponseWriter, err error, tenant, msg string) {
	var verr contracts.ValidationError
	if !errors.As(err, &verr) && !errors.Is(err, contracts.ErrNotFound) {
		h.logger.WithError(err).WithField("tenant", tenant).Error(msg)
	}
	respondDomainError(w, err)
}
