package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/wonny/dealerai/backend/internal/contracts"
	"github.com/wonny/dealerai/backend/internal/features"
	"github.com/wonny/dealerai/backend/internal/scoring"
	"github.com/wonny/dealerai/backend/pkg/logger"
	"github.com/wonny/dealerai/backend/pkg/metrics"
)

// WeightsProvider resolves a tenant's current weight vector
type WeightsProvider interface {
	CurrentWeights(ctx context.Context, tenant string) (contracts.WeightVector, error)
}

// maxScoreBody 요청 본문 상한 (1MB)
const maxScoreBody = 1 << 20

// ScoreHandler scores one entity on demand
// ⭐ SSOT: 단건 점수 API 핸들러는 이 구조체에서만
type ScoreHandler struct {
	extractor *features.Extractor
	engine    *scoring.Engine
	weights   WeightsProvider
	metrics   *metrics.Recorder
	logger    *logger.Logger
}

// NewScoreHandler creates a new score handler
func NewScoreHandler(
	extractor *features.Extractor,
	engine *scoring.Engine,
	weights WeightsProvider,
	rec *metrics.Recorder,
	log *logger.Logger,
) *ScoreHandler {
	return &ScoreHandler{
		extractor: extractor,
		engine:    engine,
		weights:   weights,
		metrics:   rec,
		logger:    log,
	}
}

// ScoreRequest is the body of POST /api/score
type ScoreRequest struct {
	Tenant   string                    `json:"tenant,omitempty"` // empty → default weights
	Raw      map[string]interface{}    `json:"raw"`
	Listings []contracts.ListingRecord `json:"listings,omitempty"`
	Source   string                    `json:"source,omitempty"`
}

// ScoreResponse pairs the score with what extraction saw
type ScoreResponse struct {
	Result     *contracts.ScoreResult `json:"result"`
	Extraction *features.Extraction   `json:"extraction"`
}

// Score extracts features and scores them under the tenant's weights
// POST /api/score
func (h *ScoreHandler) Score(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ScoreRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScoreBody))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Raw == nil {
		respondError(w, http.StatusBadRequest, "raw is required")
		return
	}

	weights := contracts.DefaultWeightVector("")
	if req.Tenant != "" {
		wv, err := h.weights.CurrentWeights(ctx, req.Tenant)
		if err != nil {
			h.logger.WithError(err).WithField("tenant", req.Tenant).Error("Failed to load weights")
			respondDomainError(w, err)
			return
		}
		weights = wv
	}

	source := req.Source
	if source == "" {
		source = "api"
	}
	extraction, err := h.extractor.Extract(req.Raw, req.Listings, features.Metadata{Source: source})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	result, err := h.engine.Score(extraction.Features, &weights)
	h.metrics.ObserveScore(scoreValue(result), err)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ScoreResponse{Result: result, Extraction: extraction})
}

func scoreValue(r *contracts.ScoreResult) float64 {
	if r == nil {
		return 0
	}
	return r.Score
}
