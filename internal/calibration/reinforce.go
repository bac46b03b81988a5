package calibration

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/wonny/dealerai/backend/internal/contracts"
)

// reinforce retrains the learner once it has enough samples, then steps
// the current weights along the calibration gradient.
func (r *runContext) reinforce(ctx context.Context) error {
	metricsRec := r.loop.deps.Metrics
	var trainErr error

	if r.state.learner.Ready() {
		update, err := r.state.learner.TrainModel(ctx)
		switch {
		case err == nil:
			r.result.Training = update
			metricsRec.ObserveLearnerFit("ok")
			metricsRec.ObserveWeightVersion(string(contracts.WeightSourceLearner))
			r.state.learner.Trim(r.loop.cfg.TrainingRetention)
		case errors.Is(err, contracts.ErrInsufficientData):
			metricsRec.ObserveLearnerFit("insufficient")
		default:
			metricsRec.ObserveLearnerFit("error")
			trainErr = fmt.Errorf("train model: %w", err)
		}
	}

	calib := r.result.Calibration
	if calib == nil {
		if trainErr != nil {
			return trainErr
		}
		if r.result.Training != nil {
			return nil
		}
		return fmt.Errorf("no calibration for this period: %w", errSkipped)
	}

	current := r.state.registry.Current()
	stepped := ReinforceWeights(current.Weights, calib.Gradients, r.loop.cfg.LearningRate)

	_, err := r.state.registry.Publish(ctx, stepped, current.Intercept, contracts.FitStats{
		R2:          calib.R2,
		RMSE:        calib.RMSE,
		SampleCount: calib.WindowSize,
		Confidence:  calib.R2,
	}, contracts.WeightSourceReinforce)
	if err != nil {
		return fmt.Errorf("publish reinforced weights: %w", err)
	}
	metricsRec.ObserveWeightVersion(string(contracts.WeightSourceReinforce))

	return trainErr
}

// ReinforceWeights applies wᵢ ← max(0, wᵢ + η·gᵢ). The caller normalizes.
func ReinforceWeights(w map[contracts.SubScoreID]float64, gradients map[contracts.SubScoreID]float64, eta float64) map[contracts.SubScoreID]float64 {
	out := make(map[contracts.SubScoreID]float64, len(contracts.AllSubScores))
	for _, id := range contracts.AllSubScores {
		out[id] = math.Max(0, w[id]+eta*gradients[id])
	}
	return out
}
