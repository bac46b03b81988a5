package learner

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/dealerai/backend/internal/contracts"
)

type fitResult struct {
	coefficients map[contracts.SubScoreID]float64
	intercept    float64
	r2           float64
	rmse         float64
}

// ridge regresses ActualScore on the sub-scores with centered columns:
// (XᵀX + λI)β = Xᵀy
func ridge(samples []contracts.TrainingSample, lambda float64) (*fitResult, error) {
	n := len(samples)
	p := len(contracts.AllSubScores)

	cols := make([][]float64, p)
	for j := range cols {
		cols[j] = make([]float64, n)
	}
	ys := make([]float64, n)
	for i, s := range samples {
		for j, id := range contracts.AllSubScores {
			cols[j][i] = s.SubScores[id]
		}
		ys[i] = s.ActualScore
	}

	means := make([]float64, p)
	for j := range cols {
		means[j] = stat.Mean(cols[j], nil)
	}
	yMean := stat.Mean(ys, nil)

	x := mat.NewDense(n, p, nil)
	yc := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			x.Set(i, j, cols[j][i]-means[j])
		}
		yc.SetVec(i, ys[i]-yMean)
	}

	var a mat.Dense
	a.Mul(x.T(), x)
	for j := 0; j < p; j++ {
		a.Set(j, j, a.At(j, j)+lambda)
	}
	var b mat.VecDense
	b.MulVec(x.T(), yc)

	var beta mat.VecDense
	if err := beta.SolveVec(&a, &b); err != nil {
		return nil, fmt.Errorf("solve normal equations: %w", err)
	}

	result := &fitResult{coefficients: make(map[contracts.SubScoreID]float64, p)}
	result.intercept = yMean
	for j, id := range contracts.AllSubScores {
		coef := beta.AtVec(j)
		result.coefficients[id] = coef
		result.intercept -= coef * means[j]
	}

	var ssRes, ssTot float64
	for i := 0; i < n; i++ {
		pred := result.intercept
		for j := 0; j < p; j++ {
			pred += beta.AtVec(j) * cols[j][i]
		}
		ssRes += (ys[i] - pred) * (ys[i] - pred)
		ssTot += (ys[i] - yMean) * (ys[i] - yMean)
	}
	if ssTot > 0 {
		result.r2 = math.Max(0, math.Min(1, 1-ssRes/ssTot))
	}
	result.rmse = math.Sqrt(ssRes / float64(n))
	return result, nil
}
