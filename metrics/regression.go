// Package metrics scores predictions against known targets. Every metric
// takes optional sample weights; nil weights count each sample once.
package metrics

import (
	"math"

	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// checkInputs は入力の長さと重みを検証し、重みの合計を返す
func checkInputs(op string, n, m int, w []float64) (float64, error) {
	if n == 0 {
		return 0, errors.NewValueError(op, "empty input")
	}
	if m != n {
		return 0, errors.NewDimensionError(op, n, m, 0)
	}
	if w == nil {
		return float64(n), nil
	}
	if len(w) != n {
		return 0, errors.NewDimensionError(op+"(weights)", n, len(w), 0)
	}
	var total float64
	for _, v := range w {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, errors.NewValidationError("weights", "must be finite and non-negative", v)
		}
		total += v
	}
	if total == 0 {
		return 0, errors.NewValueError(op, "weights sum to zero")
	}
	return total, nil
}

func weight(w []float64, i int) float64 {
	if w == nil {
		return 1
	}
	return w[i]
}

// MSE は重み付き平均二乗誤差を計算する
func MSE(yTrue, yPred, w []float64) (float64, error) {
	total, err := checkInputs("MSE", len(yTrue), len(yPred), w)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i, y := range yTrue {
		d := y - yPred[i]
		sum += weight(w, i) * d * d
	}
	return sum / total, nil
}

// RMSE は平方根平均二乗誤差を計算する
func RMSE(yTrue, yPred, w []float64) (float64, error) {
	mse, err := MSE(yTrue, yPred, w)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は重み付き平均絶対誤差を計算する
func MAE(yTrue, yPred, w []float64) (float64, error) {
	total, err := checkInputs("MAE", len(yTrue), len(yPred), w)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i, y := range yTrue {
		sum += weight(w, i) * math.Abs(y-yPred[i])
	}
	return sum / total, nil
}

// R2Score は決定係数（R²）を計算する。yTrue が定数の場合はエラー
func R2Score(yTrue, yPred, w []float64) (float64, error) {
	total, err := checkInputs("R2Score", len(yTrue), len(yPred), w)
	if err != nil {
		return 0, err
	}
	var mean float64
	for i, y := range yTrue {
		mean += weight(w, i) * y
	}
	mean /= total

	var tss, rss float64
	for i, y := range yTrue {
		wi := weight(w, i)
		tss += wi * (y - mean) * (y - mean)
		rss += wi * (y - yPred[i]) * (y - yPred[i])
	}
	if tss == 0 {
		return 0, errors.Newf("R2Score: total sum of squares is zero (no variance in yTrue)")
	}
	return 1 - rss/tss, nil
}
