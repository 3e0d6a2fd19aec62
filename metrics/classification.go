package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// probability clipping used by LogLoss
const eps = 1e-15

// LogLoss は多クラス対数損失を計算する。proba は n×クラス数の確率行列
func LogLoss(classIdx []int, proba mat.Matrix, w []float64) (float64, error) {
	rows, k := proba.Dims()
	total, err := checkInputs("LogLoss", len(classIdx), rows, w)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i, c := range classIdx {
		if c < 0 || c >= k {
			return 0, errors.NewValidationError("classIdx", "class index out of range", c)
		}
		p := math.Min(math.Max(proba.At(i, c), eps), 1-eps)
		sum -= weight(w, i) * math.Log(p)
	}
	return sum / total, nil
}

// Accuracy は重み付き正解率を計算する
func Accuracy(classIdx, predicted []int, w []float64) (float64, error) {
	total, err := checkInputs("Accuracy", len(classIdx), len(predicted), w)
	if err != nil {
		return 0, err
	}
	var hit float64
	for i, c := range classIdx {
		if predicted[i] == c {
			hit += weight(w, i)
		}
	}
	return hit / total, nil
}

// AUC は二値分類の ROC 曲線下面積を計算する。labels は 0 または 1。
// 同じスコアの標本は台形で扱う。
func AUC(labels []int, scores, w []float64) (float64, error) {
	if _, err := checkInputs("AUC", len(labels), len(scores), w); err != nil {
		return 0, err
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	var pos, neg, area float64
	for start := 0; start < len(order); {
		end := start
		var gp, gn float64
		for end < len(order) && scores[order[end]] == scores[order[start]] {
			i := order[end]
			switch labels[i] {
			case 1:
				gp += weight(w, i)
			case 0:
				gn += weight(w, i)
			default:
				return 0, errors.NewValidationError("labels", "must be 0 or 1", labels[i])
			}
			end++
		}
		area += gn * (pos + gp/2)
		pos += gp
		neg += gn
		start = end
	}
	if pos == 0 || neg == 0 {
		return 0, errors.NewValueError("AUC", "both classes must be present")
	}
	return area / (pos * neg), nil
}
