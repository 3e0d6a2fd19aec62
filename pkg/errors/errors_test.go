package errors

import (
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "GenerateTermUpdate",
			kind:    "booster failure",
			err:     fmt.Errorf("test error"),
			wantMsg: "ebmgo: GenerateTermUpdate: booster failure: test error",
		},
		{
			name:    "without original error",
			op:      "ApplyTermUpdate",
			kind:    "session closed",
			err:     nil,
			wantMsg: "ebmgo: ApplyTermUpdate: session closed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			// 基本的なエラーメッセージの確認
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			formatted := fmt.Sprintf("%+v", err)
			if !strings.Contains(formatted, "errors_test.go") {
				t.Error("Expected stack trace to contain test file name")
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Merge", 4, 5, 1)

	want := "ebmgo: Merge: dimension mismatch on axis 1 (features). Expected 4, got 5"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Error("Error should be castable to *DimensionError")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("max_bins", "must be at least 2", 1)

	want := "ebmgo: validation failed for parameter 'max_bins': must be at least 2 (got: 1)"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var valErr *ValidationError
	if !As(err, &valErr) {
		t.Fatal("Error should be castable to *ValidationError")
	}
	if valErr.ParamName != "max_bins" {
		t.Errorf("ParamName = %v, want max_bins", valErr.ParamName)
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("EBMModel", "Merge")

	want := "ebmgo: EBMModel: this model is not fitted yet. Call Fit() before using Merge()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestWarn(t *testing.T) {
	var got []error
	SetWarningHandler(func(w error) { got = append(got, w) })
	defer SetWarningHandler(nil)

	Warn(NewPrivacyWarning("feature_bounds", "computed from data"))
	Warn(NewParameterWarning("interactions", "forced to 0 for multiclass"))

	if len(got) != 2 {
		t.Fatalf("handler received %d warnings, want 2", len(got))
	}
	var pw *PrivacyWarning
	if !As(got[0], &pw) {
		t.Errorf("first warning = %T, want *PrivacyWarning", got[0])
	}
	if want := "privacy: feature_bounds: computed from data"; got[0].Error() != want {
		t.Errorf("Error() = %v, want %v", got[0].Error(), want)
	}
}

func TestWarnPrefersZerolog(t *testing.T) {
	var handled, logged int
	SetWarningHandler(func(error) { handled++ })
	SetZerologWarnFunc(func(error) { logged++ })
	defer func() {
		SetZerologWarnFunc(nil)
		SetWarningHandler(nil)
	}()

	Warn(NewDataConversionWarning("categorical", "continuous", "non-numeric category dropped"))

	if handled != 0 || logged != 1 {
		t.Errorf("handled = %d, logged = %d; want 0, 1", handled, logged)
	}
}

func TestWrapAndIs(t *testing.T) {
	wrapped := Wrap(ErrNotImplemented, "composition 'rdp'")

	if !Is(wrapped, ErrNotImplemented) {
		t.Error("Expected Is(wrapped, ErrNotImplemented) to be true")
	}
	if !strings.Contains(wrapped.Error(), "composition 'rdp'") {
		t.Error("Expected wrapped error to contain wrapping message")
	}
}

func TestNumericalHelpers(t *testing.T) {
	if err := CheckScalar("metric", math.NaN(), 3); err == nil {
		t.Error("CheckScalar(NaN) should fail")
	}
	if err := CheckScalar("metric", 1.5, 3); err != nil {
		t.Errorf("CheckScalar(1.5) = %v", err)
	}
	if got := SafeDivide(1, 0); got != 0 {
		t.Errorf("SafeDivide(1, 0) = %v, want 0", got)
	}
	if got := Sigmoid(0); got != 0.5 {
		t.Errorf("Sigmoid(0) = %v, want 0.5", got)
	}
	if got := Sigmoid(-1000); got != 0 {
		t.Errorf("Sigmoid(-1000) = %v, want 0", got)
	}
	p := Softmax(nil, []float64{1, 1, 1, 1})
	for _, v := range p {
		if math.Abs(v-0.25) > 1e-12 {
			t.Errorf("Softmax equal scores = %v, want 0.25 each", p)
			break
		}
	}
}
