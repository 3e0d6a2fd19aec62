package tensor

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestForEachIndexOrder(t *testing.T) {
	var got [][]int
	ForEachIndex([]int{2, 3}, func(idx []int) {
		got = append(got, append([]int(nil), idx...))
	})
	want := [][]int{{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {1, 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ForEachIndex mismatch (-want +got):\n%s", diff)
	}
}

func TestForEachIndexEdgeShapes(t *testing.T) {
	tests := []struct {
		name  string
		shape []int
		want  int
	}{
		{"scalar", []int{}, 1},
		{"empty axis", []int{3, 0, 2}, 0},
		{"rank three", []int{2, 2, 2}, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := 0
			ForEachIndex(tt.shape, func([]int) { n++ })
			if n != tt.want {
				t.Errorf("visited %d, want %d", n, tt.want)
			}
		})
	}
}

func TestTranspose(t *testing.T) {
	src, err := FromData([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	tr, err := src.Transpose([]int{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{3, 2}, tr.Shape()); diff != "" {
		t.Errorf("shape (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{1, 4, 2, 5, 3, 6}, tr.Data()); diff != "" {
		t.Errorf("data (-want +got):\n%s", diff)
	}
}

func TestSlicesAndSums(t *testing.T) {
	tn, _ := FromData([]float64{0, 1, 2, 3, 4, 5}, 2, 3)

	if got := tn.SliceSum(1, 0); got != 3 {
		t.Errorf("SliceSum(1,0) = %v, want 3", got)
	}
	if got := tn.SliceSum(0, 1); got != 12 {
		t.Errorf("SliceSum(0,1) = %v, want 12", got)
	}
	if diff := cmp.Diff([]float64{3, 5, 7}, tn.AxisSums(1)); diff != "" {
		t.Errorf("AxisSums (-want +got):\n%s", diff)
	}

	tn.SetSlice(1, 2, 0)
	if diff := cmp.Diff([]float64{0, 1, 0, 3, 4, 0}, tn.Data()); diff != "" {
		t.Errorf("SetSlice (-want +got):\n%s", diff)
	}
	if tn.Sum() != 8 {
		t.Errorf("Sum() = %v, want 8", tn.Sum())
	}
}

func TestFromDataShapeMismatch(t *testing.T) {
	if _, err := FromData([]float64{1, 2, 3}, 2, 2); err == nil {
		t.Error("expected dimension error")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	src, _ := FromData([]float64{0.5, -1, 2, 0}, 2, 2)
	b, err := json.Marshal(src)
	if err != nil {
		t.Fatal(err)
	}
	var dst Tensor
	if err := json.Unmarshal(b, &dst); err != nil {
		t.Fatal(err)
	}
	if !src.Equal(&dst) {
		t.Errorf("round trip = %v, want %v", dst.String(), src.String())
	}
	if dst.At(1, 0) != 2 {
		t.Errorf("At(1,0) = %v, want 2", dst.At(1, 0))
	}
}
