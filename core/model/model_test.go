package model

import (
	"bytes"
	"encoding/json"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

func TestStateManager(t *testing.T) {
	s := NewStateManager()
	if err := s.RequireFitted("EBM", "Predict"); err == nil {
		t.Fatal("RequireFitted() on a fresh manager = nil")
	} else {
		var nf *errors.NotFittedError
		if !errors.As(err, &nf) {
			t.Errorf("error = %T, want NotFittedError", err)
		}
	}

	s.SetFitted(4, 100, 3)
	if !s.IsFitted() {
		t.Fatal("IsFitted() = false after SetFitted")
	}
	if f, n, c := s.Dimensions(); f != 4 || n != 100 || c != 3 {
		t.Errorf("Dimensions() = %d, %d, %d", f, n, c)
	}

	st := s.GetState()
	s.Reset()
	if s.IsFitted() {
		t.Error("IsFitted() = true after Reset")
	}
	s.SetState(st)
	if diff := cmp.Diff(st, s.GetState()); diff != "" {
		t.Errorf("state round trip mismatch (-want +got):\n%s", diff)
	}
}

type doc struct {
	Name   string  `json:"name"`
	Bounds []Float `json:"bounds"`
}

func TestJSONPersistence(t *testing.T) {
	in := doc{Name: "m", Bounds: []Float{Float(math.Inf(-1)), 1.5, Float(math.NaN())}}

	path := filepath.Join(t.TempDir(), "m.json")
	if err := SaveJSON(in, "doc", path); err != nil {
		t.Fatalf("SaveJSON() error = %v", err)
	}
	var out doc
	if err := LoadJSON(&out, "doc", path); err != nil {
		t.Fatalf("LoadJSON() error = %v", err)
	}
	got := Float64s(out.Bounds)
	if !math.IsInf(got[0], -1) || got[1] != 1.5 || !math.IsNaN(got[2]) {
		t.Errorf("bounds = %v", got)
	}

	if err := LoadJSON(&out, "other", path); err == nil {
		t.Error("LoadJSON() accepted the wrong kind")
	}
}

func TestReadJSONRejectsVersion(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(doc{Name: "x"}, "doc", &buf); err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(buf.String(), `"version": "1"`, `"version": "99"`, 1)
	var out doc
	if err := ReadJSON(&out, "doc", strings.NewReader(tampered)); err == nil {
		t.Error("ReadJSON() accepted an unknown version")
	}
}

func TestFloatJSON(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{math.NaN(), `"NaN"`},
		{math.Inf(1), `"Infinity"`},
		{math.Inf(-1), `"-Infinity"`},
		{0.25, `0.25`},
	}
	for _, tt := range tests {
		b, err := json.Marshal(Float(tt.in))
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != tt.want {
			t.Errorf("Marshal(%v) = %s, want %s", tt.in, b, tt.want)
		}
	}
	var f Float
	if err := json.Unmarshal([]byte(`"bogus"`), &f); err == nil {
		t.Error("Unmarshal accepted an unknown literal")
	}
}
