package main

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/YuminosukeSato/ebmgo/binning"
	"github.com/YuminosukeSato/ebmgo/ebm"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// table is a CSV file held column by column.
type table struct {
	header []string
	cols   map[string][]string
	rows   int
}

func readTable(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return parseTable(f)
}

func parseTable(r io.Reader) (*table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read csv header")
	}
	t := &table{header: header, cols: make(map[string][]string, len(header))}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
		if _, dup := t.cols[header[i]]; dup {
			return nil, errors.NewValidationError("csv", "duplicate column", header[i])
		}
		t.cols[header[i]] = nil
	}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read csv row %d", t.rows+2)
		}
		for i, h := range header {
			t.cols[h] = append(t.cols[h], rec[i])
		}
		t.rows++
	}
	if t.rows == 0 {
		return nil, errors.ErrEmptyData
	}
	return t, nil
}

func (t *table) column(name string) ([]string, error) {
	c, ok := t.cols[name]
	if !ok {
		return nil, errors.NewValidationError("csv", "missing column", name)
	}
	return c, nil
}

func (t *table) numeric(name string) ([]float64, error) {
	raw, err := t.column(name)
	if err != nil {
		return nil, err
	}
	col, err := (&ebm.FeatureSpec{Name: name, Type: binning.TypeContinuous}).Column(raw)
	if err != nil {
		return nil, err
	}
	return col.Numeric, nil
}

// features converts the named columns with their declared types.
func (t *table) features(specs []ebm.FeatureSpec) ([]*binning.Column, error) {
	out := make([]*binning.Column, len(specs))
	for i := range specs {
		raw, err := t.column(specs[i].Name)
		if err != nil {
			return nil, err
		}
		if out[i], err = specs[i].Column(raw); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// modelSpecs describes the input columns a fitted model expects.
func modelSpecs(m *ebm.Model) []ebm.FeatureSpec {
	specs := make([]ebm.FeatureSpec, len(m.Features))
	for i, f := range m.Features {
		specs[i] = ebm.FeatureSpec{Name: f.Name, Type: f.Type}
	}
	return specs
}
