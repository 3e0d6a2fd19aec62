package ebm

import (
	"bytes"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/ebmgo/binning"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
	"github.com/YuminosukeSato/ebmgo/privacy"
)

// Config is the YAML description of a training job.
//
//	training:
//	  private: false
//	  outer_bags: 8
//	target: price
//	features:
//	  - name: size
//	    type: ordinal
//	    order: [S, M, L]
//	privacy_schema:
//	  target: [0, 1000]
//	  features:
//	    area: [0, 500]
type Config struct {
	Training TrainingParams `yaml:"training"`
	// Target names the label column; classification labels are kept as strings.
	Target   string        `yaml:"target"`
	Task     string        `yaml:"task"`
	Features []FeatureSpec `yaml:"features"`
	Privacy  *PrivacySpec  `yaml:"privacy_schema,omitempty"`
}

// Task values.
const (
	TaskRegression     = "regression"
	TaskClassification = "classification"
)

// FeatureSpec declares one input column.
type FeatureSpec struct {
	Name string              `yaml:"name"`
	Type binning.FeatureType `yaml:"type"`
	// Order lists ordinal levels from lowest to highest.
	Order []string `yaml:"order,omitempty"`
	// Missing lists raw strings that mean "missing" besides the empty string.
	Missing []string `yaml:"missing,omitempty"`
}

// PrivacySpec holds public bounds keyed by feature name.
type PrivacySpec struct {
	Target   *[2]float64           `yaml:"target,omitempty"`
	Features map[string][2]float64 `yaml:"features,omitempty"`
}

// LoadConfig reads a YAML job file. Training parameters absent from the file
// keep their defaults, private or regular depending on training.private.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return ParseConfig(raw)
}

// ParseConfig decodes a YAML job description.
func ParseConfig(raw []byte) (*Config, error) {
	var probe struct {
		Training struct {
			Private bool `yaml:"private"`
		} `yaml:"training"`
	}
	if err := yaml.Unmarshal(raw, &probe); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	cfg := &Config{Training: DefaultParams(), Task: TaskRegression}
	if probe.Training.Private {
		cfg.Training = DefaultPrivateParams()
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the job description.
func (c *Config) Validate() error {
	if c.Task != TaskRegression && c.Task != TaskClassification {
		return errors.NewValidationError("task", "must be regression or classification", c.Task)
	}
	if c.Target == "" {
		return errors.NewValidationError("target", "a target column is required", c.Target)
	}
	if len(c.Features) == 0 {
		return errors.NewValidationError("features", "at least one feature is required", 0)
	}
	seen := map[string]bool{c.Target: true}
	for _, f := range c.Features {
		if f.Name == "" {
			return errors.NewValidationError("features", "feature name must not be empty", f.Name)
		}
		if seen[f.Name] {
			return errors.NewValidationError("features", "duplicate column", f.Name)
		}
		seen[f.Name] = true
		if err := f.Type.Validate(); err != nil {
			return err
		}
		if f.Type == binning.TypeOrdinal && len(f.Order) == 0 {
			return errors.NewValidationError(f.Name, "ordinal feature needs an explicit order", nil)
		}
	}
	return c.Training.Validate()
}

// FeatureNames returns the declared names in order.
func (c *Config) FeatureNames() []string {
	names := make([]string, len(c.Features))
	for i, f := range c.Features {
		names[i] = f.Name
	}
	return names
}

// Schema resolves the privacy schema against the declared features. It
// returns nil when no schema is configured.
func (c *Config) Schema() (*privacy.Schema, error) {
	if c.Privacy == nil {
		return nil, nil
	}
	index := make(map[string]int, len(c.Features))
	for i, f := range c.Features {
		index[f.Name] = i
	}
	s := &privacy.Schema{Target: c.Privacy.Target, Features: map[int][2]float64{}}
	for name, b := range c.Privacy.Features {
		i, ok := index[name]
		if !ok {
			return nil, errors.NewValidationError("privacy_schema", "unknown feature", name)
		}
		s.Features[i] = b
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (f *FeatureSpec) isMissing(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return true
	}
	for _, m := range f.Missing {
		if v == m {
			return true
		}
	}
	return false
}

// Column converts raw string values into a typed column.
func (f *FeatureSpec) Column(values []string) (*binning.Column, error) {
	col := &binning.Column{Name: f.Name, Type: f.Type, Order: f.Order}
	if f.Type.IsCategorical() {
		col.Categorical = make([]string, len(values))
		for i, v := range values {
			if !f.isMissing(v) {
				col.Categorical[i] = strings.TrimSpace(v)
			}
		}
		return col, nil
	}
	col.Numeric = make([]float64, len(values))
	for i, v := range values {
		if f.isMissing(v) {
			col.Numeric[i] = math.NaN()
			continue
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, errors.NewValidationError(f.Name, "value is not numeric", v)
		}
		col.Numeric[i] = x
	}
	return col, nil
}
