package domain

import (
	"fmt"
	"sort"
	"strings"
)

// AggFunc is an aggregation function applied when collapsing a finer-grained
// join side to one row per key.
type AggFunc int

// Supported aggregation functions.
const (
	AggMean AggFunc = iota + 1
	AggSum
	AggMin
	AggMax
	AggFirst
	AggLast
	AggCount
	AggMedian
)

var aggNames = map[AggFunc]string{
	AggMean:   "mean",
	AggSum:    "sum",
	AggMin:    "min",
	AggMax:    "max",
	AggFirst:  "first",
	AggLast:   "last",
	AggCount:  "count",
	AggMedian: "median",
}

func (f AggFunc) String() string {
	if n, ok := aggNames[f]; ok {
		return n
	}
	return fmt.Sprintf("AggFunc(%d)", int(f))
}

// NumericOnly reports whether the function is only defined for numeric inputs.
func (f AggFunc) NumericOnly() bool {
	return f == AggMean || f == AggSum || f == AggMedian
}

// ParseAggFunc resolves a function name. "avg" is accepted for mean.
func ParseAggFunc(name string) (AggFunc, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "avg" {
		return AggMean, true
	}
	for f, s := range aggNames {
		if s == n {
			return f, true
		}
	}
	return 0, false
}

// Built-in defaults used when a configured default is absent or unknown.
const (
	DefaultNumericAgg     = AggMean
	DefaultCategoricalAgg = AggFirst
)

// GranularitySpec is the raw, user-authored granularity configuration.
type GranularitySpec struct {
	NumericDefault     string            `yaml:"numeric_default,omitempty"`
	CategoricalDefault string            `yaml:"categorical_default,omitempty"`
	Overrides          map[string]string `yaml:"overrides,omitempty"`
}

// Clone returns a deep copy of the spec.
func (s GranularitySpec) Clone() GranularitySpec {
	if s.Overrides != nil {
		m := make(map[string]string, len(s.Overrides))
		for k, v := range s.Overrides {
			m[k] = v
		}
		s.Overrides = m
	}
	return s
}

// GranularityConfig is the validated form of GranularitySpec.
type GranularityConfig struct {
	NumericDefault     AggFunc
	CategoricalDefault AggFunc
	Overrides          map[string]AggFunc
}

// ParseGranularity validates a spec. Unknown function names never fail: they are
// replaced by the built-in default (or dropped, for overrides) and reported as warnings.
func ParseGranularity(spec GranularitySpec) (GranularityConfig, []string) {
	var warnings []string
	cfg := GranularityConfig{
		NumericDefault:     DefaultNumericAgg,
		CategoricalDefault: DefaultCategoricalAgg,
		Overrides:          map[string]AggFunc{},
	}
	if spec.NumericDefault != "" {
		if f, ok := ParseAggFunc(spec.NumericDefault); ok {
			cfg.NumericDefault = f
		} else {
			warnings = append(warnings, fmt.Sprintf("unknown numeric aggregation %q, using %s", spec.NumericDefault, DefaultNumericAgg))
		}
	}
	if spec.CategoricalDefault != "" {
		f, ok := ParseAggFunc(spec.CategoricalDefault)
		switch {
		case !ok:
			warnings = append(warnings, fmt.Sprintf("unknown categorical aggregation %q, using %s", spec.CategoricalDefault, DefaultCategoricalAgg))
		case f.NumericOnly():
			warnings = append(warnings, fmt.Sprintf("aggregation %s is not valid for categorical columns, using %s", f, DefaultCategoricalAgg))
		default:
			cfg.CategoricalDefault = f
		}
	}

	cols := make([]string, 0, len(spec.Overrides))
	for c := range spec.Overrides {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	for _, c := range cols {
		name := spec.Overrides[c]
		f, ok := ParseAggFunc(name)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("dropping override for column %q: unknown aggregation %q", c, name))
			continue
		}
		cfg.Overrides[c] = f
	}
	return cfg, warnings
}

// For picks the aggregation for a column of the given kind.
func (c GranularityConfig) For(column string, numeric bool) AggFunc {
	if f, ok := c.Overrides[column]; ok {
		return f
	}
	if numeric {
		return c.NumericDefault
	}
	return c.CategoricalDefault
}
