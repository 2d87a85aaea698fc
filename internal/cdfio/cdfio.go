// Package cdfio loads the empirical request-size CDF named by a config
// file's req_size_dist key. The on-disk format is a small YAML document;
// spec.md leaves this collaborator's format unspecified, so it is the one
// place in the domain stack that carries the teacher's own YAML
// dependency forward.
package cdfio

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Point is one knot of a piecewise-linear CDF: the value reached at
// cumulative probability Prob.
type Point struct {
	Value float64 `yaml:"value"`
	Prob  float64 `yaml:"prob"`
}

// Table is a piecewise-linear CDF, sorted by ascending Prob, with the final
// point at Prob == 1.0.
type Table struct {
	Points []Point `yaml:"points"`
}

// Load reads and validates a CDF table from path.
func Load(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("cdfio: read %s: %w", path, err)
	}

	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("cdfio: parse %s: %w", path, err)
	}
	if err := t.validate(); err != nil {
		return Table{}, fmt.Errorf("cdfio: %s: %w", path, err)
	}
	return t, nil
}

func (t Table) validate() error {
	if len(t.Points) < 1 {
		return fmt.Errorf("table must have at least one point")
	}
	prev := 0.0
	for i, p := range t.Points {
		if p.Prob <= prev {
			return fmt.Errorf("point %d: prob %v must be strictly increasing (previous %v)", i, p.Prob, prev)
		}
		if p.Value < 0 {
			return fmt.Errorf("point %d: value %v must be >= 0", i, p.Value)
		}
		prev = p.Prob
	}
	last := t.Points[len(t.Points)-1]
	if last.Prob != 1.0 {
		return fmt.Errorf("final point must reach prob 1.0, got %v", last.Prob)
	}
	return nil
}
