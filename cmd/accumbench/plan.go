package main

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	defaultWorkers = 8
	defaultOps     = 100_000

	// float-adder results stay exact while every partial sum is an
	// integer multiple of 0.5 below 2^53.
	maxFloatOps = 1 << 52
)

// Plan is a list of scenarios run one after another.
type Plan struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// Scenario describes one load run against a freshly created accumulator.
type Scenario struct {
	Name     string `yaml:"name"`
	Kind     Kind   `yaml:"kind"`
	Workers  int    `yaml:"workers"`
	Ops      int    `yaml:"ops"`
	MaxCells int    `yaml:"max_cells,omitempty"`
}

func (s *Scenario) applyDefaults() {
	if s.Workers == 0 {
		s.Workers = defaultWorkers
	}
	if s.Ops == 0 {
		s.Ops = defaultOps
	}
	if s.Name == "" {
		s.Name = string(s.Kind)
	}
}

func (s *Scenario) validate() error {
	if !s.Kind.valid() {
		return errors.Errorf("unknown kind %q, expected one of %v", s.Kind, kinds)
	}
	if s.Workers < 1 {
		return errors.Errorf("workers must be positive, got %d", s.Workers)
	}
	if s.Ops < 1 {
		return errors.Errorf("ops must be positive, got %d", s.Ops)
	}
	if s.MaxCells < 0 {
		return errors.Errorf("max_cells must not be negative, got %d", s.MaxCells)
	}
	if s.Kind == KindFloatAdder && int64(s.Workers)*int64(s.Ops) > maxFloatOps {
		return errors.Errorf("float-adder total of %d operations cannot be checked exactly", int64(s.Workers)*int64(s.Ops))
	}
	return nil
}

func loadPlan(path string) (*Plan, error) {
	buff, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read plan %s", path)
	}
	plan, err := parsePlan(buff)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid plan %s", path)
	}
	return plan, nil
}

func parsePlan(buff []byte) (*Plan, error) {
	plan := &Plan{}
	dec := yaml.NewDecoder(bytes.NewReader(buff))
	dec.KnownFields(true)
	if err := dec.Decode(plan); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "failed to parse yaml")
	}
	if len(plan.Scenarios) == 0 {
		return nil, errors.New("no scenarios")
	}

	names := make(map[string]struct{}, len(plan.Scenarios))
	for i := range plan.Scenarios {
		s := &plan.Scenarios[i]
		s.applyDefaults()
		if err := s.validate(); err != nil {
			return nil, errors.Wrapf(err, "scenario %d", i)
		}
		if _, ok := names[s.Name]; ok {
			return nil, errors.Errorf("scenario %d: duplicate name %q", i, s.Name)
		}
		names[s.Name] = struct{}{}
	}
	return plan, nil
}
