// Package workload generates synthetic client send schedules and converts
// captured traces into replayable ones.
package workload

import (
	"fmt"
	"math"
)

// ClientSpec defines one synthetic traffic source, or Count identical ones.
type ClientSpec struct {
	ID           string      `yaml:"id" toml:"id"`
	Count        int         `yaml:"count,omitempty" toml:"count"` // identical clients, 0 = 1
	Rate         float64     `yaml:"rate" toml:"rate"`             // messages per second
	Arrival      ArrivalSpec `yaml:"arrival" toml:"arrival"`
	Size         DistSpec    `yaml:"size" toml:"size"`                           // payload bytes
	Sessions     int         `yaml:"sessions,omitempty" toml:"sessions"`         // 0 = 1
	Destinations []int       `yaml:"destinations,omitempty" toml:"destinations"` // exit mixes; empty = any exit
	StartSeconds float64     `yaml:"start_seconds,omitempty" toml:"start_seconds"`
	StopSeconds  float64     `yaml:"stop_seconds,omitempty" toml:"stop_seconds"` // 0 = run to horizon
	MaxMessages  int         `yaml:"max_messages,omitempty" toml:"max_messages"` // 0 = unlimited
}

// ArrivalSpec configures the inter-send time process.
type ArrivalSpec struct {
	Process string   `yaml:"process" toml:"process"`
	CV      *float64 `yaml:"cv,omitempty" toml:"cv"`
}

// DistSpec parameterizes a message size distribution.
type DistSpec struct {
	Type   string             `yaml:"type" toml:"type"`
	Params map[string]float64 `yaml:"params,omitempty" toml:"params"`
}

// Valid value registries.
var (
	validArrivalProcesses = map[string]bool{
		"poisson": true, "gamma": true, "weibull": true, "constant": true,
	}
	validDistTypes = map[string]bool{
		"gaussian": true, "exponential": true, "pareto_lognormal": true, "empirical": true, "constant": true,
	}
)

// IsValidArrivalProcess reports whether name is a known arrival process.
func IsValidArrivalProcess(name string) bool {
	return validArrivalProcesses[name]
}

// Expand returns one spec per client, with IDs suffixed "-<i>" when Count > 1.
func (c ClientSpec) Expand() []ClientSpec {
	if c.Count <= 1 {
		one := c
		one.Count = 1
		return []ClientSpec{one}
	}
	out := make([]ClientSpec, c.Count)
	for i := range out {
		out[i] = c
		out[i].Count = 1
		out[i].ID = fmt.Sprintf("%s-%d", c.ID, i)
	}
	return out
}

// Validate checks that all fields in the client spec are valid.
func (c *ClientSpec) Validate() error {
	prefix := fmt.Sprintf("client %q", c.ID)
	if c.ID == "" {
		return fmt.Errorf("client id must not be empty")
	}
	if c.Count < 0 {
		return fmt.Errorf("%s: count must be non-negative, got %d", prefix, c.Count)
	}
	if err := validateFinitePositive(prefix+".rate", c.Rate); err != nil {
		return err
	}
	if !validArrivalProcesses[c.Arrival.Process] {
		return fmt.Errorf("%s: unknown arrival process %q; valid: poisson, gamma, weibull, constant", prefix, c.Arrival.Process)
	}
	if c.Arrival.Process == "weibull" && c.Arrival.CV != nil {
		cv := *c.Arrival.CV
		if cv < 0.01 || cv > 10.4 {
			return fmt.Errorf("%s: weibull CV must be in [0.01, 10.4], got %f", prefix, cv)
		}
	}
	if c.Arrival.CV != nil {
		if err := validateFinitePositive(prefix+".cv", *c.Arrival.CV); err != nil {
			return err
		}
	}
	if err := validateDistSpec(prefix+".size", &c.Size); err != nil {
		return err
	}
	if c.Sessions < 0 {
		return fmt.Errorf("%s: sessions must be non-negative, got %d", prefix, c.Sessions)
	}
	for _, d := range c.Destinations {
		if d < 0 {
			return fmt.Errorf("%s: destination mix %d must be non-negative", prefix, d)
		}
	}
	if c.StartSeconds < 0 || (c.StopSeconds != 0 && c.StopSeconds <= c.StartSeconds) {
		return fmt.Errorf("%s: active window [%g, %g) is empty", prefix, c.StartSeconds, c.StopSeconds)
	}
	if c.MaxMessages < 0 {
		return fmt.Errorf("%s: max_messages must be non-negative, got %d", prefix, c.MaxMessages)
	}
	return nil
}

func validateDistSpec(prefix string, d *DistSpec) error {
	if !validDistTypes[d.Type] {
		return fmt.Errorf("%s: unknown distribution type %q; valid: gaussian, exponential, pareto_lognormal, empirical, constant", prefix, d.Type)
	}
	for name, val := range d.Params {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("%s.params.%s must be a finite number, got %f", prefix, name, val)
		}
	}
	return nil
}

func validateFinitePositive(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val <= 0 {
		return fmt.Errorf("%s must be positive, got %f", name, val)
	}
	return nil
}
