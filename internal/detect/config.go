package detect

import (
	"fmt"
	"strings"

	"ricorrenti/internal/core"
)

const (
	DefaultMinCount       = 3
	DefaultFuzzyThreshold = 85
	DefaultWorkers        = 1
)

// DefaultTolerance is one currency unit.
var DefaultTolerance = core.Money{Cents: 100}

// Config holds the detection parameters.
type Config struct {
	// Tolerance is the maximum distance between an amount and the first
	// member of the bucket it joins.
	Tolerance core.Money
	// MinCount is the minimum number of occurrences for a recurring group.
	MinCount int
	// FuzzyThreshold is the minimum similarity (0-100) for two descriptions
	// to share a vendor group.
	FuzzyThreshold float64
	// FuzzyMatching selects token-sort similarity; when false grouping falls
	// back to exact description matches.
	FuzzyMatching bool
	// Workers bounds the number of vendor groups bucketed concurrently.
	Workers int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Tolerance:      DefaultTolerance,
		MinCount:       DefaultMinCount,
		FuzzyThreshold: DefaultFuzzyThreshold,
		FuzzyMatching:  true,
		Workers:        DefaultWorkers,
	}
}

// Validate returns an error listing every invalid parameter.
func (c Config) Validate() error {
	var errors []string
	if c.Tolerance.Cents < 0 {
		errors = append(errors, fmt.Sprintf("invalid tolerance %s: must not be negative", c.Tolerance))
	}
	if c.MinCount < 1 {
		errors = append(errors, fmt.Sprintf("invalid min count %d: must be at least 1", c.MinCount))
	}
	if c.FuzzyThreshold < 0 || c.FuzzyThreshold > 100 {
		errors = append(errors, fmt.Sprintf("invalid fuzzy threshold %v: must be between 0 and 100", c.FuzzyThreshold))
	}
	if c.Workers < 1 {
		errors = append(errors, fmt.Sprintf("invalid workers %d: must be at least 1", c.Workers))
	}
	if len(errors) > 0 {
		return fmt.Errorf("detection config validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}
