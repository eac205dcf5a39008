// Package progress turns raw progress samples into display percentages.
package progress

import (
	"math"

	"github.com/fynovel/fyctl/internal/model"
)

// DefaultCeiling is the percentage where a task is considered to be finalizing
// while the backend has not signaled the end yet.
const DefaultCeiling = 99

// Options tune the percentage computation.
type Options struct {
	// Ceiling is the plateau threshold, if 0 DefaultCeiling is used.
	Ceiling int
	// Terminal is the caller specific "fully done" signal.
	Terminal bool
}

// Result is the display information derived from a sample.
type Result struct {
	Percent   int
	Plateaued bool
	// Known is false when the sample carried no usable information (missing task or zero total).
	Known bool
}

// Compute derives the new display percentage from a sample and the previously displayed one.
// The returned percentage never goes below prev.
func Compute(sample model.ProgressSample, prev int, opts Options) Result {
	ceiling := opts.Ceiling
	if ceiling <= 0 || ceiling > 100 {
		ceiling = DefaultCeiling
	}

	prev = clamp(prev)
	percent := prev
	known := false
	if sample.Exists && sample.Total > 0 {
		known = true
		raw := clamp(int(math.Round(float64(sample.Completed) / float64(sample.Total) * 100)))
		if raw > percent {
			percent = raw
		}
	}

	return Result{
		Percent:   percent,
		Plateaued: !opts.Terminal && percent >= ceiling,
		Known:     known,
	}
}

func clamp(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
