package prefetch

import "time"

// Metrics observes prefetch activity
type Metrics interface {
	Started()
	Skipped(reason SkipReason)
	Settled(outcome Outcome, elapsed time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) Started()                       {}
func (nopMetrics) Skipped(SkipReason)             {}
func (nopMetrics) Settled(Outcome, time.Duration) {}

// NopMetrics returns a Metrics that records nothing
func NopMetrics() Metrics { return nopMetrics{} }
