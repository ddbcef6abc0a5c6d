package prefetch

// Outcome is how a single fetch attempt settled
type Outcome int

const (
	// OutcomeStored means the fetcher returned an entry and it was cached
	OutcomeStored Outcome = iota + 1
	// OutcomeNotFound means the fetcher returned no entry; nothing is cached
	OutcomeNotFound
	// OutcomeFailed means the fetcher errored or panicked; nothing is cached
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStored:
		return "stored"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SkipReason is why a Prefetch call did not start a fetch
type SkipReason int

const (
	SkipCached SkipReason = iota + 1
	SkipPending
)

func (r SkipReason) String() string {
	switch r {
	case SkipCached:
		return "cached"
	case SkipPending:
		return "pending"
	default:
		return "unknown"
	}
}

// result is the internal value of one fetch attempt
type result[T any] struct {
	outcome Outcome
	entry   T
	err     error
}
