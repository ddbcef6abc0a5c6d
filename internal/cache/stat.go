package cache

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

// Stat tracks cache hits and misses
type Stat struct {
	name         string
	hit          atomic.Uint64
	miss         atomic.Uint64
	sizeCallback func() int
	logf         func(format string, args ...any)
}

// StatSnapshot is a point-in-time copy of the counters
type StatSnapshot struct {
	Hit      uint64
	Miss     uint64
	Elements int
}

// HitRatio returns hits as a percentage of lookups, or 0 with no lookups
func (s StatSnapshot) HitRatio() float32 {
	total := s.Hit + s.Miss
	if total == 0 {
		return 0
	}
	return 100 * float32(s.Hit) / float32(total)
}

// NewStat creates a stat tracker. sizeCallback may be nil.
func NewStat(name string, sizeCallback func() int) *Stat {
	return &Stat{
		name:         name,
		sizeCallback: sizeCallback,
		logf:         log.Printf,
	}
}

func (cs *Stat) IncrementHit() {
	cs.hit.Add(1)
}

func (cs *Stat) IncrementMiss() {
	cs.miss.Add(1)
}

// Snapshot reads the counters without resetting them
func (cs *Stat) Snapshot() StatSnapshot {
	snap := StatSnapshot{Hit: cs.hit.Load(), Miss: cs.miss.Load()}
	if cs.sizeCallback != nil {
		snap.Elements = cs.sizeCallback()
	}
	return snap
}

// Run logs and resets the counters every interval until ctx is done.
// Quiet intervals are not logged.
func (cs *Stat) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs.flush()
		}
	}
}

func (cs *Stat) flush() {
	snap := StatSnapshot{Hit: cs.hit.Swap(0), Miss: cs.miss.Swap(0)}
	total := snap.Hit + snap.Miss
	if total == 0 {
		return
	}
	if cs.sizeCallback != nil {
		snap.Elements = cs.sizeCallback()
	}

	cs.logf("[Storefront Cache %s] qpm: %d, hit_ratio: %.1f%%, elements: %d, hit: %d, miss: %d",
		cs.name, total, snap.HitRatio(), snap.Elements, snap.Hit, snap.Miss)
}
