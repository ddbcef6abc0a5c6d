package trace

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"
)

type contextKey string

const traceKey contextKey = "storefront_trace"

// Trace collects timed spans for a single operation
type Trace struct {
	mu     sync.Mutex
	spans  []Span
	start  time.Time
	last   time.Time
	opName string
	enable bool
}

// Span is one recorded step. Duration is the time since the previous span.
type Span struct {
	Name     string
	Duration time.Duration
	Details  map[string]any
}

func newTrace(opName string) *Trace {
	now := time.Now()
	return &Trace{
		start:  now,
		last:   now,
		opName: opName,
		enable: true,
	}
}

// WithTrace returns a context carrying a fresh trace.
// Without an explicit name the caller's function name is used.
func WithTrace(ctx context.Context, opName ...string) context.Context {
	name := "Operation"
	if len(opName) > 0 && opName[0] != "" {
		name = opName[0]
	} else if pc, _, _, ok := runtime.Caller(1); ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			name = fn.Name()
		}
	}
	return context.WithValue(ctx, traceKey, newTrace(name))
}

// FromContext returns the trace stored in ctx, or a disabled trace whose
// methods do nothing.
func FromContext(ctx context.Context) *Trace {
	if tr, ok := ctx.Value(traceKey).(*Trace); ok {
		return tr
	}
	return &Trace{enable: false}
}

// Enabled reports whether spans are being recorded
func (t *Trace) Enabled() bool {
	return t.enable
}

// RecordSpan appends a span timed from the previous one
func (t *Trace) RecordSpan(name string, details ...map[string]any) {
	if !t.enable {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	span := Span{Name: name, Duration: time.Since(t.last)}
	if len(details) > 0 {
		span.Details = details[0]
	}
	t.spans = append(t.spans, span)
	t.last = time.Now()
}

// Total returns the time elapsed since the trace started
func (t *Trace) Total() time.Duration {
	return time.Since(t.start)
}

// Dump formats the trace for logs
func (t *Trace) Dump() string {
	if !t.enable {
		return ""
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.spans) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== Trace [%s]: Total %v ===\n", t.opName, t.Total())
	for i, span := range t.spans {
		fmt.Fprintf(&b, "[%d] %s: %v", i+1, span.Name, span.Duration)
		if len(span.Details) > 0 {
			fmt.Fprintf(&b, " %+v", span.Details)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Spans returns a copy of the recorded spans
func (t *Trace) Spans() []Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	spans := make([]Span, len(t.spans))
	copy(spans, t.spans)
	return spans
}
