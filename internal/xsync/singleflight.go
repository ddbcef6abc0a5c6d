package xsync

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// SingleFlight deduplicates concurrent calls that share a key.
// The first caller runs fn; the others block and receive its result.
type SingleFlight[T any] struct {
	group *singleflight.Group
}

// NewSingleFlight creates a SingleFlight for values of type T
func NewSingleFlight[T any]() SingleFlight[T] {
	return SingleFlight[T]{group: &singleflight.Group{}}
}

// Do runs fn once per key at any given time
func (s SingleFlight[T]) Do(key string, fn func() (T, error)) (T, error) {
	v, err, _ := s.group.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

// Forget drops the in-flight record for key so the next Do starts a new call
func (s SingleFlight[T]) Forget(key string) {
	s.group.Forget(key)
}

// DoContext is Do for work that takes a context. fn runs on ctx without its
// cancellation, so one caller giving up does not fail the others; each
// caller still stops waiting when its own ctx is done.
func (s SingleFlight[T]) DoContext(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		out, _ := res.Val.(T)
		return out, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
