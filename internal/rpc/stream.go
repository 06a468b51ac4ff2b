package rpc

import "iter"

// MapStream adapts every element of src with fn. The first error ends the
// sequence. Stopping early propagates to src, so the producer is released.
func MapStream[A, B any](src iter.Seq2[A, error], fn func(A) B) iter.Seq2[B, error] {
	return func(yield func(B, error) bool) {
		for a, err := range src {
			if err != nil {
				var zero B
				yield(zero, err)
				return
			}
			if !yield(fn(a), nil) {
				return
			}
		}
	}
}

// ErrStream yields err once.
func ErrStream[T any](err error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		yield(zero, err)
	}
}

// SliceStream yields the elements of items in order.
func SliceStream[T any](items []T) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, it := range items {
			if !yield(it, nil) {
				return
			}
		}
	}
}

// Collect drains seq. It returns the elements received before the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}
