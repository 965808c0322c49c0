// Package batch groups a stream of items into size-bounded batches.
package batch

import "iter"

// DefaultMaxBytes is the byte budget used when a sink declares none
const DefaultMaxBytes = 512 * 1024

// Limits bounds a batch. MaxItems of zero means no item cap.
type Limits struct {
	MaxBytes int
	MaxItems int
}

// WithDefaults fills an unset byte budget
func (l Limits) WithDefaults() Limits {
	if l.MaxBytes <= 0 {
		l.MaxBytes = DefaultMaxBytes
	}
	return l
}

// Batches lazily groups seq into batches. A batch is closed when it is
// non-empty and the next item would push it past MaxBytes or MaxItems.
// An item that alone exceeds MaxBytes is emitted as a batch of one.
// Items keep their order and each appears in exactly one batch.
func Batches[T any](seq iter.Seq[T], size func(T) int, limits Limits) iter.Seq[[]T] {
	limits = limits.WithDefaults()
	return func(yield func([]T) bool) {
		var current []T
		currentBytes := 0

		for item := range seq {
			n := size(item)
			full := limits.MaxItems > 0 && len(current) >= limits.MaxItems
			if len(current) > 0 && (full || currentBytes+n > limits.MaxBytes) {
				if !yield(current) {
					return
				}
				current = nil
				currentBytes = 0
			}
			current = append(current, item)
			currentBytes += n
		}

		if len(current) > 0 {
			yield(current)
		}
	}
}

// Collect drains a batch sequence, mostly for tests and small inputs
func Collect[T any](seq iter.Seq[[]T]) [][]T {
	var out [][]T
	for b := range seq {
		out = append(out, b)
	}
	return out
}
