package mux

type FilterFunc[T any] func(T) bool

func Any[T any]() FilterFunc[T] {
	return func(T) bool {
		return true
	}
}

func Not[T any](filter FilterFunc[T]) FilterFunc[T] {
	return func(v T) bool {
		return !filter(v)
	}
}

func Or[T any](filters ...FilterFunc[T]) FilterFunc[T] {
	return func(v T) bool {
		for _, filter := range filters {
			if filter(v) {
				return true
			}
		}
		return false
	}
}

func And[T any](filters ...FilterFunc[T]) FilterFunc[T] {
	return func(v T) bool {
		for _, filter := range filters {
			if !filter(v) {
				return false
			}
		}
		return true
	}
}

// Changed accepts a value only if it differs from the one accepted before.
// The returned filter is stateful and must not be shared between sinks.
func Changed[T comparable]() FilterFunc[T] {
	var (
		last T
		seen bool
	)
	return func(v T) bool {
		if seen && v == last {
			return false
		}
		last, seen = v, true
		return true
	}
}
