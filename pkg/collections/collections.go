// Package collections holds generic slice helpers used when mapping stored
// rows to domain values.
package collections

// Apply maps each item through fn, preserving order. A nil input yields an
// empty, non-nil slice.
func Apply[T, V any](items []T, fn func(T) V) []V {
	result := make([]V, len(items))
	for i, item := range items {
		result[i] = fn(item)
	}
	return result
}

// Filter returns the items for which keep returns true, in order.
func Filter[T any](items []T, keep func(T) bool) []T {
	var result []T
	for _, item := range items {
		if keep(item) {
			result = append(result, item)
		}
	}
	return result
}
