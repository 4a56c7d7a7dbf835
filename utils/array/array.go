package array

func Map[T1, T2 any](array []T1, mapper func(T1) T2) []T2 {
	result := make([]T2, len(array))
	for i, elem := range array {
		result[i] = mapper(elem)
	}
	return result
}

// Returns the first element in the array that satisfies the predicate.
// If no element satisfies the predicate, the second return value is false.
func Find[T any](array []T, predicate func(T) bool) (T, bool) {
	for _, elem := range array {
		if predicate(elem) {
			return elem, true
		}
	}
	var zero T
	return zero, false
}

// Returns the elements that satisfy the predicate, in order.
func Filter[T any](array []T, predicate func(T) bool) []T {
	result := make([]T, 0, len(array))
	for _, elem := range array {
		if predicate(elem) {
			result = append(result, elem)
		}
	}
	return result
}

// Returns the array without repeated elements, keeping the first occurrence.
func Unique[T comparable](array []T) []T {
	seen := make(map[T]struct{}, len(array))
	result := make([]T, 0, len(array))
	for _, elem := range array {
		if _, exists := seen[elem]; exists {
			continue
		}
		seen[elem] = struct{}{}
		result = append(result, elem)
	}
	return result
}
