package core

// Results holds the return values of a mocked function with more than one result.
type Results []any

// Returned converts a mock return value to R, giving R's zero value for nil or a value of another type.
func Returned[R any](value any) R {
	result, ok := value.(R)
	if !ok {
		var zero R

		return zero
	}

	return result
}

// Unpack spreads a mock return value over n results.
// A Results value is used position by position; any other non-nil value fills the first position.
// Missing positions are nil.
func Unpack(value any, n int) Results {
	results := make(Results, n)

	switch typed := value.(type) {
	case nil:
	case Results:
		copy(results, typed)
	default:
		if n > 0 {
			results[0] = value
		}
	}

	return results
}
