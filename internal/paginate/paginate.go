// Package paginate slices ordered lists into display pages.
package paginate

import "math"

// All is the page size that disables paging: the whole list is one page.
const All = math.MaxInt

// DefaultPageSize is used by callers that accept an optional page size.
const DefaultPageSize = 25

// CreateDisplayPage returns a function that selects the 1-indexed page of
// pageSize items from a list. The page number is clamped into
// [1, ceil(len/pageSize)]. A pageSize of All, or any pageSize below 1,
// returns the list unmodified. The input is never modified, and the returned
// slice has no spare capacity, so appending to it cannot overwrite the input.
func CreateDisplayPage[T any](page, pageSize int) func(list []T) []T {
	return func(list []T) []T {
		count := len(list)
		if count == 0 {
			return []T{}
		}
		if pageSize < 1 || pageSize == All {
			return list
		}

		start := (ClampPage(page, count, pageSize) - 1) * pageSize
		end := start + min(pageSize, count-start)
		return list[start:end:end]
	}
}

// Pages returns the number of pages needed to show count items, at least 1.
func Pages(count, pageSize int) int {
	if count <= 0 || pageSize < 1 || pageSize == All {
		return 1
	}
	n := count / pageSize
	if count%pageSize != 0 {
		n++
	}
	return n
}

// ClampPage returns page clamped into [1, Pages(count, pageSize)].
func ClampPage(page, count, pageSize int) int {
	return clamp(page, 1, Pages(count, pageSize))
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
