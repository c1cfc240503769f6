package paginate

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDisplayPage_Pages(t *testing.T) {
	list := []string{"a", "b", "c", "d", "e"}

	assert.Equal(t, []string{"a", "b"}, CreateDisplayPage[string](1, 2)(list))
	assert.Equal(t, []string{"c", "d"}, CreateDisplayPage[string](2, 2)(list))
	assert.Equal(t, []string{"e"}, CreateDisplayPage[string](3, 2)(list))
}

func TestCreateDisplayPage_ClampsPage(t *testing.T) {
	list := []int{1, 2, 3, 4, 5}

	assert.Equal(t, []int{5}, CreateDisplayPage[int](99, 2)(list), "page past the end clamps to the last page")
	assert.Equal(t, []int{1, 2}, CreateDisplayPage[int](0, 2)(list), "page below 1 clamps to the first page")
	assert.Equal(t, []int{1, 2}, CreateDisplayPage[int](-3, 2)(list))
}

func TestCreateDisplayPage_All(t *testing.T) {
	list := []int{3, 1, 2}
	for _, page := range []int{-1, 0, 1, 2, 100} {
		assert.Equal(t, list, CreateDisplayPage[int](page, All)(list), "page %d", page)
	}
	assert.Equal(t, list, CreateDisplayPage[int](1, 0)(list), "page size below 1 behaves like All")
}

func TestCreateDisplayPage_Empty(t *testing.T) {
	for _, size := range []int{1, 2, 10, All} {
		got := CreateDisplayPage[int](1, size)(nil)
		require.NotNil(t, got)
		assert.Empty(t, got)
	}
}

// Every page has the expected length and the pages concatenate back to the
// input list.
func TestCreateDisplayPage_Reconstructs(t *testing.T) {
	for count := 0; count <= 23; count++ {
		list := make([]int, count)
		for i := range list {
			list[i] = i * 7
		}
		before := slices.Clone(list)

		for size := 1; size <= 7; size++ {
			var rebuilt []int
			pages := Pages(count, size)
			if count == 0 {
				pages = 0
			}
			for page := 1; page <= pages; page++ {
				got := CreateDisplayPage[int](page, size)(list)
				want := min(size, max(0, count-(page-1)*size))
				require.Len(t, got, want, "count=%d size=%d page=%d", count, size, page)
				rebuilt = append(rebuilt, got...)
			}
			if count == 0 {
				assert.Empty(t, rebuilt)
			} else {
				assert.Equal(t, list, rebuilt, "count=%d size=%d", count, size)
			}
		}
		assert.Equal(t, before, list, "input mutated")
	}
}

func TestCreateDisplayPage_AppendDoesNotClobberInput(t *testing.T) {
	list := []int{1, 2, 3, 4}
	page := CreateDisplayPage[int](1, 2)(list)
	_ = append(page, 99)
	assert.Equal(t, []int{1, 2, 3, 4}, list)
}

func TestPages(t *testing.T) {
	assert.Equal(t, 1, Pages(0, 10))
	assert.Equal(t, 1, Pages(10, 10))
	assert.Equal(t, 2, Pages(11, 10))
	assert.Equal(t, 1, Pages(11, All))
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		page, count, size, want int
	}{
		{page: 9, count: 5, size: 2, want: 3},
		{page: 0, count: 5, size: 2, want: 1},
		{page: 2, count: 0, size: 2, want: 1},
		{page: 2, count: 5, size: All, want: 1},
		{page: 2, count: 5, size: math.MaxInt - 1, want: 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampPage(tt.page, tt.count, tt.size), "%+v", tt)
	}
}

func TestCreateDisplayPage_HugePageSize(t *testing.T) {
	list := []int{1, 2, 3, 4, 5}
	for _, size := range []int{math.MaxInt - 1, math.MaxInt / 2, math.MaxInt/2 + 1} {
		assert.Equal(t, 1, Pages(len(list), size), "size=%d", size)
		for _, page := range []int{1, 2, 3} {
			assert.NotPanics(t, func() {
				assert.Equal(t, list, CreateDisplayPage[int](page, size)(list), "size=%d page=%d", size, page)
			})
		}
	}
}
