package catalog

import "math"

const (
	DefaultPageSize = 12
	MaxPageSize     = 100
	// MaxPage keeps (page-1)*size within int for any normalized size
	MaxPage = math.MaxInt / MaxPageSize
)

// Page is one page of a listing. Page numbers start at 1.
type Page[T any] struct {
	Items    []T  `json:"items"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	Total    int  `json:"total"`
	HasNext  bool `json:"has_next"`
}

// NormalizePage clamps page to [1, MaxPage] and size to [1, MaxPageSize],
// using DefaultPageSize for size <= 0.
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// Bounds returns the [start, end) item range of a normalized page within total
func Bounds(page, size, total int) (start, end int) {
	if total <= 0 || size <= 0 || page < 1 {
		return 0, 0
	}
	if page-1 >= pageCount(size, total) {
		return total, total
	}
	start = (page - 1) * size
	end = total
	if total-start > size {
		end = start + size
	}
	return start, end
}

// pageCount is ceil(total/size) without overflow
func pageCount(size, total int) int {
	n := total / size
	if total%size != 0 {
		n++
	}
	return n
}

// NewPage builds a page. items is the page content, total the full count.
func NewPage[T any](items []T, page, size, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:    items,
		Page:     page,
		PageSize: size,
		Total:    total,
		HasNext:  size > 0 && total > 0 && page < pageCount(size, total),
	}
}
