// Package utils provides small helpers shared by the HTTP layer that carry
// no domain logic.
package utils

import "strconv"

// PageParams bounds page-based listing.
type PageParams struct {
	DefaultSize int
	MaxSize     int
}

// ParsePage reads raw page and page_size query values. Missing or malformed
// values fall back to page 1 and p.DefaultSize; sizes are clamped to
// [1, p.MaxSize].
func (p PageParams) ParsePage(rawPage, rawSize string) (page, size int) {
	page = atoiDefault(rawPage, 1)
	if page < 1 {
		page = 1
	}
	size = atoiDefault(rawSize, p.DefaultSize)
	if size < 1 {
		size = 1
	}
	if p.MaxSize > 0 && size > p.MaxSize {
		size = p.MaxSize
	}
	return page, size
}

// TotalPages returns the number of pages needed for total items.
func TotalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
