package tgui

import "fmt"

// Page describes one window of a paginated list. Index is 0-based.
type Page struct {
	Index   int
	Size    int
	Pages   int
	Total   int
	From    int // first item offset
	To      int // offset after the last item
	HasPrev bool
	HasNext bool
}

// PaginateSlice returns the items on page and its description. An
// out-of-range page is clamped to the nearest valid one.
func PaginateSlice[T any](items []T, page, size int) ([]T, Page) {
	if size <= 0 {
		size = 10
	}
	total := len(items)
	pages := (total + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	if page >= pages {
		page = pages - 1
	}
	if page < 0 {
		page = 0
	}
	from := min(page*size, total)
	to := min(from+size, total)
	return items[from:to], Page{
		Index:   page,
		Size:    size,
		Pages:   pages,
		Total:   total,
		From:    from,
		To:      to,
		HasPrev: page > 0,
		HasNext: to < total,
	}
}

// Label returns a compact pagination label, e.g. "Page 2/5 • 11–20 of 47".
func (p Page) Label() string {
	if p.Total <= 0 {
		return "Page 1/1"
	}
	return fmt.Sprintf("Page %d/%d • %d–%d of %d", p.Index+1, p.Pages, p.From+1, p.To, p.Total)
}
