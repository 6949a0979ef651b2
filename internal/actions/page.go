package actions

import (
	"github.com/mattn/go-runewidth"
)

// maxTemplateWidth caps how much of a template a listing line shows.
const maxTemplateWidth = 80

// Item is one listing line.
type Item struct {
	Key      string
	Template string
}

// PageView is one page of the sorted catalog. Page is zero-based.
type PageView struct {
	Items      []Item
	Page       int
	TotalPages int
}

// Prev returns the previous page index, wrapping to the last page.
func (p PageView) Prev() int { return (p.Page - 1 + p.TotalPages) % p.TotalPages }

// Next returns the next page index, wrapping to the first page.
func (p PageView) Next() int { return (p.Page + 1) % p.TotalPages }

// Page slices snap into pages of size keys sorted alphabetically. Any page
// index is accepted and wrapped into range; an empty catalog has one empty page.
func Page(snap map[string]string, page, size int) PageView {
	if size <= 0 {
		size = 20
	}
	keys := Keys(snap)
	total := (len(keys) + size - 1) / size
	if total == 0 {
		total = 1
	}
	page %= total
	if page < 0 {
		page += total
	}

	start := page * size
	end := min(start+size, len(keys))

	view := PageView{Page: page, TotalPages: total}
	for _, k := range keys[start:end] {
		view.Items = append(view.Items, Item{
			Key:      k,
			Template: runewidth.Truncate(snap[k], maxTemplateWidth, "…"),
		})
	}
	return view
}
