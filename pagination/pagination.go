// Package pagination slices ordered collections into fixed-size pages.
//
// A requested page number that is missing or not an integer resolves to the
// first page. A number past the last page, or below one, resolves to the last
// valid page, so a reader who keeps paging while items are deleted lands on
// the tail instead of an error.
package pagination

import (
	"strconv"
	"strings"
)

type Meta struct {
	Number      int  `json:"number"`
	PerPage     int  `json:"per_page"`
	Count       int  `json:"count"`
	NumPages    int  `json:"num_pages"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
	Offset      int  `json:"-"`
}

type Page[T any] struct {
	Items []T `json:"items"`
	Meta
}

// Len is the number of items on the page.
func (p Page[T]) Len() int { return len(p.Items) }

// Resolve computes page metadata for a collection of count items without
// touching the items, so callers can fetch just the selected window.
func Resolve(count, perPage int, rawPage string) Meta {
	if perPage <= 0 {
		panic("pagination: perPage must be positive")
	}
	if count < 0 {
		count = 0
	}
	numPages := (count + perPage - 1) / perPage

	number := 1
	if n, err := strconv.Atoi(strings.TrimSpace(rawPage)); err == nil {
		number = n
	}
	if numPages == 0 {
		number = 1
	} else if number < 1 || number > numPages {
		number = numPages
	}

	return Meta{
		Number:      number,
		PerPage:     perPage,
		Count:       count,
		NumPages:    numPages,
		HasNext:     number < numPages,
		HasPrevious: number > 1,
		Offset:      (number - 1) * perPage,
	}
}

// Paginate returns the requested page of items.
func Paginate[T any](items []T, perPage int, rawPage string) Page[T] {
	meta := Resolve(len(items), perPage, rawPage)
	end := min(meta.Offset+perPage, len(items))
	return Of(items[meta.Offset:end], meta)
}

// Of wraps an already selected window of items with its metadata.
func Of[T any](items []T, meta Meta) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Meta: meta}
}
