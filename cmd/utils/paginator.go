package utils

import "strconv"

const PostsPerPage = 10

// Paginator splits Count items into pages of PerPage.
type Paginator struct {
	Count   int64
	PerPage int
}

func NewPaginator(count int64, perPage int) Paginator {
	if perPage < 1 {
		perPage = PostsPerPage
	}
	if count < 0 {
		count = 0
	}
	return Paginator{Count: count, PerPage: perPage}
}

// NumPages is never less than one; an empty listing still has an empty first page.
func (p Paginator) NumPages() int {
	if p.Count == 0 {
		return 1
	}
	return int((p.Count + int64(p.PerPage) - 1) / int64(p.PerPage))
}

// Number turns the raw ?page= value into a valid page number. Garbage falls
// back to the first page, numbers past the end to the last one.
func (p Paginator) Number(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	if last := p.NumPages(); n > last {
		return last
	}
	return n
}

// Bounds returns the offset and limit of page n.
func (p Paginator) Bounds(n int) (offset, limit int) {
	offset = (n - 1) * p.PerPage
	limit = p.PerPage
	if rest := int(p.Count) - offset; rest < limit {
		limit = max(rest, 0)
	}
	return offset, limit
}

type Page[T any] struct {
	Items    []T
	Number   int
	NumPages int
	Count    int64
}

func NewPage[T any](items []T, number int, p Paginator) Page[T] {
	return Page[T]{Items: items, Number: number, NumPages: p.NumPages(), Count: p.Count}
}

// PageOf slices an in-memory ordered collection.
func PageOf[T any](items []T, perPage int, raw string) Page[T] {
	p := NewPaginator(int64(len(items)), perPage)
	n := p.Number(raw)
	offset, limit := p.Bounds(n)
	return NewPage(items[offset:offset+limit], n, p)
}

func (p Page[T]) HasNext() bool     { return p.Number < p.NumPages }
func (p Page[T]) HasPrevious() bool { return p.Number > 1 }
func (p Page[T]) HasOtherPages() bool {
	return p.HasNext() || p.HasPrevious()
}
func (p Page[T]) NextNumber() int     { return p.Number + 1 }
func (p Page[T]) PreviousNumber() int { return p.Number - 1 }
func (p Page[T]) Len() int            { return len(p.Items) }

// PageRange lists every page number, for the page links.
func (p Page[T]) PageRange() []int {
	r := make([]int, p.NumPages)
	for i := range r {
		r[i] = i + 1
	}
	return r
}
