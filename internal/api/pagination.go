package api

// Pagination describes a result window for list endpoints. Pages holds page
// numbers with ".." gap markers, always anchored at the first and last page.
type Pagination struct {
	Offset     int           `json:"offset"`
	Limit      int           `json:"limit"`
	Total      int           `json:"total"`
	ActivePage int           `json:"active_page"`
	Pages      []interface{} `json:"pages"`
}

// pageWindow is how many pages are shown on each side of the active page.
const pageWindow = 4

// CreatePagination computes the page strip for an offset/limit window over
// total results. Example: offset 120, limit 20, total 256 gives active page
// 7 of 13 and the strip [1 ".." 3 4 5 6 7 8 9 10 11 ".." 13].
func CreatePagination(offset, limit, total int) Pagination {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	p := Pagination{Offset: offset, Limit: limit, Total: total}
	totalPages := (total + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}
	p.ActivePage = offset/limit + 1
	if p.ActivePage > totalPages {
		p.ActivePage = totalPages
	}

	lo := p.ActivePage - pageWindow
	hi := p.ActivePage + pageWindow
	if lo < 1 {
		lo = 1
	}
	if hi > totalPages {
		hi = totalPages
	}
	if lo > 1 {
		p.Pages = append(p.Pages, 1)
		if lo > 2 {
			p.Pages = append(p.Pages, "..")
		}
	}
	for i := lo; i <= hi; i++ {
		p.Pages = append(p.Pages, i)
	}
	if hi < totalPages {
		if hi < totalPages-1 {
			p.Pages = append(p.Pages, "..")
		}
		p.Pages = append(p.Pages, totalPages)
	}
	return p
}
