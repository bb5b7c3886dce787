package mgen

// Pagination holds the navigation links of one listing page.
type Pagination struct {
	// First page.
	First int

	// Previous page, or 0 if the current page is the first.
	Previous int

	// Current page.
	Current int

	// Next page, or 0 if the current page is the last.
	Next int

	// Last page.
	Last int

	// Numbers is the list of page numbers to display. The first and last
	// pages are always included and a 0 marks a gap.
	Numbers []int
}

// NewPagination constructs the pagination of page currentPage out of
// lastPage, showing at most visiblePages page numbers (not counting gaps).
func NewPagination(currentPage, lastPage, visiblePages int) Pagination {
	if lastPage < 1 {
		lastPage = 1
	}
	currentPage = max(1, min(currentPage, lastPage))
	visiblePages = max(visiblePages, 3)
	pagination := Pagination{
		First:   1,
		Current: currentPage,
		Last:    lastPage,
	}
	if currentPage > 1 {
		pagination.Previous = currentPage - 1
	}
	if currentPage < lastPage {
		pagination.Next = currentPage + 1
	}
	if lastPage <= visiblePages {
		pagination.Numbers = make([]int, 0, lastPage)
		for page := 1; page <= lastPage; page++ {
			pagination.Numbers = append(pagination.Numbers, page)
		}
		return pagination
	}
	// Slide a window of consecutive pages centered on the current page
	// between the first and last pages, which take one slot each.
	window := visiblePages - 2
	start := currentPage - window/2
	start = max(2, min(start, lastPage-window))
	end := start + window - 1
	pagination.Numbers = make([]int, 0, visiblePages+2)
	pagination.Numbers = append(pagination.Numbers, 1)
	if start > 2 {
		pagination.Numbers = append(pagination.Numbers, 0)
	}
	for page := start; page <= end; page++ {
		pagination.Numbers = append(pagination.Numbers, page)
	}
	if end < lastPage-1 {
		pagination.Numbers = append(pagination.Numbers, 0)
	}
	pagination.Numbers = append(pagination.Numbers, lastPage)
	return pagination
}
