package service

// PageQueryParam describes one page to request from a catalog whose page size
// (Limit) may differ from the client's. FirstRowToSelect/LastRowToSelect are
// the rows of that page (both included) belonging to the client's page.
type PageQueryParam struct {
	Limit            int
	Page             int
	FirstRowToSelect int
	LastRowToSelect  int
}

// ComputePagesToQuery maps the client's page (clientPage, clientLimit) to the
// catalog pages covering the same rows, given the catalog page size.
func ComputePagesToQuery(clientPage, clientLimit, catalogLimit int) []PageQueryParam {
	firstRow := clientPage * clientLimit
	lastRow := firstRow + clientLimit - 1

	var pages []PageQueryParam
	for page := firstRow / catalogLimit; page <= lastRow/catalogLimit; page++ {
		pages = append(pages, PageQueryParam{
			Limit:            catalogLimit,
			Page:             page,
			FirstRowToSelect: max(0, firstRow-page*catalogLimit),
			LastRowToSelect:  min(catalogLimit-1, lastRow-page*catalogLimit),
		})
	}
	return pages
}

// QueryGetResult selects from hits the rows of a catalog page belonging to the
// client's page (see ComputePagesToQuery). hits may be shorter than expected if
// the catalog has no more results.
func QueryGetResult[T any](queryParams *PageQueryParam, hits []T) []T {
	if queryParams.FirstRowToSelect >= len(hits) {
		return nil
	}
	last := queryParams.LastRowToSelect
	if last >= len(hits) {
		last = len(hits) - 1
	}
	return hits[queryParams.FirstRowToSelect : last+1]
}
