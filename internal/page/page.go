// Package page computes skip offsets and page metadata for list endpoints.
package page

// Data describes one page of a listing. It is derived per request and never stored.
type Data struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// Paginate coerces page and limit to natural numbers and returns the storage
// skip offset together with the page metadata. It never fails.
func Paginate(pageNum, limit, total int) (int, Data) {
	if pageNum < 1 {
		pageNum = 1
	}
	if limit < 1 {
		limit = 1
	}
	if total < 0 {
		total = 0
	}

	totalPages := (total + limit - 1) / limit

	return (pageNum - 1) * limit, Data{
		Page:       pageNum,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    pageNum < totalPages,
		HasPrev:    pageNum > 1,
	}
}
