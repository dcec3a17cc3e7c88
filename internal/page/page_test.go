package page

import "testing"

func TestPaginate(t *testing.T) {
	cases := []struct {
		name       string
		page       int
		limit      int
		total      int
		wantSkip   int
		wantPages  int
		wantNext   bool
		wantPrev   bool
		wantPage   int
		wantLimit  int
	}{
		{name: "first page", page: 1, limit: 10, total: 25, wantSkip: 0, wantPages: 3, wantNext: true, wantPrev: false, wantPage: 1, wantLimit: 10},
		{name: "middle page", page: 2, limit: 10, total: 25, wantSkip: 10, wantPages: 3, wantNext: true, wantPrev: true, wantPage: 2, wantLimit: 10},
		{name: "last page", page: 3, limit: 10, total: 25, wantSkip: 20, wantPages: 3, wantNext: false, wantPrev: true, wantPage: 3, wantLimit: 10},
		{name: "empty collection", page: 4, limit: 10, total: 0, wantSkip: 30, wantPages: 0, wantNext: false, wantPrev: true, wantPage: 4, wantLimit: 10},
		{name: "exact multiple", page: 2, limit: 5, total: 10, wantSkip: 5, wantPages: 2, wantNext: false, wantPrev: true, wantPage: 2, wantLimit: 5},
		{name: "zero page coerced", page: 0, limit: 10, total: 25, wantSkip: 0, wantPages: 3, wantNext: true, wantPrev: false, wantPage: 1, wantLimit: 10},
		{name: "negative inputs coerced", page: -3, limit: -1, total: 4, wantSkip: 0, wantPages: 4, wantNext: true, wantPrev: false, wantPage: 1, wantLimit: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			skip, data := Paginate(tc.page, tc.limit, tc.total)
			if skip != tc.wantSkip {
				t.Fatalf("skip = %d, want %d", skip, tc.wantSkip)
			}
			if data.TotalPages != tc.wantPages {
				t.Fatalf("totalPages = %d, want %d", data.TotalPages, tc.wantPages)
			}
			if data.HasNext != tc.wantNext {
				t.Fatalf("hasNext = %v, want %v", data.HasNext, tc.wantNext)
			}
			if data.HasPrev != tc.wantPrev {
				t.Fatalf("hasPrev = %v, want %v", data.HasPrev, tc.wantPrev)
			}
			if data.Page != tc.wantPage || data.Limit != tc.wantLimit {
				t.Fatalf("page/limit = %d/%d, want %d/%d", data.Page, data.Limit, tc.wantPage, tc.wantLimit)
			}
			if data.Total < 0 {
				t.Fatalf("total = %d, want non-negative", data.Total)
			}
		})
	}
}
