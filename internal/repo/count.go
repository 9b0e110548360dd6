package repo

import "context"

const countPageSize = 1000

// Count walks every page matching the filter and returns the total number of
// records. Intended for operational queries like per-state counts; large
// result sets pay a full scan.
func Count(ctx context.Context, store StateRepository, filter Filter) (int, error) {
	filter.Token = ""
	if filter.Limit <= 0 {
		filter.Limit = countPageSize
	}
	total := 0
	for {
		page, err := store.Query(ctx, filter)
		if err != nil {
			return 0, err
		}
		total += len(page.Records)
		if page.Token == "" {
			return total, nil
		}
		filter.Token = page.Token
	}
}
