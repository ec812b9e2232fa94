package shared

// ListFilters represents standard list page filters
type ListFilters struct {
	Page     int
	Limit    int
	Search   string
	SortBy   string
	SortDir  string
	IsActive *bool
	Category string
}

// Offset returns the row offset for Page and Limit.
func (f ListFilters) Offset() int {
	if f.Limit <= 0 || f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// SortDirection normalises SortDir into an SQL keyword.
func (f ListFilters) SortDirection() string {
	if f.SortDir == "desc" {
		return "DESC"
	}
	return "ASC"
}
