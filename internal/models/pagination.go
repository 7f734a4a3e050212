package models

// Pagination carries paging metadata in API responses.
type Pagination struct {
	Offset     int  `json:"offset"`
	Limit      int  `json:"limit"`
	TotalCount int  `json:"total_count"`
	HasMore    bool `json:"has_more"`
}
