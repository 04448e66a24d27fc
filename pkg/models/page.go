package models

// Page is the envelope every paginated listing responds with.
type Page struct {
	Data        any `json:"data"`
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

func NewPage(data any, page, perPage, total int) Page {
	last := (total + perPage - 1) / perPage
	if last < 1 {
		last = 1
	}
	return Page{
		Data:        data,
		CurrentPage: page,
		LastPage:    last,
		PerPage:     perPage,
		Total:       total,
	}
}
