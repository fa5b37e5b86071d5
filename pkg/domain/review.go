package domain

// ReviewCard is a customer review shown inside the conversation.
type ReviewCard struct {
	ID         string   `json:"id"`
	Author     string   `json:"author"`
	Rating     int      `json:"rating"`
	Title      string   `json:"title,omitempty"`
	Body       string   `json:"body"`
	Images     []string `json:"images,omitempty"`
	CruiseLine string   `json:"cruise_line,omitempty"`
	ShipName   string   `json:"ship_name,omitempty"`
	TravelDate string   `json:"travel_date,omitempty"`
}

// ClampRating bounds a rating to 0..5.
func ClampRating(r int) int {
	switch {
	case r < 0:
		return 0
	case r > 5:
		return 5
	}
	return r
}

// ReviewFilter narrows a review query. An empty ProductCode asks for the broad pool.
type ReviewFilter struct {
	ProductCode string
	CruiseLine  string
	Limit       int
}
