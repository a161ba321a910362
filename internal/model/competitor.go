package model

// Competitor is a business discovered near the target location. It is
// immutable once discovered; ExternalID is the provider's stable key.
type Competitor struct {
	ExternalID  string   `json:"external_id"`
	Name        string   `json:"name"`
	Address     string   `json:"address,omitempty"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	Rating      *float64 `json:"rating,omitempty"`       // 0..5
	RatingCount *int     `json:"rating_count,omitempty"` // total reviews on the provider
	PriceLevel  *int     `json:"price_level,omitempty"`  // 1..4
	Distance    *float64 `json:"distance_km,omitempty"`
	Categories  []string `json:"categories,omitempty"`
}

// HasCoordinates reports whether the provider returned a usable position.
func (c Competitor) HasCoordinates() bool {
	return c.Latitude != 0 || c.Longitude != 0
}
