package models

import "strings"

type LocationKind string

const (
	KindCountry LocationKind = "countries"
	KindState   LocationKind = "states"
	KindCity    LocationKind = "cities"
	KindArea    LocationKind = "areas"
)

// ParseLocationKind accepts the plural table name used in routes.
func ParseLocationKind(s string) (LocationKind, bool) {
	switch k := LocationKind(strings.ToLower(s)); k {
	case KindCountry, KindState, KindCity, KindArea:
		return k, true
	}
	return "", false
}

// NeedsParent reports whether rows of this kind hang under a parent row.
func (k LocationKind) NeedsParent() bool {
	return k != KindCountry
}

// Location is one row of the country/state/city/area hierarchy.
type Location struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name" validate:"required,max=100"`
	ParentID    *int64 `json:"parent_id,omitempty"`
	Pincode     string `json:"pincode,omitempty" validate:"max=12"`
	Description string `json:"description,omitempty" validate:"max=500"`
}

// CatalogService is a bookable offering. TimeSlots overrides the default
// slot set when non-empty.
type CatalogService struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Category  string   `json:"category"`
	Price     float64  `json:"price"`
	Duration  float64  `json:"duration"`
	TimeSlots []string `json:"time_slots"`
}

// Snapshot copies the catalog entry into the booking's inline details.
func (c *CatalogService) Snapshot() ServiceDetails {
	return ServiceDetails{
		Title:    c.Title,
		Price:    c.Price,
		Duration: c.Duration,
		Category: c.Category,
	}
}
