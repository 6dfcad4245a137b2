package models

// RawBusiness is one listing as returned by the search API. It is never
// modified after collection.
type RawBusiness struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Transactions []string `json:"transactions"`
	Categories   []string `json:"categories"`
	Price        *int     `json:"price,omitempty"`
	Rating       float64  `json:"rating"`
	URL          string   `json:"url"`
}

// HasTransaction reports whether t is one of the business's transactions.
func (b *RawBusiness) HasTransaction(t string) bool {
	for _, tx := range b.Transactions {
		if tx == t {
			return true
		}
	}
	return false
}

// EnrichmentStatus tells whether the page signals were actually read.
type EnrichmentStatus int

const (
	EnrichmentUnavailable EnrichmentStatus = iota
	EnrichmentAvailable
)

func (s EnrichmentStatus) String() string {
	if s == EnrichmentAvailable {
		return "available"
	}
	return "unavailable"
}

// Enrichment holds the two signals scraped from a business page.
type Enrichment struct {
	Status    EnrichmentStatus `json:"status"`
	Reason    string           `json:"reason,omitempty"`
	OpensInAM bool             `json:"opens_in_am"`
	Amenities []string         `json:"amenities"`
}

// Available builds an enrichment read from a parsed page.
func Available(opensInAM bool, amenities []string) Enrichment {
	if amenities == nil {
		amenities = []string{}
	}
	return Enrichment{
		Status:    EnrichmentAvailable,
		OpensInAM: opensInAM,
		Amenities: amenities,
	}
}

// Unavailable builds the default enrichment used when a page could not be
// fetched or parsed.
func Unavailable(reason string) Enrichment {
	return Enrichment{
		Status:    EnrichmentUnavailable,
		Reason:    reason,
		Amenities: []string{},
	}
}
