package services

import (
	"strings"

	"yelp-dataset/models"
	"yelp-dataset/utils"
)

// LabelThreshold is the rating at or above which a business is labelled 1.
const LabelThreshold = 4.0

// TokenRule sets Feature when any input string contains one of Tokens.
// Matching is case-sensitive.
type TokenRule struct {
	Feature models.Feature
	Tokens  []string
}

func (r TokenRule) matches(values []string) bool {
	for _, v := range values {
		for _, tok := range r.Tokens {
			if strings.Contains(v, tok) {
				return true
			}
		}
	}
	return false
}

// RuleSet is the category and amenity vocabulary used to derive features.
type RuleSet struct {
	Name       string
	Categories []TokenRule
	Amenities  []TokenRule
}

var (
	asianCuisines = []string{"asian", "thai", "sushi", "korean", "chinese", "vietnamese", "japanese", "ramen"}

	amenityRules = []TokenRule{
		{models.HasOutdoorSeating, []string{"Outdoor"}},
		{models.CovidConcerned, []string{"Sanitizing", "Distancing", "Masks", "masks"}},
	}
)

func categoryRules(italianToken string) []TokenRule {
	return []TokenRule{
		{models.HasBar, []string{"bar", "pub"}},
		{models.HasPizza, []string{"pizza"}},
		// Asian cuisines feed has_breakfast; has_asian has no rule and stays false.
		{models.HasBreakfast, append([]string{"breakfast"}, asianCuisines...)},
		{models.HasMexican, []string{"tacos", "mexican"}},
		{models.HasVegan, []string{"vegan"}},
		{models.HasIcecream, []string{"icecream"}},
		{models.IsBakery, []string{"bakeries"}},
		{models.HasItalian, []string{italianToken}},
	}
}

// CorrectedRules matches Italian restaurants on the "italian" alias.
var CorrectedRules = RuleSet{
	Name:       "corrected",
	Categories: categoryRules("italian"),
	Amenities:  amenityRules,
}

// LegacyRules reproduces the first published dataset, whose Italian rule
// looked for the token "has_italian" and so never fired.
var LegacyRules = RuleSet{
	Name:       "legacy",
	Categories: categoryRules("has_italian"),
	Amenities:  amenityRules,
}

// RuleSetByName returns the named rule set, falling back to CorrectedRules.
func RuleSetByName(name string) RuleSet {
	if strings.EqualFold(name, LegacyRules.Name) {
		return LegacyRules
	}
	return CorrectedRules
}

// Deriver turns raw businesses and their enrichments into feature records.
type Deriver struct {
	rules  RuleSet
	logger *utils.Logger
}

// NewDeriver creates a Deriver using rules.
func NewDeriver(rules RuleSet, logger *utils.Logger) *Deriver {
	return &Deriver{rules: rules, logger: logger}
}

// Derive computes the feature record for one business. It never fails:
// absent inputs leave their features false.
func (d *Deriver) Derive(raw *models.RawBusiness, enrichment models.Enrichment) models.FeatureRecord {
	rec := models.FeatureRecord{
		Name:     raw.Name,
		URL:      raw.URL,
		Enriched: enrichment.Status == models.EnrichmentAvailable,
	}

	if raw.Rating >= LabelThreshold {
		rec.Label = 1
	}

	rec.Set(models.HasDelivery, raw.HasTransaction("delivery"))
	rec.Set(models.HasPickup, raw.HasTransaction("pickup"))
	rec.Set(models.HasTakeout, raw.HasTransaction("takeout"))
	rec.Set(models.HasReservations, raw.HasTransaction("restaurant_reservation"))
	rec.Set(models.HighPrices, raw.Price != nil && *raw.Price >= 3)
	rec.Set(models.OpensInAM, enrichment.OpensInAM)

	for _, rule := range d.rules.Categories {
		if rule.matches(raw.Categories) {
			rec.Set(rule.Feature, true)
		}
	}
	for _, rule := range d.rules.Amenities {
		if rule.matches(enrichment.Amenities) {
			rec.Set(rule.Feature, true)
		}
	}

	return rec
}

// DeriveAll derives one record per business. enrichments must be index
// aligned with raws; a missing entry counts as unavailable.
func (d *Deriver) DeriveAll(raws []*models.RawBusiness, enrichments []models.Enrichment) []models.FeatureRecord {
	records := make([]models.FeatureRecord, 0, len(raws))
	positives := 0

	for i, raw := range raws {
		enrichment := models.Unavailable("no enrichment")
		if i < len(enrichments) {
			enrichment = enrichments[i]
		}
		rec := d.Derive(raw, enrichment)
		positives += rec.Label
		records = append(records, rec)
	}

	d.logger.Info("[deriver] Derived %d records with %s rules (%d positive, %d negative)",
		len(records), d.rules.Name, positives, len(records)-positives)
	return records
}
