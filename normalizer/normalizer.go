package normalizer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"car-crawler/models"
	"car-crawler/parser"

	"github.com/sirupsen/logrus"
)

// KnownMakes is the reference list used to infer the make from a title.
// Longer names that contain a shorter one come first.
var KnownMakes = []string{
	"Mercedes-Benz", "Land Rover", "Volkswagen", "Mitsubishi", "Chevrolet",
	"Toyota", "Honda", "Nissan", "Mazda", "Subaru", "Mercedes", "BMW",
	"Audi", "Ford", "Hyundai", "Kia", "Lexus", "Suzuki", "Isuzu",
	"Peugeot", "Volvo", "Jeep", "Porsche", "Daihatsu",
}

const minYear = 1900

// specFields are copied verbatim into Listing.Specs
var specFields = []string{
	models.FieldMonthlyPayment,
	models.FieldLocality,
	models.FieldDriveType,
	models.FieldDutyPaid,
}

// Normalizer maps raw records onto the canonical listing schema
type Normalizer struct {
	now func() time.Time
	log *logrus.Entry
}

// New creates a Normalizer using the wall clock for year validation
func New(log *logrus.Entry) *Normalizer {
	return &Normalizer{now: time.Now, log: log.WithField("component", "normalizer")}
}

// WithClock replaces the clock used to bound valid years
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	n.now = now
	return n
}

// NormalizeAll normalizes every record. A record that cannot be normalized
// is logged and skipped; the rest of the batch is unaffected.
func (n *Normalizer) NormalizeAll(records []models.RawRecord) []models.Listing {
	listings := make([]models.Listing, 0, len(records))
	for i, raw := range records {
		listing, err := n.safeNormalize(raw)
		if err != nil {
			n.log.WithError(err).WithFields(logrus.Fields{
				"source_id": raw.SourceID,
				"index":     i,
			}).Warn("skipping record")
			continue
		}
		listings = append(listings, listing)
	}
	return listings
}

func (n *Normalizer) safeNormalize(raw models.RawRecord) (listing models.Listing, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("normalize panicked: %v", r)
		}
	}()
	return n.Normalize(raw), nil
}

// Normalize converts one raw record. Missing or malformed fields become
// zero values, and make/model fall back to "Unknown".
func (n *Normalizer) Normalize(raw models.RawRecord) models.Listing {
	title := parser.CleanText(raw.Get(models.FieldTitle))
	titleSpecs := parser.ParseSpecs(title)

	listing := models.Listing{
		Title:      title,
		SourceID:   raw.SourceID,
		ExternalID: raw.Get(models.FieldExternalID),
		Currency:   strings.ToUpper(raw.Get(models.FieldCurrency)),
		Location:   strings.ToLower(parser.CleanText(raw.Get(models.FieldLocation))),
		Images:     normalizeImages(raw.Images),
	}

	if u := raw.Get(models.FieldURL); parser.IsHTTPURL(u) {
		listing.SourceURL = u
	}

	listing.Make, listing.Model = n.makeModel(raw, title)
	listing.Year = n.normalizeYear(raw.Get(models.FieldYear), title)

	if priceText := raw.Get(models.FieldPrice); strings.ContainsAny(priceText, "0123456789") {
		listing.Price = nonNegative(parser.ExtractNumber(priceText))
		listing.PriceParsed = true
	}

	listing.Mileage = nonNegative(parser.ExtractNumber(raw.Get(models.FieldMileage)))
	if listing.Mileage == 0 && titleSpecs.Mileage != "" {
		listing.Mileage = nonNegative(parser.ExtractNumber(titleSpecs.Mileage))
	}

	listing.EngineSize = normalizeEngine(raw.Get(models.FieldEngineSize))
	if listing.EngineSize == 0 && titleSpecs.EngineSize != "" {
		listing.EngineSize = normalizeEngine(titleSpecs.EngineSize + "cc")
	}

	listing.Transmission = firstNonEmpty(strings.ToLower(raw.Get(models.FieldTransmission)), titleSpecs.Transmission)
	listing.FuelType = firstNonEmpty(strings.ToLower(raw.Get(models.FieldFuelType)), titleSpecs.FuelType)
	listing.BodyType = firstNonEmpty(strings.ToLower(raw.Get(models.FieldBodyType)), titleSpecs.BodyType)

	for _, key := range specFields {
		if v := raw.Get(key); v != "" {
			if listing.Specs == nil {
				listing.Specs = make(map[string]string)
			}
			listing.Specs[key] = v
		}
	}

	return listing
}

// makeModel prefers structured fields and otherwise infers from the title
func (n *Normalizer) makeModel(raw models.RawRecord, title string) (string, string) {
	mk := raw.Get(models.FieldMake)
	model := raw.Get(models.FieldModel)

	if mk == "" {
		return InferMakeModel(title)
	}
	known := matchMake(mk)
	// a positional make like "Land" loses to a known make named in the title
	if known == "" && matchMake(title) != "" {
		return InferMakeModel(title)
	}
	if known != "" {
		mk = known
	}
	if model == "" {
		_, model = InferMakeModel(title)
	}
	return mk, model
}

// InferMakeModel finds the first known make contained in title
// (case-insensitive). The model is the first word left after removing the
// make, skipping year tokens. Without a match both values are "Unknown".
func InferMakeModel(title string) (string, string) {
	mk := matchMake(title)
	if mk == "" {
		return models.UnknownValue, models.UnknownValue
	}

	rest := title
	if idx := indexFold(title, mk); idx >= 0 {
		rest = title[:idx] + " " + title[idx+len(mk):]
	}

	for _, word := range strings.Fields(rest) {
		word = strings.Trim(word, "-,|/")
		if word == "" || parser.ExtractYear(word) != 0 && len(word) == 4 {
			continue
		}
		return mk, word
	}
	return mk, models.UnknownValue
}

// indexFold is a case-insensitive strings.Index for an ASCII substr
func indexFold(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}

func matchMake(text string) string {
	lower := strings.ToLower(text)
	for _, m := range KnownMakes {
		if strings.Contains(lower, strings.ToLower(m)) {
			return m
		}
	}
	return ""
}

// normalizeYear takes the year field, or the title, and range checks it
func (n *Normalizer) normalizeYear(field, title string) int {
	year := parser.ExtractYear(field)
	if year == 0 && field != "" {
		if v, err := strconv.Atoi(strings.TrimSpace(field)); err == nil {
			year = v
		}
	}
	if year == 0 {
		year = parser.ExtractYear(title)
	}
	if year < minYear || year > n.now().Year()+1 {
		return 0
	}
	return year
}

// normalizeEngine returns displacement in cc
func normalizeEngine(text string) int64 {
	if text == "" {
		return 0
	}
	if cc := parser.ParseSpecs(text).EngineSize; cc != "" {
		v, _ := strconv.ParseInt(cc, 10, 64)
		return nonNegative(v)
	}
	return nonNegative(parser.ExtractNumber(text))
}

func normalizeImages(images []string) []string {
	set := parser.NewImageSet()
	for _, img := range images {
		if img = strings.TrimSpace(img); parser.IsHTTPURL(img) {
			set.Add(img)
		}
	}
	return set.List()
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
