package models

import (
	"strings"
	"time"
)

// Raw record field keys shared by the extraction strategies and the normalizer
const (
	FieldTitle          = "title"
	FieldPrice          = "price"
	FieldURL            = "url"
	FieldExternalID     = "externalId"
	FieldMake           = "make"
	FieldModel          = "model"
	FieldYear           = "year"
	FieldMileage        = "mileage"
	FieldEngineSize     = "engineSize"
	FieldTransmission   = "transmission"
	FieldFuelType       = "fuelType"
	FieldBodyType       = "bodyType"
	FieldLocation       = "location"
	FieldCurrency       = "currency"
	FieldMonthlyPayment = "monthlyPayment"
	FieldLocality       = "locality"
	FieldDriveType      = "driveType"
	FieldDutyPaid       = "dutyPaid"
)

// UnknownValue is used for make/model when they cannot be inferred
const UnknownValue = "Unknown"

// RawRecord is the untyped field bag produced from one listing container
type RawRecord struct {
	SourceID string            `json:"sourceId"`
	Fields   map[string]string `json:"fields"`
	Images   []string          `json:"images,omitempty"`
}

// NewRawRecord creates an empty record for the given source
func NewRawRecord(sourceID string) RawRecord {
	return RawRecord{SourceID: sourceID, Fields: make(map[string]string)}
}

// Get returns the trimmed value of a field, or "" when absent
func (r RawRecord) Get(key string) string {
	if r.Fields == nil {
		return ""
	}
	return strings.TrimSpace(r.Fields[key])
}

// Set stores a trimmed, non-empty value
func (r RawRecord) Set(key, value string) {
	value = strings.TrimSpace(value)
	if value == "" || r.Fields == nil {
		return
	}
	r.Fields[key] = value
}

// Listing is the canonical cross-source vehicle listing
type Listing struct {
	Title        string            `json:"title"`
	Make         string            `json:"make"`
	Model        string            `json:"model"`
	Year         int               `json:"year,omitempty"` // 0 when absent
	Price        int64             `json:"price"`
	PriceParsed  bool              `json:"priceParsed"`
	Currency     string            `json:"currency,omitempty"`
	Mileage      int64             `json:"mileage,omitempty"`
	EngineSize   int64             `json:"engineSize,omitempty"`
	Transmission string            `json:"transmission,omitempty"`
	Location     string            `json:"location,omitempty"`
	FuelType     string            `json:"fuelType,omitempty"`
	BodyType     string            `json:"bodyType,omitempty"`
	Images       []string          `json:"images"`
	Specs        map[string]string `json:"specs,omitempty"`
	SourceURL    string            `json:"sourceUrl"`
	ExternalID   string            `json:"externalId"`
	SourceID     string            `json:"sourceId"`
}

// Valid reports whether the listing carries the minimum identity needed for storage:
// a title, a parsed positive price, an external id and a source URL.
func (l Listing) Valid() bool {
	return strings.TrimSpace(l.Title) != "" &&
		l.PriceParsed && l.Price > 0 &&
		strings.TrimSpace(l.ExternalID) != "" &&
		strings.TrimSpace(l.SourceURL) != ""
}

// Filter holds the optional search criteria for one crawl
type Filter struct {
	Make     string `json:"make,omitempty"`
	Model    string `json:"model,omitempty"`
	MinPrice int64  `json:"minPrice,omitempty"`
	MaxPrice int64  `json:"maxPrice,omitempty"`
	MinYear  int    `json:"minYear,omitempty"`
	MaxYear  int    `json:"maxYear,omitempty"`
	Location string `json:"location,omitempty"`
}

// CrawlResult is the outcome of one paginated crawl
type CrawlResult struct {
	Records      []RawRecord `json:"records"`
	PagesScanned int         `json:"pagesScanned"`
	HasMore      bool        `json:"hasMore"`
}

// DefaultTolerancePct is the relative drift in mileage or price under which
// two listings of the same make, model and year are the same vehicle
const DefaultTolerancePct = 5

// SimilarQuery describes a fuzzy lookup for an already stored listing
type SimilarQuery struct {
	Make         string
	Model        string
	Year         int
	Mileage      int64
	Price        int64
	TolerancePct int64
}

// NewSimilarQuery builds the default ±5% query for l
func NewSimilarQuery(l Listing) SimilarQuery {
	return SimilarQuery{
		Make:         l.Make,
		Model:        l.Model,
		Year:         l.Year,
		Mileage:      l.Mileage,
		Price:        l.Price,
		TolerancePct: DefaultTolerancePct,
	}
}

// Band returns the scaled bounds lo, hi such that a value v is within
// tolerance of ref when lo <= v*100 <= hi
func Band(ref, pct int64) (lo, hi int64) {
	return ref * (100 - pct), ref * (100 + pct)
}

// WithinTolerance reports whether v is within pct percent of ref
func WithinTolerance(v, ref, pct int64) bool {
	lo, hi := Band(ref, pct)
	return v*100 >= lo && v*100 <= hi
}

// Matches reports whether l is a fuzzy duplicate under q. Mileage is only
// compared when the query carries one.
func (q SimilarQuery) Matches(l Listing) bool {
	if !strings.EqualFold(q.Make, l.Make) || !strings.EqualFold(q.Model, l.Model) || q.Year != l.Year {
		return false
	}
	if q.Mileage > 0 && WithinTolerance(l.Mileage, q.Mileage, q.TolerancePct) {
		return true
	}
	return q.Price > 0 && WithinTolerance(l.Price, q.Price, q.TolerancePct)
}

// StoredListing is a listing as persisted by the store
type StoredListing struct {
	ID int64
	Listing
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
