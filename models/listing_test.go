package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validListing() Listing {
	return Listing{
		Title:       "2016 Toyota Fielder",
		Make:        "Toyota",
		Model:       "Fielder",
		Year:        2016,
		Price:       1650000,
		PriceParsed: true,
		Mileage:     85000,
		SourceURL:   "https://autochek.africa/ke/car/x-ref-1",
		ExternalID:  "1",
		SourceID:    "cheki",
	}
}

func TestListingValid(t *testing.T) {
	assert.True(t, validListing().Valid())

	tests := []struct {
		name   string
		mutate func(l *Listing)
	}{
		{"no title", func(l *Listing) { l.Title = "  " }},
		{"zero price", func(l *Listing) { l.Price = 0 }},
		{"unparsed price", func(l *Listing) { l.PriceParsed = false }},
		{"no external id", func(l *Listing) { l.ExternalID = "" }},
		{"no source url", func(l *Listing) { l.SourceURL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := validListing()
			tt.mutate(&l)
			assert.False(t, l.Valid())
		})
	}
}

func TestRawRecordAccessors(t *testing.T) {
	var zero RawRecord
	assert.Equal(t, "", zero.Get(FieldTitle))
	zero.Set(FieldTitle, "ignored")

	rec := NewRawRecord("usedcars")
	rec.Set(FieldTitle, "  Honda Fit ")
	rec.Set(FieldPrice, "   ")
	assert.Equal(t, "Honda Fit", rec.Get(FieldTitle))
	_, ok := rec.Fields[FieldPrice]
	assert.False(t, ok, "blank values are not stored")
}

func TestWithinTolerance(t *testing.T) {
	tests := []struct {
		name     string
		v, ref   int64
		expected bool
	}{
		{"equal", 100000, 100000, true},
		{"lower edge", 95000, 100000, true},
		{"upper edge", 105000, 100000, true},
		{"below", 94999, 100000, false},
		{"above", 105001, 100000, false},
		{"twenty percent", 120000, 100000, false},
		{"zero ref", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, WithinTolerance(tt.v, tt.ref, DefaultTolerancePct))
		})
	}
}

func TestSimilarQueryMatches(t *testing.T) {
	base := validListing()
	q := NewSimilarQuery(base)

	near := base
	near.Mileage = 88000
	near.Price = 2500000
	assert.True(t, q.Matches(near), "mileage within 5%")

	priceOnly := base
	priceOnly.Mileage = 150000
	priceOnly.Price = 1700000
	assert.True(t, q.Matches(priceOnly), "price within 5%")

	far := base
	far.Mileage = base.Mileage * 120 / 100
	far.Price = base.Price * 120 / 100
	assert.False(t, q.Matches(far))

	otherYear := near
	otherYear.Year = 2017
	assert.False(t, q.Matches(otherYear))

	caseInsensitive := near
	caseInsensitive.Make = "TOYOTA"
	assert.True(t, q.Matches(caseInsensitive))

	noMileage := NewSimilarQuery(Listing{Make: "Toyota", Model: "Fielder", Year: 2016, Price: 1000000})
	zeroMileage := Listing{Make: "Toyota", Model: "Fielder", Year: 2016, Price: 3000000}
	assert.False(t, noMileage.Matches(zeroMileage), "missing mileage never matches by itself")
}
