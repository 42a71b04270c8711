package pricerange

import (
	"car-crawler/models"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// DefaultStep is the default price band width in KES
const DefaultStep = 500000

// Band is one price slice of a search filter
type Band struct {
	Filter models.Filter
	Label  string // e.g., "KES 0-500,000"
	Min    int64
	Max    int64
}

// Split slices the price range of f into bands of step width so that each
// band stays within a source's page limit. A filter without a max price is
// returned as a single band.
func Split(f models.Filter, step int64) []Band {
	if step <= 0 {
		step = DefaultStep
	}
	if f.MaxPrice <= 0 {
		return []Band{{Filter: f, Label: "all prices"}}
	}
	if f.MaxPrice <= f.MinPrice {
		return []Band{{Filter: f, Label: Label(f.MinPrice, f.MaxPrice), Min: f.MinPrice, Max: f.MaxPrice}}
	}

	bands := make([]Band, 0, CountRanges(f.MinPrice, f.MaxPrice, step))
	for lo := f.MinPrice; lo < f.MaxPrice; lo += step {
		hi := lo + step
		if hi > f.MaxPrice {
			hi = f.MaxPrice
		}

		band := f
		band.MinPrice, band.MaxPrice = lo, hi
		bands = append(bands, Band{Filter: band, Label: Label(lo, hi), Min: lo, Max: hi})
	}
	return bands
}

// Label formats a price band like "KES 500,000-1,000,000"
func Label(lo, hi int64) string {
	return printer.Sprintf("KES %d-%d", lo, hi)
}

// CountRanges returns how many step-wide bands fit between priceMin and priceMax
func CountRanges(priceMin, priceMax, step int64) int {
	if step <= 0 || priceMax <= priceMin {
		return 1
	}
	count := (priceMax - priceMin) / step
	if (priceMax-priceMin)%step != 0 {
		count++
	}
	return int(count)
}
