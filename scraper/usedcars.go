package scraper

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"car-crawler/fetcher"
	"car-crawler/models"
	"car-crawler/parser"

	"github.com/PuerkitoBio/goquery"
)

// UsedCarsID is the source id of usedcars.co.ke
const UsedCarsID = "usedcars"

const (
	usedCarsBase         = "https://www.usedcars.co.ke/cars-for-sale"
	usedCarsContainer    = ".row > .col-lg-4, .col-lg-8"
	usedCarsTitle        = "h2.strong"
	usedCarsLocation     = ".fas.fa-map-marker-alt + span"
	usedCarsFuel         = ".fas.fa-gas-pump + span"
	usedCarsTransmission = ".icon-automatic + span"
	usedCarsMileage      = ".fas.fa-road + span"
	usedCarsEngine       = ".icon-engine + span"
	usedCarsDrive        = ".icon-racing + span"
	usedCarsPrice        = ".car-price"
	usedCarsDuty         = ".car-price-duty > span"
	usedCarsImage        = ".img-item-inner"
	usedCarsDetail       = ".btn-view-detail"
	usedCarsNext         = ".pagination .next"
)

// UsedCars extracts listings from usedcars.co.ke
type UsedCars struct {
	site
}

// NewUsedCars creates the usedcars.co.ke strategy
func NewUsedCars(opts Options) *UsedCars {
	return &UsedCars{site: newSite(UsedCarsID, usedCarsBase, []string{usedCarsDetail, ".no-results"}, opts)}
}

// BuildURL maps every filter field to a query parameter
func (u *UsedCars) BuildURL(f models.Filter) string {
	q := url.Values{}
	if f.Make != "" {
		q.Set("make", strings.TrimSpace(f.Make))
	}
	if f.Model != "" {
		q.Set("model", strings.TrimSpace(f.Model))
	}
	setInt(q, "min_year", int64(f.MinYear))
	setInt(q, "max_year", int64(f.MaxYear))
	setInt(q, "min_price", f.MinPrice)
	setInt(q, "max_price", f.MaxPrice)
	if f.Location != "" {
		q.Set("location", f.Location)
	}
	if len(q) == 0 {
		return u.baseURL
	}
	return u.baseURL + "?" + q.Encode()
}

func (u *UsedCars) PageURL(searchURL string, n int) string {
	return withPage(searchURL, "page", n)
}

func (u *UsedCars) ExtractPage(ctx context.Context, page fetcher.Page) []models.RawRecord {
	return u.extract(ctx, page, usedCarsContainer, u.ParseRecord)
}

func (u *UsedCars) HasNextPage(ctx context.Context, page fetcher.Page) bool {
	return u.hasNext(ctx, page, usedCarsNext)
}

// ParseRecord reads one result column. Titles follow "Make Year Model".
func (u *UsedCars) ParseRecord(s *goquery.Selection) models.RawRecord {
	rec := models.NewRawRecord(u.id)

	title := parser.Text(s, usedCarsTitle)
	rec.Set(models.FieldTitle, title)
	if parts := strings.Fields(title); len(parts) > 1 {
		if year, err := strconv.Atoi(parts[1]); err == nil {
			rec.Set(models.FieldYear, strconv.Itoa(year))
		}
	}
	mk, model := titleMakeModel(title)
	rec.Set(models.FieldMake, mk)
	rec.Set(models.FieldModel, model)

	rec.Set(models.FieldLocation, parser.Text(s, usedCarsLocation))
	rec.Set(models.FieldFuelType, parser.Text(s, usedCarsFuel))
	rec.Set(models.FieldTransmission, parser.Text(s, usedCarsTransmission))
	rec.Set(models.FieldMileage, parser.Text(s, usedCarsMileage))
	rec.Set(models.FieldEngineSize, parser.Text(s, usedCarsEngine))
	rec.Set(models.FieldDriveType, parser.Text(s, usedCarsDrive))
	rec.Set(models.FieldPrice, parser.Text(s, usedCarsPrice))
	rec.Set(models.FieldCurrency, "KES")

	if duty := parser.Text(s, usedCarsDuty); duty != "" {
		rec.Set(models.FieldDutyPaid, strconv.FormatBool(strings.Contains(strings.ToLower(duty), "duty paid")))
	}

	images := parser.NewImageSet()
	s.Find(usedCarsImage).Each(func(_ int, img *goquery.Selection) {
		if src := parser.StyleURL(img.AttrOr("style", "")); src != "" {
			images.Add(parser.AbsoluteURL(u.origin, src))
		}
	})
	rec.Images = images.List()

	if href, ok := s.Find(usedCarsDetail).First().Parent().Attr("href"); ok {
		detail := parser.AbsoluteURL(u.origin, href)
		rec.Set(models.FieldURL, detail)
		rec.Set(models.FieldExternalID, lastPathSegment(detail))
	}

	return rec
}
