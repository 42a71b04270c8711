package scraper

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"car-crawler/fetcher"
	"car-crawler/models"
	"car-crawler/parser"

	"github.com/PuerkitoBio/goquery"
)

// ChekiID is the source id of autochek.africa (formerly Cheki)
const ChekiID = "cheki"

const (
	chekiBase       = "https://autochek.africa/ke/cars-for-sale"
	chekiMediaHost  = "media.autochek.africa"
	chekiContainer  = ".MuiGrid-root.MuiGrid-item.MuiGrid-grid-xs-12.MuiGrid-grid-sm-6.MuiGrid-grid-md-4"
	chekiWrapper    = ".MuiStack-root.MuiPaper-root.MuiPaper-elevation.MuiPaper-rounded.MuiPaper-elevation1"
	chekiLink       = `a[href*="/ke/car/"]`
	chekiTitle      = "h6.MuiTypography-root.MuiTypography-h6"
	chekiPrice      = "p.MuiTypography-root.MuiTypography-body1.css-1bztvjj"
	chekiLocation   = "span.MuiTypography-root.MuiTypography-caption.css-umr6w4"
	chekiChip       = ".MuiChip-root.MuiChip-filled.MuiChip-sizeSmall"
	chekiMonthly    = "h6.MuiTypography-root.MuiTypography-h6.css-186gzpa"
	chekiImages     = `span[style*="display: inline-block"] img, img[src*="media.autochek.africa"]`
	chekiNextButton = `button[aria-label="Next page"]`
)

var chekiRefRe = regexp.MustCompile(`ref-([^/?#]+)`)

// Cheki extracts listings from autochek.africa
type Cheki struct {
	site
}

// NewCheki creates the autochek.africa strategy
func NewCheki(opts Options) *Cheki {
	return &Cheki{site: newSite(ChekiID, chekiBase, []string{".MuiGrid-item", ".no-results"}, opts)}
}

// BuildURL puts make/model in the path and the remaining filters in the query
func (c *Cheki) BuildURL(f models.Filter) string {
	u := c.baseURL
	if f.Make != "" {
		u += "/" + url.PathEscape(strings.TrimSpace(f.Make))
		if f.Model != "" {
			u += "/" + url.PathEscape(strings.TrimSpace(f.Model))
		}
	}

	q := url.Values{}
	setInt(q, "year_low", int64(f.MinYear))
	setInt(q, "year_high", int64(f.MaxYear))
	setInt(q, "price_low", f.MinPrice)
	setInt(q, "price_high", f.MaxPrice)
	if f.Location != "" {
		q.Set("location", f.Location)
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Cheki) PageURL(searchURL string, n int) string {
	return withPage(searchURL, "page_number", n)
}

func (c *Cheki) ExtractPage(ctx context.Context, page fetcher.Page) []models.RawRecord {
	return c.extract(ctx, page, chekiContainer, c.ParseRecord)
}

func (c *Cheki) HasNextPage(ctx context.Context, page fetcher.Page) bool {
	return c.hasNext(ctx, page, chekiNextButton)
}

func (c *Cheki) ParseRecord(s *goquery.Selection) models.RawRecord {
	rec := models.NewRawRecord(c.id)
	card := s.Find(chekiWrapper).First()
	if card.Length() == 0 {
		card = s
	}

	href, _ := card.Find(chekiLink).First().Attr("href")
	if href != "" {
		rec.Set(models.FieldURL, parser.AbsoluteURL(c.origin, href))
		if m := chekiRefRe.FindStringSubmatch(href); m != nil {
			rec.Set(models.FieldExternalID, m[1])
		}
	}

	// titles read "Year Make Model"
	title := parser.Text(card, chekiTitle)
	rec.Set(models.FieldTitle, title)
	mk, model := titleMakeModel(title)
	rec.Set(models.FieldMake, mk)
	rec.Set(models.FieldModel, model)
	rec.Set(models.FieldPrice, parser.Text(card, chekiPrice))
	rec.Set(models.FieldLocation, parser.Text(card, chekiLocation))
	rec.Set(models.FieldMonthlyPayment, parser.Text(card, chekiMonthly))
	rec.Set(models.FieldCurrency, "KES")

	card.Find(chekiChip).Each(func(_ int, chip *goquery.Selection) {
		text := parser.CleanText(chip.Text())
		lower := strings.ToLower(text)
		switch {
		case strings.HasSuffix(lower, "km") || strings.HasSuffix(lower, "kms"):
			rec.Set(models.FieldMileage, text)
		case strings.HasSuffix(lower, "cc"):
			rec.Set(models.FieldEngineSize, text)
		case lower == "automatic" || lower == "manual":
			rec.Set(models.FieldTransmission, lower)
		case lower == "local" || lower == "foreign" || strings.Contains(lower, "used"):
			rec.Set(models.FieldLocality, lower)
		}
	})

	images := parser.NewImageSet()
	card.Find(chekiImages).Each(func(_ int, img *goquery.Selection) {
		candidate := img.AttrOr("src", "")
		if srcset := img.AttrOr("srcset", ""); srcset != "" {
			if best := parser.BestSrcsetCandidate(srcset); best != "" {
				candidate = best
			}
		}
		candidate = parser.AbsoluteURL(c.origin, candidate)
		if strings.Contains(candidate, chekiMediaHost) {
			images.Add(candidate)
		}
	})
	rec.Images = images.List()

	return rec
}
