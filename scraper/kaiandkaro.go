package scraper

import (
	"context"
	"net/url"
	"strings"

	"car-crawler/fetcher"
	"car-crawler/models"
	"car-crawler/parser"

	"github.com/PuerkitoBio/goquery"
)

// KaiAndKaroID is the source id of kaiandkaro.com
const KaiAndKaroID = "kaiandkaro"

const (
	kaiAndKaroBase     = "https://www.kaiandkaro.com"
	kaiAndKaroCard     = ".chakra-card.css-1ndte01"
	kaiAndKaroLink     = "a.chakra-linkbox__overlay.css-1hnz6hu[href]"
	kaiAndKaroTitle    = "h2.chakra-heading.css-18j379d"
	kaiAndKaroPrice    = "p.chakra-text.css-0"
	kaiAndKaroLocation = ".css-b03jaa"
	kaiAndKaroSpec     = ".css-buyryd"
	kaiAndKaroYear     = ".chakra-badge.css-1dub5x4"
	kaiAndKaroImage    = ".css-1ytrg1k.card-img-top"
	kaiAndKaroNext     = `button[aria-label="Next page"], a[aria-label="Next page"]`
)

// KaiAndKaro extracts listings from kaiandkaro.com
type KaiAndKaro struct {
	site
}

// NewKaiAndKaro creates the kaiandkaro.com strategy
func NewKaiAndKaro(opts Options) *KaiAndKaro {
	return &KaiAndKaro{site: newSite(KaiAndKaroID, kaiAndKaroBase, []string{kaiAndKaroCard, ".no-results"}, opts)}
}

// BuildURL uses the site's free-text search; only make and model are supported
func (k *KaiAndKaro) BuildURL(f models.Filter) string {
	var terms []string
	for _, t := range []string{f.Make, f.Model} {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	u := k.origin + "/vehicles"
	if len(terms) > 0 {
		u += "?" + url.Values{"search": {strings.Join(terms, " ")}}.Encode()
	}
	return u
}

func (k *KaiAndKaro) PageURL(searchURL string, n int) string {
	return withPage(searchURL, "page", n)
}

func (k *KaiAndKaro) ExtractPage(ctx context.Context, page fetcher.Page) []models.RawRecord {
	return k.extract(ctx, page, kaiAndKaroCard, k.ParseRecord)
}

func (k *KaiAndKaro) HasNextPage(ctx context.Context, page fetcher.Page) bool {
	return k.hasNext(ctx, page, kaiAndKaroNext)
}

func (k *KaiAndKaro) ParseRecord(s *goquery.Selection) models.RawRecord {
	rec := models.NewRawRecord(k.id)

	if href, ok := s.Find(kaiAndKaroLink).First().Attr("href"); ok {
		link := parser.AbsoluteURL(k.origin, href)
		rec.Set(models.FieldURL, link)
		rec.Set(models.FieldExternalID, lastPathSegment(link))
	}

	rec.Set(models.FieldTitle, parser.Text(s, kaiAndKaroTitle))
	rec.Set(models.FieldPrice, parser.Text(s, kaiAndKaroPrice))
	rec.Set(models.FieldYear, parser.Text(s, kaiAndKaroYear))
	rec.Set(models.FieldCurrency, "KES")

	location := parser.Text(s, kaiAndKaroLocation)
	rec.Set(models.FieldLocation, location)
	if location != "" {
		if strings.EqualFold(location, "Kenyan Used") {
			rec.Set(models.FieldLocality, "local")
		} else {
			rec.Set(models.FieldLocality, "foreign")
		}
	}

	specs := s.Find(kaiAndKaroSpec)
	rec.Set(models.FieldTransmission, parser.CleanText(specs.Eq(0).Text()))
	rec.Set(models.FieldEngineSize, parser.CleanText(specs.Eq(1).Text()))

	images := parser.NewImageSet()
	s.Find(kaiAndKaroImage).Each(func(_ int, img *goquery.Selection) {
		src := img.AttrOr("src", "")
		if srcset := img.AttrOr("srcset", ""); srcset != "" {
			src = parser.BestSrcsetCandidate(srcset)
		}
		images.Add(parser.AbsoluteURL(k.origin, src))
	})
	rec.Images = images.List()

	return rec
}
