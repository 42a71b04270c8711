package parser

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	nonDigitRe   = regexp.MustCompile(`[^0-9]`)
	yearRe       = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	styleURLRe   = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)
	whitespaceRe = regexp.MustCompile(`\s+`)

	transmissionRe = regexp.MustCompile(`(?i)\b(manual|automatic|cvt|amt)\b`)
	fuelRe         = regexp.MustCompile(`(?i)\b(petrol|diesel|hybrid|electric)\b`)
	engineRe       = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(cc|l|litre)\b`)
	mileageRe      = regexp.MustCompile(`(?i)(\d[\d,]*)\s*(kms?|miles)\b`)
	bodyTypeRe     = regexp.MustCompile(`(?i)\b(sedan|suv|hatchback|wagon|pickup|van)\b`)
)

// maxDigits keeps ExtractNumber inside int64 range
const maxDigits = 18

// ExtractNumber strips every non-digit character and parses the remainder.
// Empty or oversized input yields 0.
func ExtractNumber(text string) int64 {
	digits := nonDigitRe.ReplaceAllString(text, "")
	if digits == "" || len(digits) > maxDigits {
		return 0
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ExtractYear returns the first 19xx/20xx token in text, or 0
func ExtractYear(text string) int {
	m := yearRe.FindString(text)
	if m == "" {
		return 0
	}
	year, _ := strconv.Atoi(m)
	return year
}

// Specs holds the structured values recognised in free-form spec text
type Specs struct {
	Transmission string
	FuelType     string
	EngineSize   string
	Mileage      string
	BodyType     string
}

// ParseSpecs recognises common vehicle spec tokens in text
func ParseSpecs(text string) Specs {
	var specs Specs
	if m := transmissionRe.FindStringSubmatch(text); m != nil {
		specs.Transmission = strings.ToLower(m[1])
	}
	if m := fuelRe.FindStringSubmatch(text); m != nil {
		specs.FuelType = strings.ToLower(m[1])
	}
	if m := engineRe.FindStringSubmatch(text); m != nil {
		specs.EngineSize = engineCC(m[1], m[2])
	}
	if m := mileageRe.FindStringSubmatch(text); m != nil {
		specs.Mileage = strings.ReplaceAll(m[1], ",", "")
	}
	if m := bodyTypeRe.FindStringSubmatch(text); m != nil {
		specs.BodyType = strings.ToLower(m[1])
	}
	return specs
}

// engineCC converts "1.8 L" style displacement into cc
func engineCC(value, unit string) string {
	if strings.EqualFold(unit, "cc") {
		return nonDigitRe.ReplaceAllString(value, "")
	}
	litres, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return ""
	}
	return strconv.FormatInt(int64(litres*1000+0.5), 10)
}

// CleanText collapses runs of whitespace and trims
func CleanText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Text returns the cleaned text of the first match of selector within s
func Text(s *goquery.Selection, selector string) string {
	return CleanText(s.Find(selector).First().Text())
}

// BestSrcsetCandidate picks the last (highest resolution) URL of a srcset list
func BestSrcsetCandidate(srcset string) string {
	parts := strings.Split(srcset, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		fields := strings.Fields(parts[i])
		if len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

// StyleURL extracts the url(...) value from an inline style attribute
func StyleURL(style string) string {
	m := styleURLRe.FindStringSubmatch(style)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// AbsoluteURL resolves href against base. Unparseable input yields "".
func AbsoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}

// IsHTTPURL reports whether s is an absolute http(s) URL with a host
func IsHTTPURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ImageSet collects image URLs in insertion order without duplicates
type ImageSet struct {
	seen  map[string]struct{}
	order []string
}

// NewImageSet creates an empty ImageSet
func NewImageSet() *ImageSet {
	return &ImageSet{seen: make(map[string]struct{})}
}

// Add inserts url when it is a non-empty, unseen value
func (s *ImageSet) Add(url string) {
	url = strings.TrimSpace(url)
	if url == "" {
		return
	}
	if _, ok := s.seen[url]; ok {
		return
	}
	s.seen[url] = struct{}{}
	s.order = append(s.order, url)
}

// List returns the collected URLs
func (s *ImageSet) List() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
