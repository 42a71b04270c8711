package filter

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"car-crawler/models"
)

// ErrInvalidFilter is returned for caller input that cannot form a search filter
var ErrInvalidFilter = errors.New("invalid filter")

// FromParams validates untyped caller input, such as a decoded JSON body,
// into a search filter. Absent keys leave the criterion unset.
func FromParams(params map[string]any) (models.Filter, error) {
	var f models.Filter
	var err error

	if f.Make, err = stringParam(params, "make"); err != nil {
		return f, err
	}
	if f.Model, err = stringParam(params, "model"); err != nil {
		return f, err
	}
	if f.Location, err = stringParam(params, "location"); err != nil {
		return f, err
	}
	if f.MinPrice, err = intParam(params, "minPrice"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = intParam(params, "maxPrice"); err != nil {
		return f, err
	}
	minYear, err := intParam(params, "minYear")
	if err != nil {
		return f, err
	}
	maxYear, err := intParam(params, "maxYear")
	if err != nil {
		return f, err
	}
	f.MinYear, f.MaxYear = int(minYear), int(maxYear)

	if f.MaxPrice > 0 && f.MinPrice > f.MaxPrice {
		return f, fmt.Errorf("%w: minPrice %d is above maxPrice %d", ErrInvalidFilter, f.MinPrice, f.MaxPrice)
	}
	if f.MaxYear > 0 && f.MinYear > f.MaxYear {
		return f, fmt.Errorf("%w: minYear %d is above maxYear %d", ErrInvalidFilter, f.MinYear, f.MaxYear)
	}
	return f, nil
}

func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidFilter, key, v)
	}
	return strings.TrimSpace(s), nil
}

func intParam(params map[string]any, key string) (int64, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, nil
	}

	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int64:
		n = x
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("%w: %s must be a whole number", ErrInvalidFilter, key)
		}
		n = int64(x)
	case json.Number:
		parsed, err := x.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be a whole number", ErrInvalidFilter, key)
		}
		n = parsed
	case string:
		if strings.TrimSpace(x) == "" {
			return 0, nil
		}
		parsed, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be a whole number", ErrInvalidFilter, key)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("%w: %s must be a number, got %T", ErrInvalidFilter, key, v)
	}

	if n < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalidFilter, key)
	}
	return n, nil
}

// Matches reports whether a listing satisfies every set criterion of f.
// Criteria the listing has no value for are not applied.
func Matches(f models.Filter, l models.Listing) bool {
	if f.Make != "" && !strings.EqualFold(f.Make, l.Make) {
		return false
	}
	if f.Model != "" && !strings.EqualFold(f.Model, l.Model) {
		return false
	}
	if f.Location != "" && l.Location != "" && !strings.Contains(strings.ToLower(l.Location), strings.ToLower(f.Location)) {
		return false
	}
	if l.Price > 0 {
		if (f.MinPrice > 0 && l.Price < f.MinPrice) || (f.MaxPrice > 0 && l.Price > f.MaxPrice) {
			return false
		}
	}
	if l.Year > 0 {
		if (f.MinYear > 0 && l.Year < f.MinYear) || (f.MaxYear > 0 && l.Year > f.MaxYear) {
			return false
		}
	}
	return true
}

// Apply returns the listings matching f
func Apply(f models.Filter, listings []models.Listing) []models.Listing {
	var filtered []models.Listing
	for _, l := range listings {
		if Matches(f, l) {
			filtered = append(filtered, l)
		}
	}
	return filtered
}
