package filter

import (
	"encoding/json"
	"testing"

	"car-crawler/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromParams(t *testing.T) {
	f, err := FromParams(map[string]any{
		"make":     " Toyota ",
		"model":    "Fielder",
		"minPrice": float64(500000),
		"maxPrice": "2000000",
		"minYear":  2012,
		"maxYear":  json.Number("2018"),
		"location": "Nairobi",
		"ignored":  true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.Filter{
		Make:     "Toyota",
		Model:    "Fielder",
		MinPrice: 500000,
		MaxPrice: 2000000,
		MinYear:  2012,
		MaxYear:  2018,
		Location: "Nairobi",
	}, f)
}

func TestFromParamsEmpty(t *testing.T) {
	f, err := FromParams(nil)
	require.NoError(t, err)
	assert.Equal(t, models.Filter{}, f)

	f, err = FromParams(map[string]any{"make": nil, "minPrice": ""})
	require.NoError(t, err)
	assert.Equal(t, models.Filter{}, f)
}

func TestFromParamsRejects(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
	}{
		{"non-string make", map[string]any{"make": 42}},
		{"make list", map[string]any{"make": []any{"Toyota"}}},
		{"non-string model", map[string]any{"model": true}},
		{"fractional price", map[string]any{"minPrice": 10.5}},
		{"negative price", map[string]any{"maxPrice": -1}},
		{"text year", map[string]any{"minYear": "recent"}},
		{"object price", map[string]any{"minPrice": map[string]any{}}},
		{"inverted prices", map[string]any{"minPrice": 5, "maxPrice": 1}},
		{"inverted years", map[string]any{"minYear": 2020, "maxYear": 2010}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromParams(tt.params)
			assert.ErrorIs(t, err, ErrInvalidFilter)
		})
	}
}

func TestApply(t *testing.T) {
	listings := []models.Listing{
		{ExternalID: "a", Make: "Toyota", Model: "Fielder", Year: 2016, Price: 1650000, Location: "nairobi, westlands"},
		{ExternalID: "b", Make: "Toyota", Model: "Premio", Year: 2011, Price: 1200000},
		{ExternalID: "c", Make: "Mazda", Model: "Demio", Year: 2015, Price: 800000},
		{ExternalID: "d", Make: "toyota", Model: "fielder", Price: 0},
	}

	got := Apply(models.Filter{Make: "TOYOTA", MinYear: 2012, MaxPrice: 2000000, Location: "Nairobi"}, listings)

	var ids []string
	for _, l := range got {
		ids = append(ids, l.ExternalID)
	}
	assert.Equal(t, []string{"a", "d"}, ids, "criteria without a listing value are not applied")
}
