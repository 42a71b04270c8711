package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"car-crawler/models"
)

// ErrListingNotFound is returned when no stored listing has the given id
var ErrListingNotFound = errors.New("listing not found")

const listingColumns = `id, source_id, external_id, title, make, model, year, price, currency,
	mileage, engine_size, transmission, location, fuel_type, body_type, images, specs,
	source_url, active, created_at, updated_at`

// CreateListing stores l, or refreshes the existing row with the same source
// and external id, and returns the row id
func (db *DB) CreateListing(ctx context.Context, l models.Listing) (int64, error) {
	images, err := json.Marshal(nonNilImages(l.Images))
	if err != nil {
		return 0, fmt.Errorf("failed to encode images: %w", err)
	}
	specs := []byte("{}")
	if len(l.Specs) > 0 {
		if specs, err = json.Marshal(l.Specs); err != nil {
			return 0, fmt.Errorf("failed to encode specs: %w", err)
		}
	}

	now := db.now()
	var id int64
	err = db.conn.QueryRowContext(ctx, `
		INSERT INTO listings (source_id, external_id, title, make, model, year, price, currency,
			mileage, engine_size, transmission, location, fuel_type, body_type, images, specs,
			source_url, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, TRUE, $18, $19)
		ON CONFLICT (source_id, external_id) DO UPDATE SET
			title = EXCLUDED.title,
			make = EXCLUDED.make,
			model = EXCLUDED.model,
			year = EXCLUDED.year,
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			mileage = EXCLUDED.mileage,
			engine_size = EXCLUDED.engine_size,
			transmission = EXCLUDED.transmission,
			location = EXCLUDED.location,
			fuel_type = EXCLUDED.fuel_type,
			body_type = EXCLUDED.body_type,
			images = EXCLUDED.images,
			specs = EXCLUDED.specs,
			source_url = EXCLUDED.source_url,
			active = TRUE,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`,
		l.SourceID, l.ExternalID, l.Title, l.Make, l.Model, nullInt(int64(l.Year)), l.Price, nullString(l.Currency),
		nullInt(l.Mileage), nullInt(l.EngineSize), nullString(l.Transmission), nullString(l.Location),
		nullString(l.FuelType), nullString(l.BodyType), string(images), string(specs),
		l.SourceURL, now, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save listing %s/%s: %w", l.SourceID, l.ExternalID, err)
	}
	return id, nil
}

// FindSimilar returns the most recently updated active listing with the same
// make, model and year whose mileage (when q has one) or price lies within
// q.TolerancePct of q. It returns nil when there is none.
func (db *DB) FindSimilar(ctx context.Context, q models.SimilarQuery) (*models.StoredListing, error) {
	args := []any{q.Make, q.Model, int64(q.Year)}
	var bands []string
	if q.Mileage > 0 {
		lo, hi := models.Band(q.Mileage, q.TolerancePct)
		args = append(args, lo, hi)
		bands = append(bands, fmt.Sprintf("COALESCE(mileage, 0) * 100 BETWEEN $%d AND $%d", len(args)-1, len(args)))
	}
	if q.Price > 0 {
		lo, hi := models.Band(q.Price, q.TolerancePct)
		args = append(args, lo, hi)
		bands = append(bands, fmt.Sprintf("price * 100 BETWEEN $%d AND $%d", len(args)-1, len(args)))
	}
	if len(bands) == 0 {
		return nil, nil
	}

	query := `SELECT ` + listingColumns + `
		FROM listings
		WHERE active = TRUE
			AND LOWER(make) = LOWER($1)
			AND LOWER(model) = LOWER($2)
			AND COALESCE(year, 0) = $3
			AND (` + strings.Join(bands, " OR ") + `)
		ORDER BY updated_at DESC, id DESC
		LIMIT 1`

	stored, err := scanListing(db.conn.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find similar listing: %w", err)
	}
	return stored, nil
}

// GetListing returns a listing by source and external id, or nil
func (db *DB) GetListing(ctx context.Context, sourceID, externalID string) (*models.StoredListing, error) {
	stored, err := scanListing(db.conn.QueryRowContext(ctx, `SELECT `+listingColumns+`
		FROM listings WHERE source_id = $1 AND external_id = $2`, sourceID, externalID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return stored, nil
}

// ListListings returns the newest active listings of a source, or of every
// source when sourceID is empty
func (db *DB) ListListings(ctx context.Context, sourceID string, limit int) ([]models.StoredListing, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+listingColumns+`
		FROM listings
		WHERE active = TRUE AND ($1 = '' OR source_id = $1)
		ORDER BY updated_at DESC, id DESC
		LIMIT $2`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var out []models.StoredListing
	for rows.Next() {
		stored, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		out = append(out, *stored)
	}
	return out, rows.Err()
}

// DeactivateListing hides a listing from similarity lookups
func (db *DB) DeactivateListing(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE listings SET active = FALSE, updated_at = $1 WHERE id = $2
	`, db.now(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate listing %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to deactivate listing %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrListingNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*models.StoredListing, error) {
	var (
		s                                models.StoredListing
		year, mileage, engineSize        sql.NullInt64
		currency, transmission, location sql.NullString
		fuelType, bodyType               sql.NullString
		images, specs                    string
	)
	err := row.Scan(
		&s.ID, &s.SourceID, &s.ExternalID, &s.Title, &s.Make, &s.Model, &year, &s.Price, &currency,
		&mileage, &engineSize, &transmission, &location, &fuelType, &bodyType, &images, &specs,
		&s.SourceURL, &s.Active, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Year = int(year.Int64)
	s.Mileage = mileage.Int64
	s.EngineSize = engineSize.Int64
	s.Currency = currency.String
	s.Transmission = transmission.String
	s.Location = location.String
	s.FuelType = fuelType.String
	s.BodyType = bodyType.String
	s.PriceParsed = true

	if err := json.Unmarshal([]byte(images), &s.Images); err != nil {
		return nil, fmt.Errorf("failed to decode images: %w", err)
	}
	if err := json.Unmarshal([]byte(specs), &s.Specs); err != nil {
		return nil, fmt.Errorf("failed to decode specs: %w", err)
	}
	if len(s.Specs) == 0 {
		s.Specs = nil
	}
	return &s, nil
}

func nonNilImages(images []string) []string {
	if images == nil {
		return []string{}
	}
	return images
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
