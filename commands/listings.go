package commands

import (
	"context"
	"fmt"

	"car-crawler/db"
	"car-crawler/filter"
	"car-crawler/logger"
	"car-crawler/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var listingsOpts struct {
	source     string
	make       string
	model      string
	location   string
	minPrice   int64
	maxPrice   int64
	minYear    int
	maxYear    int
	limit      int
	deactivate int64
}

func init() {
	f := listingsCmd.Flags()
	f.StringVar(&listingsOpts.source, "source", "", "Only show listings of this source")
	f.StringVar(&listingsOpts.make, "make", "", "Vehicle make")
	f.StringVar(&listingsOpts.model, "model", "", "Vehicle model")
	f.StringVar(&listingsOpts.location, "location", "", "Location")
	f.Int64Var(&listingsOpts.minPrice, "min-price", 0, "Minimum price in KES")
	f.Int64Var(&listingsOpts.maxPrice, "max-price", 0, "Maximum price in KES")
	f.IntVar(&listingsOpts.minYear, "min-year", 0, "Minimum year")
	f.IntVar(&listingsOpts.maxYear, "max-year", 0, "Maximum year")
	f.IntVar(&listingsOpts.limit, "limit", 50, "Number of stored listings to scan")
	f.Int64Var(&listingsOpts.deactivate, "deactivate", 0, "Deactivate the listing with this id instead of listing")
	rootCmd.AddCommand(listingsCmd)
}

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Shows stored listings matching a filter.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := filter.FromParams(map[string]any{
			"make":     listingsOpts.make,
			"model":    listingsOpts.model,
			"location": listingsOpts.location,
			"minPrice": listingsOpts.minPrice,
			"maxPrice": listingsOpts.maxPrice,
			"minYear":  listingsOpts.minYear,
			"maxYear":  listingsOpts.maxYear,
		})
		if err != nil {
			return err
		}

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.Logging)
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer store.Close()

		if listingsOpts.deactivate > 0 {
			return deactivateListing(cmd.Context(), store, listingsOpts.deactivate)
		}

		stored, err := store.ListListings(cmd.Context(), listingsOpts.source, listingsOpts.limit)
		if err != nil {
			return err
		}
		listings := make([]models.Listing, 0, len(stored))
		for _, s := range stored {
			listings = append(listings, s.Listing)
		}
		matched := filter.Apply(f, listings)

		t := newTable()
		t.AppendHeader(table.Row{"Source", "Title", "Year", "Price", "Mileage", "Location", "Link"})
		for _, l := range matched {
			t.AppendRow(table.Row{l.SourceID, l.Title, yearCell(l.Year), priceCell(l), l.Mileage, l.Location, l.SourceURL})
		}
		t.AppendFooter(table.Row{"", fmt.Sprintf("%d of %d listings", len(matched), len(stored))})
		t.Render()
		return nil
	},
}

func deactivateListing(ctx context.Context, store *db.DB, id int64) error {
	if err := store.DeactivateListing(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Listing %d deactivated\n", id)
	return nil
}
