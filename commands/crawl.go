package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"car-crawler/filter"
	"car-crawler/models"
	"car-crawler/pricerange"
	"car-crawler/service"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var crawlOpts struct {
	make      string
	model     string
	location  string
	minPrice  int64
	maxPrice  int64
	minYear   int
	maxYear   int
	pages     int
	priceStep int64
	persist   bool
	json      bool
}

func init() {
	f := crawlCmd.Flags()
	f.StringVar(&crawlOpts.make, "make", "", "Vehicle make")
	f.StringVar(&crawlOpts.model, "model", "", "Vehicle model")
	f.StringVar(&crawlOpts.location, "location", "", "Location")
	f.Int64Var(&crawlOpts.minPrice, "min-price", 0, "Minimum price in KES")
	f.Int64Var(&crawlOpts.maxPrice, "max-price", 0, "Maximum price in KES")
	f.IntVar(&crawlOpts.minYear, "min-year", 0, "Minimum year")
	f.IntVar(&crawlOpts.maxYear, "max-year", 0, "Maximum year")
	f.IntVar(&crawlOpts.pages, "pages", 0, "Maximum number of pages to crawl (default: the source's max_pages)")
	f.Int64Var(&crawlOpts.priceStep, "price-step", 0, "Split the price range into bands of this width and crawl each band")
	f.BoolVar(&crawlOpts.persist, "persist", false, "Store new listings instead of printing them")
	f.BoolVar(&crawlOpts.json, "json", false, "Print the result as JSON")
	rootCmd.AddCommand(crawlCmd)
}

var crawlCmd = &cobra.Command{
	Use:   "crawl <source>",
	Short: "Crawls one source once and prints the listings found.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, crawlOpts.persist)
		if err != nil {
			return err
		}
		defer a.Close()

		params := map[string]any{
			"make":     crawlOpts.make,
			"model":    crawlOpts.model,
			"location": crawlOpts.location,
			"minPrice": crawlOpts.minPrice,
			"maxPrice": crawlOpts.maxPrice,
			"minYear":  crawlOpts.minYear,
			"maxYear":  crawlOpts.maxYear,
		}
		base, err := filter.FromParams(params)
		if err != nil {
			return err
		}

		bands := []pricerange.Band{{Filter: base, Label: "all prices"}}
		if crawlOpts.priceStep > 0 {
			bands = pricerange.Split(base, crawlOpts.priceStep)
		}

		failed := 0
		for _, band := range bands {
			req := service.Request{SourceID: args[0], Filter: filterParams(band.Filter), MaxPages: crawlOpts.pages}

			var res service.Result
			if crawlOpts.persist {
				res = a.service.CrawlAndPersist(ctx, req)
			} else {
				res = a.service.Crawl(ctx, req)
			}
			if !res.Success {
				failed++
			}
			if err := printResult(band.Label, res); err != nil {
				return err
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d crawls failed", failed, len(bands))
		}
		return nil
	},
}

func filterParams(f models.Filter) map[string]any {
	return map[string]any{
		"make":     f.Make,
		"model":    f.Model,
		"location": f.Location,
		"minPrice": f.MinPrice,
		"maxPrice": f.MaxPrice,
		"minYear":  f.MinYear,
		"maxYear":  f.MaxYear,
	}
}

func printResult(label string, res service.Result) error {
	if crawlOpts.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Printf("%s\n", label)
	if !res.Success {
		fmt.Fprintf(os.Stderr, "crawl failed: %s\n", res.Error)
		if res.Stack != "" {
			fmt.Fprintln(os.Stderr, res.Stack)
		}
		return nil
	}
	if res.Data == nil {
		fmt.Println(res.Message)
		return nil
	}

	fmt.Printf("Found %d listings on %d pages (more pages: %t)\n", res.Data.Count, res.Data.PagesScanned, res.Data.HasMore)
	if len(res.Data.NormalizedRecords) == 0 {
		return nil
	}

	t := newTable()
	t.AppendHeader(table.Row{"#", "Title", "Make", "Model", "Year", "Price", "Mileage", "Location", "Valid"})
	for i, l := range res.Data.NormalizedRecords {
		t.AppendRow(table.Row{i + 1, l.Title, l.Make, l.Model, yearCell(l.Year), priceCell(l), l.Mileage, l.Location, l.Valid()})
	}
	t.Render()
	return nil
}

func yearCell(year int) string {
	if year == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", year)
}

func priceCell(l models.Listing) string {
	if !l.PriceParsed {
		return "Not available"
	}
	currency := l.Currency
	if currency == "" {
		currency = "KES"
	}
	return fmt.Sprintf("%s %d", currency, l.Price)
}
