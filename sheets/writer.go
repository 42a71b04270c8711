package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"car-crawler/models"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const maxSheetName = 100

var header = []interface{}{
	"Title", "Make", "Model", "Year", "Price", "Currency", "Mileage", "Engine (cc)",
	"Transmission", "Fuel", "Location", "Link",
}

// Writer exports stored listings to Google Sheets, one tab per run
type Writer struct {
	service       *sheets.Service
	spreadsheetID string
	log           *logrus.Entry
	now           func() time.Time
}

// CredentialsEnv holds service account JSON when no credentials file is configured
const CredentialsEnv = "GOOGLE_SHEETS_CREDENTIALS"

// NewWriter creates a writer authorized with a service account. spreadsheet
// may be an id or a spreadsheet URL.
func NewWriter(ctx context.Context, spreadsheet, credentialsPath string, log *logrus.Entry) (*Writer, error) {
	creds, err := readCredentials(credentialsPath)
	if err != nil {
		return nil, err
	}
	service, err := sheets.NewService(ctx, option.WithCredentialsJSON(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return NewWriterWithService(service, spreadsheet, log), nil
}

// readCredentials loads service account JSON from path, or from
// CredentialsEnv when path is empty
func readCredentials(path string) ([]byte, error) {
	var raw []byte
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		raw = data
	} else {
		raw = []byte(strings.TrimSpace(os.Getenv(CredentialsEnv)))
		if len(raw) == 0 {
			return nil, fmt.Errorf("no sheets credentials: set a credentials path or %s", CredentialsEnv)
		}
	}

	var key struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, fmt.Errorf("invalid credentials JSON: %w", err)
	}
	if key.Type != "service_account" {
		return nil, fmt.Errorf("credentials must be a service account key, got type %q", key.Type)
	}
	return raw, nil
}

// NewWriterWithService wraps an existing sheets service
func NewWriterWithService(service *sheets.Service, spreadsheet string, log *logrus.Entry) *Writer {
	id := spreadsheet
	if extracted := ExtractSpreadsheetID(spreadsheet); extracted != "" {
		id = extracted
	}
	return &Writer{
		service:       service,
		spreadsheetID: id,
		log:           log.WithField("component", "sheets"),
		now:           time.Now,
	}
}

// Export writes listings to a new tab named after the source and run time
func (w *Writer) Export(ctx context.Context, sourceID string, listings []models.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	name := fmt.Sprintf("%s %s", sourceID, w.now().UTC().Format("2006-01-02 1504"))
	_, _, err := w.CreateSheetAndWriteListings(ctx, name, listings)
	return err
}

// CreateSheetAndWriteListings adds a tab in front of the existing ones and
// writes the listings to it. It returns the final tab name and its sheet id.
func (w *Writer) CreateSheetAndWriteListings(ctx context.Context, sheetName string, listings []models.Listing) (string, int64, error) {
	sheetName = sanitizeSheetName(sheetName)
	if len(sheetName) > maxSheetName {
		sheetName = sheetName[:maxSheetName]
	}

	sheetID, err := w.addSheet(ctx, sheetName)
	if err != nil {
		return "", 0, err
	}

	target := fmt.Sprintf("'%s'!A1", sheetName)
	_, err = w.service.Spreadsheets.Values.
		Update(w.spreadsheetID, target, &sheets.ValueRange{Values: Rows(listings)}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return "", 0, fmt.Errorf("failed to write listings to %s: %w", sheetName, err)
	}

	w.log.WithFields(logrus.Fields{
		"sheet":    sheetName,
		"sheet_id": sheetID,
		"listings": len(listings),
	}).Info("listings exported")
	return sheetName, sheetID, nil
}

func (w *Writer) addSheet(ctx context.Context, title string) (int64, error) {
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{
					Title:           title,
					Index:           0,
					ForceSendFields: []string{"Index"}, // a zero Index is dropped otherwise
				},
			},
		}},
	}
	resp, err := w.service.Spreadsheets.BatchUpdate(w.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to add sheet %s: %w", title, err)
	}
	for _, reply := range resp.Replies {
		if reply.AddSheet != nil && reply.AddSheet.Properties != nil {
			return reply.AddSheet.Properties.SheetId, nil
		}
	}
	return 0, nil
}

// Rows renders the header and one row per listing
func Rows(listings []models.Listing) [][]interface{} {
	values := make([][]interface{}, 0, len(listings)+1)
	values = append(values, header)
	for _, l := range listings {
		values = append(values, []interface{}{
			l.Title,
			l.Make,
			l.Model,
			optional(int64(l.Year)),
			l.Price,
			l.Currency,
			optional(l.Mileage),
			optional(l.EngineSize),
			l.Transmission,
			l.FuelType,
			l.Location,
			l.SourceURL,
		})
	}
	return values
}

func optional(v int64) interface{} {
	if v == 0 {
		return ""
	}
	return v
}

// sheetNameReplacer drops the characters Sheets rejects in tab names, plus
// the quote used in A1 ranges
var sheetNameReplacer = strings.NewReplacer(
	"/", "_", "\\", "_", "?", "_", "*", "_", "[", "_", "]", "_", "'", "_",
)

func sanitizeSheetName(name string) string {
	name = strings.TrimSpace(sheetNameReplacer.Replace(name))
	if name == "" {
		return "Sheet1"
	}
	return name
}

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([^/?#]+)`)

// ExtractSpreadsheetID returns the id in a Google Sheets URL, or "" when
// url is not one
func ExtractSpreadsheetID(url string) string {
	m := spreadsheetIDPattern.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	return m[1]
}
