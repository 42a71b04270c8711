package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"car-crawler/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func TestExtractSpreadsheetID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://docs.google.com/spreadsheets/d/abc123/edit", "abc123"},
		{"https://docs.google.com/spreadsheets/d/abc123/edit?usp=sharing", "abc123"},
		{"https://docs.google.com/spreadsheets/d/abc123?gid=0", "abc123"},
		{"abc123", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractSpreadsheetID(tt.url), tt.url)
	}
}

func TestSanitizeSheetName(t *testing.T) {
	assert.Equal(t, "cheki_2025", sanitizeSheetName(" cheki/2025 "))
	assert.Equal(t, "Sheet1", sanitizeSheetName("   "))
	assert.Equal(t, "owner_s", sanitizeSheetName("owner's"))
}

func TestRows(t *testing.T) {
	rows := Rows([]models.Listing{{
		Title:      "2016 Toyota Fielder",
		Make:       "Toyota",
		Model:      "Fielder",
		Year:       2016,
		Price:      1650000,
		Currency:   "KES",
		SourceURL:  "https://autochek.africa/ke/car/x-ref-1",
		EngineSize: 1500,
	}})

	require.Len(t, rows, 2)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, []interface{}{
		"2016 Toyota Fielder", "Toyota", "Fielder", int64(2016), int64(1650000), "KES",
		"", int64(1500), "", "", "", "https://autochek.africa/ke/car/x-ref-1",
	}, rows[1])
}

func TestExport(t *testing.T) {
	var (
		mu       sync.Mutex
		sheetReq sheets.BatchUpdateSpreadsheetRequest
		written  sheets.ValueRange
		paths    []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, ":batchUpdate"):
			require.NoError(t, json.NewDecoder(r.Body).Decode(&sheetReq))
			io.WriteString(w, `{"spreadsheetId":"sheet-1","replies":[{"addSheet":{"properties":{"sheetId":99}}}]}`)
		case strings.Contains(r.URL.Path, "/values/"):
			require.NoError(t, json.NewDecoder(r.Body).Decode(&written))
			io.WriteString(w, `{"updatedRows":2}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	service, err := sheets.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	w := NewWriterWithService(service, "https://docs.google.com/spreadsheets/d/sheet-1/edit", testLogger())
	w.now = func() time.Time { return time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC) }

	err = w.Export(context.Background(), "cheki", []models.Listing{{Title: "Honda Fit", Price: 900000}})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 2)
	assert.Contains(t, paths[0], "/spreadsheets/sheet-1")
	require.Len(t, sheetReq.Requests, 1)
	assert.Equal(t, "cheki 2025-03-01 0930", sheetReq.Requests[0].AddSheet.Properties.Title)
	assert.Len(t, written.Values, 2)
}

func TestExportEmptyIsNoop(t *testing.T) {
	w := &Writer{log: testLogger(), now: time.Now}
	assert.NoError(t, w.Export(context.Background(), "cheki", nil))
}

func TestReadCredentials(t *testing.T) {
	dir := t.TempDir()
	key := filepath.Join(dir, "key.json")
	require.NoError(t, os.WriteFile(key, []byte(`{"type":"service_account","project_id":"p"}`), 0o600))
	user := filepath.Join(dir, "user.json")
	require.NoError(t, os.WriteFile(user, []byte(`{"type":"authorized_user"}`), 0o600))

	raw, err := readCredentials(key)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "service_account")

	_, err = readCredentials(user)
	assert.ErrorContains(t, err, "service account")

	_, err = readCredentials(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	t.Setenv(CredentialsEnv, "")
	_, err = readCredentials("")
	assert.ErrorContains(t, err, CredentialsEnv)

	t.Setenv(CredentialsEnv, ` {"type":"service_account"} `)
	_, err = readCredentials("")
	assert.NoError(t, err)
}
