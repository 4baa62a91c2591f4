// Package csvio reads tabular ingest batches produced by the upstream
// data-preparation utilities.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/clipseek/clipseek/internal/models"
)

// Column names as written by the upstream pipeline. Header cells are
// trimmed before matching; columns absent from the file yield empty
// fields, never an error, per the lenient-ingestion policy.
var columns = map[string]func(*models.IngestRow, string){
	"id":               func(r *models.IngestRow, v string) { r.RecordKey = v },
	"title":            func(r *models.IngestRow, v string) { r.Title = v },
	"channel_title":    func(r *models.IngestRow, v string) { r.SourceChannel = v },
	"viewCount":        func(r *models.IngestRow, v string) { r.Popularity = v },
	"duration_seconds": func(r *models.IngestRow, v string) { r.Duration = v },
	"transcript":       func(r *models.IngestRow, v string) { r.BodyText = v },
}

// Read parses CSV rows into ingest rows. The first record is the
// header. Short rows are padded with empty fields.
func Read(r io.Reader) ([]models.IngestRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty csv input")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	setters := make([]func(*models.IngestRow, string), len(header))
	for i, name := range header {
		setters[i] = columns[strings.TrimSpace(name)]
	}

	var rows []models.IngestRow
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		var row models.IngestRow
		for i, v := range record {
			if i < len(setters) && setters[i] != nil {
				setters[i](&row, v)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadFile parses the CSV file at path.
func ReadFile(path string) ([]models.IngestRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return Read(f)
}
