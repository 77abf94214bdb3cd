package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"drive-deals-scraper/models"
)

// CSVWriter writes the deal store as a spreadsheet-friendly CSV file.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		"id", "drive_type", "capacity_tb", "price_sek", "price_per_tb", "title", "location", "date", "url",
	}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteDeals appends one row per deal.
func (c *CSVWriter) WriteDeals(deals []models.Deal) error {
	for _, d := range deals {
		ppt := ""
		if d.PricePerTB != nil {
			ppt = strconv.FormatFloat(*d.PricePerTB, 'f', 2, 64)
		}
		row := []string{
			d.ID,
			string(d.DriveType),
			strconv.FormatFloat(d.CapacityTB, 'f', -1, 64),
			strconv.FormatFloat(d.PriceSEK, 'f', -1, 64),
			ppt,
			d.Title,
			d.Location,
			d.Date,
			d.URL,
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}

// ExportDeals writes deals to path, replacing any previous export.
func ExportDeals(path string, deals []models.Deal) error {
	w, err := NewCSVWriter(path)
	if err != nil {
		return err
	}
	if err := w.WriteDeals(deals); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
