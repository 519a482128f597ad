// Package output persists extracted records and API snapshots to disk.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/law-makers/marketscrape/pkg/models"
)

// Format selects the record file encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// TimestampLayout is used in generated file names
const TimestampLayout = "2006-01-02T15-04-05"

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV:
		return f, nil
	case "":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (json, csv)", s)
	}
}

// File describes a written file
type File struct {
	Path    string
	Size    int64
	Records int
}

// Sink writes files into one directory
type Sink struct {
	Dir    string
	Format Format
}

// NewSink creates the output directory if needed
func NewSink(dir string, format Format) (*Sink, error) {
	if dir == "" {
		dir = "."
	}
	if format == "" {
		format = FormatJSON
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Sink{Dir: dir, Format: format}, nil
}

// Name returns the timestamped base name for prefix
func Name(prefix string, t time.Time) string {
	return prefix + "-" + t.UTC().Format(TimestampLayout)
}

// WriteRecords writes records as <dir>/<base>.<format>. Field order follows
// fields; a nil record slice is written as an empty list.
func (s *Sink) WriteRecords(base string, fields []string, records []*models.Record) (*File, error) {
	path := filepath.Join(s.Dir, base+"."+string(s.Format))

	var err error
	switch s.Format {
	case FormatCSV:
		err = saveCSV(path, fields, records)
	default:
		if records == nil {
			records = []*models.Record{}
		}
		err = saveJSON(path, records)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}

	f, err := stat(path)
	if err != nil {
		return nil, err
	}
	f.Records = len(records)

	log.Info().
		Str("file", f.Path).
		Int("records", f.Records).
		Str("size", HumanSize(f.Size)).
		Msg("Saved records")
	return f, nil
}

// WriteJSON writes v as <dir>/<name>.json regardless of the sink format
func (s *Sink) WriteJSON(name string, v any) (*File, error) {
	path := filepath.Join(s.Dir, name+".json")
	if err := saveJSON(path, v); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	f, err := stat(path)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("file", f.Path).
		Str("size", HumanSize(f.Size)).
		Msg("Saved snapshot")
	return f, nil
}

func saveJSON(path string, v any) error {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, content, 0644)
}

func saveCSV(path string, fields []string, records []*models.Record) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(fields); err != nil {
		return err
	}

	row := make([]string, len(fields))
	for _, rec := range records {
		for i, f := range fields {
			row[i] = models.FormatValue(rec.Get(f))
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func stat(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return &File{Path: path, Size: info.Size()}, nil
}

// HumanSize formats a byte count as KB with two decimals
func HumanSize(n int64) string {
	return fmt.Sprintf("%.2f KB", float64(n)/1024)
}
