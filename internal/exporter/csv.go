package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"

	"wavesight/pkg/contracts/domain"
)

// CSVWriter exports a single analysis section as CSV.
type CSVWriter struct {
	logger *slog.Logger
}

// NewCSVWriter creates a CSV writer.
func NewCSVWriter(logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{logger: logger.With(slog.String("component", "exporter"))}
}

// WriteOptions configures CSV output.
type WriteOptions struct {
	// BOMPrefix prepends a UTF-8 BOM so Excel opens the file with the
	// right encoding.
	BOMPrefix bool
}

// WriteTable writes the header and rows of one section.
func (w *CSVWriter) WriteTable(out io.Writer, table domain.Table, options WriteOptions) error {
	if options.BOMPrefix {
		if _, err := out.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(out)
	defer writer.Flush()

	if len(table.Header) > 0 {
		if err := writer.Write(table.Header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for i, row := range table.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	w.logger.Debug("csv written",
		slog.String("section", table.Name),
		slog.Int("rows", len(table.Rows)))
	return nil
}
