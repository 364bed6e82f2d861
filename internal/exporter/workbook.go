package exporter

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"wavesight/internal/analysis"
	"wavesight/pkg/contracts/domain"
)

// Reference column headers appended to the final sheet, after all original
// inventory columns.
const (
	headerConveyorHU = "Conveyor_HU"
	headerSBLDemand  = "SBL Demand"
)

// WorkbookFilename returns the default download name for an analysis
// workbook, timestamped the way the legacy analyst tooling named it.
func WorkbookFilename(now time.Time) string {
	return fmt.Sprintf("Not_Fed_and_Demanded_%s.xlsx", now.Format("20060102_150405"))
}

// WorkbookWriter renders analysis sections into a single multi-sheet
// workbook.
type WorkbookWriter struct {
	logger *slog.Logger
}

// NewWorkbookWriter creates a workbook writer.
func NewWorkbookWriter(logger *slog.Logger) *WorkbookWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkbookWriter{logger: logger.With(slog.String("component", "exporter"))}
}

// Write renders each section as one sheet, in section order, with a bold
// frozen header row. Empty sections render header-only. refs, when non-nil,
// supplies the two reference columns appended to the Not_Fed_and_Demanded
// sheet; it must align with that section's rows.
func (w *WorkbookWriter) Write(out io.Writer, sections []domain.Table, refs []analysis.RowReference) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	for _, section := range sections {
		if _, err := f.NewSheet(section.Name); err != nil {
			return fmt.Errorf("create sheet %s: %w", section.Name, err)
		}

		header := section.Header
		rows := section.Rows
		if section.Name == analysis.SectionNotFedDemanded && refs != nil {
			if len(refs) != len(rows) {
				return fmt.Errorf("reference columns: %d refs for %d rows", len(refs), len(rows))
			}
			header = append(header.Clone(), headerConveyorHU, headerSBLDemand)
			extended := make([]domain.Row, len(rows))
			for i, row := range rows {
				extended[i] = append(row.Clone(), refs[i].ConveyorHU, refs[i].SBLDemand)
			}
			rows = extended
		}

		if err := writeRow(f, section.Name, 1, header); err != nil {
			return err
		}
		for i, row := range rows {
			if err := writeRow(f, section.Name, i+2, row); err != nil {
				return err
			}
		}

		if len(header) > 0 {
			last, err := excelize.CoordinatesToCellName(len(header), 1)
			if err != nil {
				return fmt.Errorf("header range for %s: %w", section.Name, err)
			}
			if err := f.SetCellStyle(section.Name, "A1", last, headerStyle); err != nil {
				return fmt.Errorf("style header of %s: %w", section.Name, err)
			}
		}
		if err := f.SetPanes(section.Name, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("freeze header of %s: %w", section.Name, err)
		}

		w.logger.Debug("sheet written",
			slog.String("sheet", section.Name),
			slog.Int("rows", len(rows)))
	}

	// Drop the implicit default sheet so the workbook holds exactly the
	// five sections.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("remove default sheet: %w", err)
	}
	if len(sections) > 0 {
		idx, err := f.GetSheetIndex(sections[0].Name)
		if err == nil && idx >= 0 {
			f.SetActiveSheet(idx)
		}
	}

	if err := f.Write(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, rowNum int, row domain.Row) error {
	if len(row) == 0 {
		return nil
	}
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("cell name for row %d: %w", rowNum, err)
	}
	values := make([]interface{}, len(row))
	for i, v := range row {
		values[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d of %s: %w", rowNum, sheet, err)
	}
	return nil
}
