package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"wavesight/internal/analysis"
	"wavesight/internal/config"
	"wavesight/internal/exporter"
	"wavesight/internal/workbook"
	"wavesight/pkg/contracts/domain"
)

func main() {
	inventoryPath := flag.String("inventory", "", "path to the inventory HU report (.xlsx)")
	conveyorPath := flag.String("conveyor", "", "path to the conveyor HU events report (.xlsx)")
	outboundPath := flag.String("outbound", "", "path to the outbound SBL report (.xlsx)")
	dateFlag := flag.String("date", "", "processing date as YYYY-MM-DD (defaults to today)")
	outDir := flag.String("out", ".", "output directory for the result workbook")
	csvSection := flag.String("csv", "", "also write one section as CSV (e.g. Not_Fed_and_Demanded)")
	flag.Parse()

	if *inventoryPath == "" || *conveyorPath == "" || *outboundPath == "" {
		fmt.Fprintln(os.Stderr, "usage: wave-report -inventory FILE -conveyor FILE -outbound FILE [-date YYYY-MM-DD] [-out DIR] [-csv SECTION]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	processingDate := time.Now()
	if *dateFlag != "" {
		processingDate, err = time.Parse("2006-01-02", *dateFlag)
		if err != nil {
			slog.Error("invalid -date, want YYYY-MM-DD", "value", *dateFlag)
			os.Exit(2)
		}
	}

	logger := slog.Default()
	parser := workbook.NewParserForSheet(logger, cfg.Analysis.InventorySheet)

	inventory, err := parseInventory(parser, *inventoryPath)
	if err != nil {
		slog.Error("failed to read inventory report", "path", *inventoryPath, "error", err)
		os.Exit(1)
	}
	conveyor, err := parseConveyor(parser, *conveyorPath)
	if err != nil {
		slog.Error("failed to read conveyor report", "path", *conveyorPath, "error", err)
		os.Exit(1)
	}
	outbound, err := parseOutbound(parser, *outboundPath)
	if err != nil {
		slog.Error("failed to read outbound report", "path", *outboundPath, "error", err)
		os.Exit(1)
	}

	analyzer := analysis.NewAnalyzer(
		analysis.Config{PartialCLDArea: cfg.Analysis.PartialCLDArea},
		logger,
		analysis.NopSink{},
	)

	in := analysis.Input{
		Inventory:      inventory.Records,
		Conveyor:       conveyor.Events,
		Outbound:       outbound.Lines,
		ProcessingDate: processingDate,
	}

	res, err := analyzer.Run(context.Background(), in)
	if err != nil {
		slog.Error("analysis failed", "error", err)
		os.Exit(1)
	}

	slog.Info("analysis complete",
		"inventory_rows", res.Summary.InventoryRows,
		"after_filters", res.Summary.AfterFilters,
		"not_fed", res.Summary.NotFed,
		"matched", res.Summary.Matched,
		"demand_keys", res.Summary.DemandKeys,
	)

	sections := analysis.Assemble(res, in, analysis.Headers{
		Inventory: inventory.Header,
		Conveyor:  conveyor.Header,
		Outbound:  outbound.Header,
	})

	outPath := filepath.Join(*outDir, exporter.WorkbookFilename(time.Now()))
	if err := writeWorkbook(logger, outPath, sections, analysis.ReferenceColumns(res)); err != nil {
		slog.Error("failed to write output workbook", "path", outPath, "error", err)
		os.Exit(1)
	}
	slog.Info("workbook written", "path", outPath)

	if *csvSection != "" {
		if err := writeSectionCSV(logger, sections, *csvSection, *outDir); err != nil {
			slog.Error("failed to write section csv", "section", *csvSection, "error", err)
			os.Exit(1)
		}
	}
}

func parseInventory(p *workbook.Parser, path string) (*workbook.InventorySheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return p.ParseInventory(f)
}

func parseConveyor(p *workbook.Parser, path string) (*workbook.ConveyorSheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return p.ParseConveyor(f)
}

func parseOutbound(p *workbook.Parser, path string) (*workbook.OutboundSheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return p.ParseOutbound(f)
}

func writeWorkbook(logger *slog.Logger, path string, sections []domain.Table, refs []analysis.RowReference) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := exporter.NewWorkbookWriter(logger).Write(out, sections, refs); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeSectionCSV(logger *slog.Logger, sections []domain.Table, section, outDir string) error {
	for _, table := range sections {
		if table.Name != section {
			continue
		}
		path := filepath.Join(outDir, section+".csv")
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := exporter.NewCSVWriter(logger).WriteTable(f, table, exporter.WriteOptions{BOMPrefix: true}); err != nil {
			return err
		}
		logger.Info("csv written", "path", path)
		return nil
	}
	return fmt.Errorf("unknown section %q", section)
}
