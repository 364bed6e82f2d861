// Package exporter renders the assembled analysis sections as downloadable
// artifacts: a five-sheet Excel workbook and per-section CSV. Rendering is
// presentation only; the sections arrive fully shaped from the analysis.
package exporter
