// Package workbook reads the three warehouse Excel reports into the typed
// records the analysis pipeline consumes. It owns all excelize handling:
// sheet selection, header resolution tolerant of casing and padding
// variations, and expiry date parsing. Per-row anomalies stay in the data
// (flagged on the record); only structural problems — a missing sheet or a
// required column absent across the sheet — are surfaced as errors.
package workbook
