// Package services holds the business layer between the HTTP transport and
// the analysis pipeline: upload retention, run execution and bookkeeping,
// and health reporting.
package services
