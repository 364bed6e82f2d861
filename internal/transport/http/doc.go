// Package http contains the chi handlers for the REST surface: report
// uploads, analysis runs, result downloads and health checks. Errors leave
// this layer as RFC 7807 problem documents.
package http
