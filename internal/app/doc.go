// Package app wires configuration, logging, telemetry, the upload store,
// the analysis service and the chi router into a runnable HTTP server.
package app
