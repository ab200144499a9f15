// Package source provides collectors for each supported quality tool.
// Each collector polls a tool's reporting endpoint and returns a
// model.SourceResult carrying the measured value and the entities behind it
// (failed jobs, failed tests). The server's ingestion engine decides whether
// the result is new information.
//
// Implemented collectors: Jenkins job counts (jenkins.go), Prometheus metric
// queries (prometheus.go), Robot Framework test results (robotframework.go).
// Factory: New(config.Source) returns the correct Collector.
//
// Collect never returns an error for upstream failures: connectivity problems
// are recorded as the result's ConnectionError and malformed responses as its
// ParseError, so a broken tool still produces a (failed) source result.
//
// Authentication (API key, bearer token, basic auth) is handled by the shared
// authRoundTripper in base.go; individual collectors receive a pre-configured
// *http.Client from New().
package source
