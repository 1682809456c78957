// Package handlers provides the HTTP handlers of the clip splitter.
//
// It includes handlers for:
//   - Video upload, splitting and the clip list response (POST /upload)
//   - Clip and poster delivery (GET /clips/{project}/{filename})
//   - Health, liveness, readiness and version probes
//   - The Prometheus metrics endpoint
//
// Handlers also implements metrics.StatsProvider so the background collector
// can publish job and storage gauges.
package handlers
