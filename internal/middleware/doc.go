// Package middleware provides HTTP middleware for the clip splitter.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics labelled by mux route template
//   - Panic recovery that answers 500 instead of crashing the process
package middleware
