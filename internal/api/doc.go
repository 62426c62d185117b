// Package api implements the HTTP JSON endpoints: death logging, dread level
// reads, health, and Prometheus metrics exposition.
package api
