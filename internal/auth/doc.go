// Package auth enforces API-key authentication and per-IP rate limiting on
// protected HTTP endpoints. Keys live in a YAML file mapping key → client
// name; the file is watched and hot reloaded so keys can be rotated without
// a restart.
package auth
