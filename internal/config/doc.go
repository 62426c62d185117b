// Package config loads and validates the server configuration from a YAML
// file. Configuration errors are startup-fatal; nothing here is reloadable
// at runtime except the API keyring, which lives in its own file (see the
// auth package).
package config
