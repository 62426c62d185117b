// Package notify fires webhook notifications when an area's dread level
// rises, so operators and community bots hear about new danger zones without
// watching the API.
package notify
