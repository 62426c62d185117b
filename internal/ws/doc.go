// Package ws streams the elevated-dread list to WebSocket clients so game
// clients can react to ranking changes without polling the REST API.
package ws
