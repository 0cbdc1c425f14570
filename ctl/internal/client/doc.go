// Package client is a typed HTTP client for the railyard-server REST API.
//
// New(target, timeout) builds a Client whose transport injects the target's
// API key on every request. Methods map 1:1 onto the REST routes; non-2xx
// answers come back as *APIError carrying the status and the server message.
// Status scrapes /metrics and reduces it to a Summary; Watch follows the
// /ws/stream WebSocket.
package client
