// Package auth provides the API key middleware for the REST API.
//
// A Guard holds the current Settings and can be updated at runtime when the
// config file is reloaded. When Mode != "apikey" or the key is empty every
// request passes through, which is the usual setup on a home network.
// Otherwise the named header must carry the key or the request is rejected
// with 401 and a JSON error body.
package auth
