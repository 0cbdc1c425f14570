// Package api implements the HTTP REST API of railyard-server.
//
// New(deps) returns an http.Handler that serves:
//
//	GET    /                              success (text)
//	GET    /scan, /network                Wi-Fi scan and interface info
//	GET    /shutdown, /reset, /update     success (text), then stops the server
//	GET    /devices, /devices/types       device list, catalogue + free pins
//	POST   /devices/{pins}/{type}         add
//	DELETE /devices/{pins}                remove
//	PUT    /devices/{toggle|on|off|reset}/{pins}
//	PUT    /devices/change/{pins}/{type}
//	GET    /devices/steps/{pins}
//	PUT    /devices/steps/{pins}/{steps}
//	GET|PUT|POST|DELETE /profiles         list, load, save, delete
//	POST|DELETE /profiles/favorite
//	POST|DELETE /credentials              success / failure (text)
//	GET|DELETE  /log                      event log (text)
//	GET    /metrics                       Prometheus text format
//	GET    /ws/stream                     WebSocket device stream
//
// Errors are JSON {"error": "..."}: 404 for unknown devices and profiles, 400
// for invalid input, 500 otherwise. Every request passes through the
// middleware chain in middleware.go.
package api
