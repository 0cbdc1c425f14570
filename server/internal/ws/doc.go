// Package ws implements the WebSocket hub behind /ws/stream.
//
// Hub pushes the full device list to every connected client on connect, on
// each stream interval, and whenever a yard observer reports a change:
//
//	{
//	  "event": "devices",
//	  "data":  { "devices": [ /* same schema as GET /devices */ ] }
//	}
package ws
