// Package types holds the JSON wire types of the rail yard REST API.
//
// railyard-server encodes them and railyardctl decodes them, so field names
// here are the contract with existing phone clients: upper-case keys for the
// network and profile payloads, lower-case for devices.
package types
