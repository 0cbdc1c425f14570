// Package config loads railyard-server's config.yaml.
//
// Sections:
//   - server:   HTTP port, data directory, API-key auth, log level and event
//     log retention, stream interval, reset wait
//   - hardware: GPIO backend (periph or sim), usable pins, default layout and
//     device timings
//   - network:  interface reported by /network and the scan cache TTL
//   - ota:      repository the update endpoint pulls files from
//   - notify:   webhooks that receive yard events
//
// Load(path) applies defaults before unmarshalling, then validates. Watch
// re-runs Load whenever the file changes; only the log level and auth
// settings are applied without a restart.
package config
