// Package config loads the railyardctl configuration file (~/.railyardctl.yaml).
//
// Top-level types:
//   - Config{Timeout, Targets}: request timeout and the known servers
//   - Target: name, endpoint (http://host:port), auth
//   - AuthConfig: mode (apikey|none), header, key_env; Key() resolves the
//     key from the environment so it never lives in the file
//
// Load(path) applies defaults (10s timeout), parses the YAML and validates
// names, endpoints and auth modes. A missing file is not an error: the CLI
// then relies on --endpoint.
package config
