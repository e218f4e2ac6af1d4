// Package config loads and validates the Twinsync configuration file.
//
// Configuration is a single YAML document covering the registry and twin
// API clients, the reconciler (template path, scan interval, label
// selector), the MQTT event bus, the journal database, the ops API and
// logging. Secrets can be supplied via TWINSYNC_* environment variables
// instead of the file.
package config
