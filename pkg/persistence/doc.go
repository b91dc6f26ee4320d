// Package persistence keeps hub runtime state that must survive restarts.
//
// Subscriptions declared in the configuration file are recreated from the
// file on every start. Subscriptions added at runtime through the HTTP API
// are recorded here as JSON so the hub can restore them.
package persistence
