// Package notifications delivers run events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Per-event toggles
// and the minimum run duration are applied here so the job runner can publish
// every event unconditionally.
package notifications
