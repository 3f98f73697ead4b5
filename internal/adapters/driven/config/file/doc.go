// Package file implements the TOML-backed configuration store holding
// the deployment policy: identity key attributes, intake limits, and
// the escalation trigger table. The store supports hot reload via
// fsnotify so policy changes apply without a restart.
package file
