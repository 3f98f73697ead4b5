// Package driving defines the interfaces the outside world calls into the
// core: tokenization, intake, recording, and chain queries. The CLI and
// HTTP adapters depend on these, never on concrete services.
package driving
