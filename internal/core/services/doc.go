// Package services implements the driving ports on top of the driven
// ports: tokenization, isolated intake, chain recording, and chain
// queries. Services hold no store-specific logic; adapters do.
package services
