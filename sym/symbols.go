// Package sym defines canonical symbols for Puckline subsystems and system markers.
// These symbols are stable across CLI output, log fields, and documentation.
package sym

// Primary subsystem symbols — one per governed concern.
const (
	Schema = "◬" // ontology schema: versions, object types, properties, links
	Policy = "⊘" // security policies and rule evaluation
	Audit  = "⊶" // append-only audit trail
	Check  = "⊨" // runtime permission check (evaluate)
)

// System infrastructure symbols.
const (
	DB     = "⊔" // database/storage layer
	Serve  = "⌁" // admin HTTP/WebSocket server
	Config = "≡" // configuration and system settings
)

// Label returns a short human label for a subsystem symbol,
// used by the CLI when rendering tables and banners.
func Label(glyph string) string {
	switch glyph {
	case Schema:
		return "schema"
	case Policy:
		return "policy"
	case Audit:
		return "audit"
	case Check:
		return "check"
	case DB:
		return "db"
	case Serve:
		return "serve"
	case Config:
		return "config"
	default:
		return ""
	}
}
