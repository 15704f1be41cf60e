package types

// Event is the canonical attribute payload emitted by native modules. The
// attribute map keeps values as strings so downstream consumers (RPC, audit
// journal) can persist events without knowing module internals.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
