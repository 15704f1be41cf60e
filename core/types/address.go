package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Address is a 32-byte account, asset or program identity.
type Address [32]byte

// Hex renders the address as lowercase hex without a prefix.
func (a Address) Hex() string { return hex.EncodeToString(a[:]) }

// IsZero reports whether the address is the all-zero identity.
func (a Address) IsZero() bool { return a == Address{} }

// MarshalJSON renders the address as a hex string.
func (a Address) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.Hex() + `"`), nil
}

// UnmarshalJSON accepts a hex string with optional 0x prefix.
func (a *Address) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode address: %w", err)
	}
	parsed, err := ParseAddress(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress decodes a 64-character hex string (an optional 0x prefix is
// accepted) into an Address.
func ParseAddress(s string) (Address, error) {
	var addr Address
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("parse address %q: %w", s, err)
	}
	if len(raw) != len(addr) {
		return addr, fmt.Errorf("parse address: expected %d bytes, got %d", len(addr), len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}
