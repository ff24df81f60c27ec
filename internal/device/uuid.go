package device

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
)

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID
// 0000xxxx-0000-1000-8000-00805f9b34fb, without dashes.
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal form: lowercase, no
// dashes, no braces, no 0x prefix. Full 128-bit UUIDs in the SIG base are
// reduced to their 16-bit short form (xxxx).
func NormalizeUUID(uuid string) string {
	s := strings.ToLower(strings.TrimSpace(uuid))
	s = strings.TrimPrefix(strings.TrimSuffix(s, "}"), "{")
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, "-", "")

	if len(s) == 32 && strings.HasPrefix(s, "0000") && strings.HasSuffix(s, sigBaseSuffix) {
		return s[4:8]
	}
	return s
}

// ShortenUUID returns the leading eight characters of a 128-bit UUID for
// narrow display columns. 16-bit UUIDs are returned unchanged.
func ShortenUUID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}

// Identifier is an immutable GATT service or characteristic UUID.
// The zero value means "absent".
type Identifier struct {
	norm string
	uuid ble.UUID
}

// ParseIdentifier parses a 16-bit or 128-bit UUID in any of the forms
// NormalizeUUID accepts.
func ParseIdentifier(s string) (Identifier, error) {
	norm := NormalizeUUID(s)
	if norm == "" {
		return Identifier{}, fmt.Errorf("UUID cannot be empty")
	}
	if len(norm) != 4 && len(norm) != 32 {
		return Identifier{}, fmt.Errorf("invalid UUID %q: must be 16-bit or 128-bit", s)
	}
	if _, err := hex.DecodeString(norm); err != nil {
		return Identifier{}, fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	u, err := ble.Parse(norm)
	if err != nil {
		return Identifier{}, fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return Identifier{norm: norm, uuid: u}, nil
}

// MustParseIdentifier is like ParseIdentifier but panics on error.
func MustParseIdentifier(s string) Identifier {
	id, err := ParseIdentifier(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IdentifierFromBLE converts a go-ble UUID. Malformed input yields the zero Identifier.
func IdentifierFromBLE(u ble.UUID) Identifier {
	if len(u) == 0 {
		return Identifier{}
	}
	id, err := ParseIdentifier(u.String())
	if err != nil {
		return Identifier{}
	}
	return id
}

// IsZero reports whether the identifier is absent.
func (id Identifier) IsZero() bool {
	return id.norm == ""
}

// Equal compares by value; a 16-bit identifier equals its SIG base expansion.
func (id Identifier) Equal(other Identifier) bool {
	return id.norm == other.norm
}

// Is16Bit reports whether the identifier is a short (SIG-assigned) UUID.
func (id Identifier) Is16Bit() bool {
	return len(id.norm) == 4
}

// BLE returns the identifier as a go-ble UUID.
func (id Identifier) BLE() ble.UUID {
	return id.uuid
}

// String returns the normalized form, dashed for 128-bit identifiers.
func (id Identifier) String() string {
	if len(id.norm) != 32 {
		return id.norm
	}
	n := id.norm
	return n[0:8] + "-" + n[8:12] + "-" + n[12:16] + "-" + n[16:20] + "-" + n[20:32]
}

// MarshalText renders the identifier as in String, so JSON output lists
// identifiers in their display form.
func (id Identifier) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// BLEUUIDs converts a set of identifiers for go-ble filters, skipping zero values.
func BLEUUIDs(ids ...Identifier) []ble.UUID {
	result := make([]ble.UUID, 0, len(ids))
	for _, id := range ids {
		if !id.IsZero() {
			result = append(result, id.uuid)
		}
	}
	return result
}
