package escrowd

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/iov-one/escrowd/errors"
)

// HexBytes is a binary value that crosses every boundary (JSON, query
// parameters, logs) hex encoded.
type HexBytes []byte

// String returns the lowercase hex representation.
func (h HexBytes) String() string {
	return hex.EncodeToString(h)
}

// MarshalJSON encodes the value as a hex string.
func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

// UnmarshalJSON decodes a hex string. Both lower and upper case are accepted.
func (h *HexBytes) UnmarshalJSON(src []byte) error {
	var s string
	if err := json.Unmarshal(src, &s); err != nil {
		return errors.Wrap(errors.ErrInput, "hex value must be a string")
	}
	raw, err := DecodeHex(s)
	if err != nil {
		return err
	}
	*h = raw
	return nil
}

// DecodeHex decodes a hex string, tolerating an optional 0x prefix. Malformed
// input results in ErrInput.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "malformed hex: %s", err)
	}
	return raw, nil
}

// DecodeFixedHex decodes a hex string that must represent exactly size bytes.
// Any other decoded length is an ErrInput.
func DecodeFixedHex(s string, size int) ([]byte, error) {
	raw, err := DecodeHex(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != size {
		return nil, errors.Wrapf(errors.ErrInput, "want %d bytes, got %d", size, len(raw))
	}
	return raw, nil
}
