package escrowd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/iov-one/escrowd/errors"
)

func TestHexBytesJSON(t *testing.T) {
	a := HexBytes("a hexbyte value")
	raw, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("cannot marshal: %s", err)
	}
	var b HexBytes
	if err := json.Unmarshal(raw, &b); err != nil {
		t.Fatalf("cannot unmarshal: %s", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("%q != %q", a, b)
	}
}

func TestDecodeFixedHex(t *testing.T) {
	cases := map[string]struct {
		input   string
		size    int
		wantErr *errors.Error
	}{
		"exact size": {
			input: "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff",
			size:  32,
		},
		"upper case with prefix": {
			input: "0x00112233445566778899AABBCCDDEEFF00112233445566778899AABBCCDDEEFF",
			size:  32,
		},
		"too short": {
			input:   "0011",
			size:    32,
			wantErr: errors.ErrInput,
		},
		"too long": {
			input:   "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff00",
			size:    32,
			wantErr: errors.ErrInput,
		},
		"not hex": {
			input:   "zz",
			size:    1,
			wantErr: errors.ErrInput,
		},
		"odd length": {
			input:   "abc",
			size:    2,
			wantErr: errors.ErrInput,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			raw, err := DecodeFixedHex(tc.input, tc.size)
			if !tc.wantErr.Is(err) {
				t.Fatalf("unexpected error: %+v", err)
			}
			if tc.wantErr == nil && len(raw) != tc.size {
				t.Fatalf("want %d bytes, got %d", tc.size, len(raw))
			}
		})
	}
}
