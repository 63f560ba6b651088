package sqlgen

import (
	"errors"
	"fmt"

	"golang.org/x/text/encoding/charmap"
)

var ErrNotLatin1 = errors.New("text not representable in ISO-8859-1")

// EncodeLatin1 re-encodes generated SQL for the loader. Any rune outside the
// single-byte range is an error; nothing is replaced.
func EncodeLatin1(s string) ([]byte, error) {
	for i, r := range s {
		if r > 0xFF {
			return nil, fmt.Errorf("%w: %q at byte %d", ErrNotLatin1, r, i)
		}
	}
	out, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotLatin1, err)
	}
	return out, nil
}

// DecodeLatin1 reads back an artifact written by EncodeLatin1.
func DecodeLatin1(b []byte) (string, error) {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
