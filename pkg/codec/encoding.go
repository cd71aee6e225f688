// Package codec provides the wire formats of the dispatch layer: decoding of
// request bodies by content type, response encoders, and the base64/base62
// helpers used by transforms.
package codec

import (
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

var (
	// ErrInvalidBase62 is returned for input outside the base62 alphabet.
	ErrInvalidBase62 = errors.New("invalid base62 character")

	big62 = big.NewInt(62)
)

// DecodeBase64 decodes a base64-encoded string to bytes.
// It uses the standard base64 encoding as defined in RFC 4648.
func DecodeBase64(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}

// DecodeBase62 decodes a base62 string (0-9, A-Z, a-z) into bytes.
// The string is read as a big-endian number; leading '0' characters map to
// leading zero bytes so that EncodeBase62 and DecodeBase62 round-trip.
func DecodeBase62(encoded string) ([]byte, error) {
	n := new(big.Int)
	leading := 0
	counting := true
	for _, c := range encoded {
		idx := strings.IndexRune(base62Alphabet, c)
		if idx < 0 {
			return nil, ErrInvalidBase62
		}
		if counting && idx == 0 {
			leading++
			continue
		}
		counting = false
		n.Mul(n, big62)
		n.Add(n, big.NewInt(int64(idx)))
	}
	return append(make([]byte, leading), n.Bytes()...), nil
}

// EncodeBase62 encodes bytes as a base62 string.
func EncodeBase62(data []byte) string {
	leading := 0
	for leading < len(data) && data[leading] == 0 {
		leading++
	}

	n := new(big.Int).SetBytes(data[leading:])
	var out []byte
	mod := new(big.Int)
	for n.Sign() > 0 {
		n.DivMod(n, big62, mod)
		out = append(out, base62Alphabet[mod.Int64()])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return strings.Repeat("0", leading) + string(out)
}
