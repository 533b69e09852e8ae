package main

import (
	"errors"
	"fmt"
)

var (
	errInvalidHexDigit = errors.New("invalid hex digit")
	errOddLength       = errors.New("odd number of hex digits")
)

// parseHex converts a typed hex string into bytes. Spaces and tabs are
// separators and ignored; digits are case-insensitive.
func parseHex(text string) ([]byte, error) {
	var digits []byte
	for i, r := range text {
		switch {
		case r == ' ' || r == '\t':
			continue
		case r >= '0' && r <= '9':
			digits = append(digits, byte(r-'0'))
		case r >= 'a' && r <= 'f':
			digits = append(digits, byte(r-'a'+10))
		case r >= 'A' && r <= 'F':
			digits = append(digits, byte(r-'A'+10))
		default:
			return nil, fmt.Errorf("%w: %q at offset %d", errInvalidHexDigit, r, i)
		}
	}
	if len(digits)%2 != 0 {
		return nil, fmt.Errorf("%w: %d", errOddLength, len(digits))
	}
	out := make([]byte, len(digits)/2)
	for i := range out {
		out[i] = digits[2*i]<<4 | digits[2*i+1]
	}
	return out, nil
}
