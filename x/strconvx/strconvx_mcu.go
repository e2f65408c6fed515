//go:build rp2040 || rp2350

package strconvx

import "errors"

// Minimal allocation-aware parsers with strconv-compatible signatures.
// Supported bases: 2..36. Good enough for console input on MCU.

var (
	errSyntax = errors.New("strconvx: invalid syntax")
	errRange  = errors.New("strconvx: value out of range")
)

func Atoi(s string) (int, error) {
	neg := false
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	// int is 32 bits on the rp2 targets this file builds for.
	u, err := ParseUint(s, 10, 31)
	if err != nil {
		return 0, err
	}
	if neg {
		return -int(u), nil
	}
	return int(u), nil
}

func ParseUint(s string, base, bitSize int) (uint64, error) {
	if base < 2 || base > 36 {
		base = 10
	}
	if bitSize <= 0 || bitSize > 64 {
		bitSize = 64
	}
	if len(s) == 0 {
		return 0, errSyntax
	}
	var max uint64
	if bitSize == 64 {
		max = ^uint64(0)
	} else {
		max = (uint64(1) << uint(bitSize)) - 1
	}
	b := uint64(base)
	var v uint64
	for i := 0; i < len(s); i++ {
		var d uint64
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			d = uint64(c - '0')
		case c >= 'a' && c <= 'z':
			d = uint64(c-'a') + 10
		case c >= 'A' && c <= 'Z':
			d = uint64(c-'A') + 10
		default:
			return 0, errSyntax
		}
		if d >= b {
			return 0, errSyntax
		}
		if v > (max-d)/b {
			return 0, errRange
		}
		v = v*b + d
	}
	return v, nil
}
