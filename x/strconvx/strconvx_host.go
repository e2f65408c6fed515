//go:build !rp2040 && !rp2350

package strconvx

import "strconv"

// Signature parity with strconv; delegate straight through on host builds.

func Atoi(s string) (int, error) { return strconv.Atoi(s) }

func ParseUint(s string, base, bitSize int) (uint64, error) {
	return strconv.ParseUint(s, base, bitSize)
}
