package mathx

// RoundDivS rounds a/b half away from zero for signed integers.
// b must be positive; b <= 0 returns 0. Used for fixed-point unit
// conversions where readings may be negative (milli-degrees, etc).
func RoundDivS[T ~int | ~int16 | ~int32 | ~int64](a, b T) T {
	if b <= 0 {
		return 0
	}
	if a >= 0 {
		return (a + b/2) / b
	}
	return (a - b/2) / b
}
