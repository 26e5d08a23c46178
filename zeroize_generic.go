//go:build !amd64

package secmem

// registerArchStrategies is a no-op on architectures without a hand-written
// asm/SIMD zeroizer; scalar-volatile remains the only registered strategy
// and is always correct, just slower.
func registerArchStrategies() {}
