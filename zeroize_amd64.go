//go:build amd64

package secmem

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// asmZeroizeRepStosb zeroizes n bytes starting at p using a single
// inline-assembly `rep stosb` (see zeroize_amd64.s). Available
// unconditionally on amd64: `rep stosb` needs no particular alignment or
// CPU feature beyond the baseline ISA.
//
//go:noescape
func asmZeroizeRepStosb(p unsafe.Pointer, n uintptr)

// asmZeroizeSSE2 zeroizes n bytes using 16-byte aligned SSE2 stores. p
// must be 16-byte aligned and n a multiple of 16.
//
//go:noescape
func asmZeroizeSSE2(p unsafe.Pointer, n uintptr)

// asmZeroizeAVX zeroizes n bytes using 32-byte aligned AVX stores. p must
// be 32-byte aligned and n a multiple of 32.
//
//go:noescape
func asmZeroizeAVX(p unsafe.Pointer, n uintptr)

// registerArchStrategies appends the amd64 asm strategies, gated by the
// CPU features they require, which is why this must run after a feature
// probe but can run at package init() regardless of file order: it's a
// plain function, not a var-indirected hook, so there is no init-ordering
// hazard between this file and zeroize.go.
func registerArchStrategies() {
	strategies = append(strategies, descriptor{
		name: "asm-rep-stosb", alignLog2: 0, blockLog2: 0, priority: 10, fn: asmZeroizeRepStosb,
	})

	if cpu.X86.HasSSE2 {
		strategies = append(strategies, descriptor{
			name: "sse2", alignLog2: 4, blockLog2: 4, priority: 20, fn: asmZeroizeSSE2,
		})
	}
	if cpu.X86.HasAVX2 {
		strategies = append(strategies, descriptor{
			name: "avx", alignLog2: 5, blockLog2: 5, priority: 30, fn: asmZeroizeAVX,
		})
	}
}
