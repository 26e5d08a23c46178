//go:build cgo && (linux || darwin || freebsd || openbsd || netbsd)

package secmem

// #include <string.h>
import "C"

import "unsafe"

// zeroizeLibcExplicitBzero wraps libc's explicit_bzero, where the platform
// provides it (glibc >= 2.25, the *BSDs, modern Darwin libc). It is
// registered as an additional strategy only when this file is compiled
// in, i.e. with cgo enabled — the pure-Go build keeps the asm/scalar
// strategies and never links libc.
func zeroizeLibcExplicitBzero(p unsafe.Pointer, n uintptr) {
	C.explicit_bzero(p, C.size_t(n))
}

func init() {
	// explicit_bzero has no alignment or block-size precondition, same as
	// the scalar-volatile baseline, but is generally faster since it is
	// implemented in the platform's own optimized libc.
	strategies = append(strategies, descriptor{
		name: "libc-explicit_bzero", alignLog2: 0, blockLog2: 0, priority: 15, fn: zeroizeLibcExplicitBzero,
	})
}
