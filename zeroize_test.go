package secmem

import (
	"testing"
	"unsafe"
)

// TestZeroizeCoversRegion exercises Testable Property 1: for every
// registered strategy, called directly, a span prefilled with 0xAA reads
// back as all zero over exactly its length and untouched beyond it.
// Strategies without a block size are tried at every length from 0 to
// max(2*blockSize, 64); block strategies (SSE2, AVX) only at multiples of
// their block size, since they require it. Lengths that are not a
// multiple of a SIMD register width reach ZeroizeMem, which then picks a
// narrower strategy; TestZeroizeMemDispatch covers those.
func TestZeroizeCoversRegion(t *testing.T) {
	for _, d := range strategies {
		d := d
		t.Run(d.name, func(t *testing.T) {
			blockSize := uintptr(1) << d.blockLog2
			alignSize := uintptr(1) << d.alignLog2
			maxLen := 2 * blockSize
			if maxLen < 64 {
				maxLen = 64
			}
			for n := uintptr(0); n <= maxLen; n++ {
				// Only exercise lengths this strategy's own preconditions
				// accept; ZeroizeMem's strategy selection (best()) already
				// guarantees this invariant for real callers, but here we
				// drive d.fn directly so we must respect it ourselves.
				if d.blockLog2 > 0 && n%blockSize != 0 {
					continue
				}

				buf := makeAligned(int(maxLen)+int(alignSize), int(alignSize))
				for i := range buf {
					buf[i] = 0xAA
				}

				d.fn(unsafe.Pointer(&buf[0]), n)

				for i := uintptr(0); i < n; i++ {
					if buf[i] != 0 {
						t.Fatalf("%s: byte %d not zeroed (n=%d): got %#x", d.name, i, n, buf[i])
					}
				}
				for i := n; i < uintptr(len(buf)); i++ {
					if buf[i] != 0xAA {
						t.Fatalf("%s: byte %d beyond n=%d was touched: got %#x", d.name, i, n, buf[i])
					}
				}
			}
		})
	}
}

// TestZeroizeMemDispatch checks ZeroizeMem's automatic strategy selection
// zeroes spans of varying, not-necessarily-power-of-two lengths.
func TestZeroizeMemDispatch(t *testing.T) {
	for _, n := range []int{0, 1, 3, 7, 15, 16, 17, 31, 32, 33, 100, 4096} {
		buf := make([]byte, n, n+8)
		buf = buf[:n]
		for i := range buf {
			buf[i] = 0xFF
		}
		span := Span{Len: uintptr(n)}
		if n > 0 {
			span.Base = unsafe.Pointer(&buf[0])
		}
		ZeroizeMem(span)
		for i, b := range buf {
			if b != 0 {
				t.Fatalf("n=%d: byte %d = %#x, want 0", n, i, b)
			}
		}
	}
}

// makeAligned returns a byte slice of at least n bytes whose first byte
// address is a multiple of align.
func makeAligned(n, align int) []byte {
	buf := make([]byte, n+align)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	pad := (uintptr(align) - addr%uintptr(align)) % uintptr(align)
	return buf[pad : int(pad)+n]
}
