package secmem

import (
	"testing"
	"unsafe"
)

// trackingAllocator is a trivial heap-backed Allocator used to observe,
// from the inside, exactly what ZeroizeAlloc does to memory before
// releasing it — Testable Properties 2 and 3's "instrumented allocator".
type trackingAllocator struct {
	live         map[uintptr][]byte
	moveOnResize bool // force Grow/Shrink to relocate, for exercising the move branch
	deallocSeen  [][]byte
}

func newTrackingAllocator() *trackingAllocator {
	return &trackingAllocator{live: map[uintptr][]byte{}}
}

func (a *trackingAllocator) Allocate(layout Layout) (Span, error) {
	if layout.Size == 0 {
		return Span{Base: unsafe.Pointer(&zeroSizeSentinel), Len: 0}, nil
	}
	buf := make([]byte, layout.Size)
	ptr := unsafe.Pointer(&buf[0])
	a.live[uintptr(ptr)] = buf
	return Span{Base: ptr, Len: layout.Size}, nil
}

func (a *trackingAllocator) Deallocate(ptr unsafe.Pointer, layout Layout) {
	if layout.Size == 0 {
		return
	}
	buf := a.live[uintptr(ptr)]
	snapshot := make([]byte, len(buf))
	copy(snapshot, buf)
	a.deallocSeen = append(a.deallocSeen, snapshot)
	delete(a.live, uintptr(ptr))
}

func (a *trackingAllocator) Grow(ptr unsafe.Pointer, oldLayout, newLayout Layout) (Span, error) {
	return a.resize(ptr, oldLayout, newLayout)
}

func (a *trackingAllocator) Shrink(ptr unsafe.Pointer, oldLayout, newLayout Layout) (Span, error) {
	return a.resize(ptr, oldLayout, newLayout)
}

func (a *trackingAllocator) resize(ptr unsafe.Pointer, oldLayout, newLayout Layout) (Span, error) {
	if !a.moveOnResize {
		// in-place: same address, same backing array, just a logical
		// resize (the test allocator never actually needs to relocate).
		return Span{Base: ptr, Len: newLayout.Size}, nil
	}
	newSpan, err := a.Allocate(newLayout)
	if err != nil {
		return Span{}, err
	}
	preserve := oldLayout.Size
	if newLayout.Size < preserve {
		preserve = newLayout.Size
	}
	copy(newSpan.Bytes()[:preserve], a.live[uintptr(ptr)][:preserve])
	delete(a.live, uintptr(ptr)) // moved; ZeroizeAlloc is responsible for scrubbing the old block
	return newSpan, nil
}

// TestZeroizeAllocScrubsOnDeallocate exercises scenario S2 and Testable
// Property 2: the inner allocator observes the released bytes as zero at
// the moment its own Deallocate runs.
func TestZeroizeAllocScrubsOnDeallocate(t *testing.T) {
	inner := newTrackingAllocator()
	z := NewZeroizeAlloc[*trackingAllocator](inner)

	layout := Layout{Size: 7, Align: 1}
	span, err := z.Allocate(layout)
	if err != nil {
		t.Fatal(err)
	}
	b := span.Bytes()
	for i := range b {
		b[i] = 0xFF
	}

	z.Deallocate(span.Base, layout)

	if len(inner.deallocSeen) != 1 {
		t.Fatalf("expected exactly one Deallocate observation, got %d", len(inner.deallocSeen))
	}
	for i, v := range inner.deallocSeen[0] {
		if v != 0 {
			t.Fatalf("byte %d observed as %#x at free time, want 0", i, v)
		}
	}
}

// TestZeroizeAllocScrubsMovedGrow checks that when the inner allocator
// relocates on Grow, the old block is fully scrubbed.
func TestZeroizeAllocScrubsMovedGrow(t *testing.T) {
	inner := newTrackingAllocator()
	inner.moveOnResize = true
	z := NewZeroizeAlloc[*trackingAllocator](inner)

	old := Layout{Size: 16, Align: 1}
	span, err := z.Allocate(old)
	if err != nil {
		t.Fatal(err)
	}
	oldPtr := span.Base
	oldBuf := inner.live[uintptr(oldPtr)] // keep a reference so the test can inspect it post-move
	b := span.Bytes()
	for i := range b {
		b[i] = 0xAA
	}

	grown := Layout{Size: 32, Align: 1}
	newSpan, err := z.Grow(span.Base, old, grown)
	if err != nil {
		t.Fatal(err)
	}
	if newSpan.Base == oldPtr {
		t.Fatal("expected the tracking allocator to relocate on grow")
	}
	for i, v := range oldBuf {
		if v != 0 {
			t.Fatalf("old block byte %d = %#x after moved grow, want 0", i, v)
		}
	}
}

// TestZeroizeAllocScrubsShrinkTail exercises scenario S3 and Testable
// Property 3: shrinking in place zeroizes exactly the released tail.
func TestZeroizeAllocScrubsShrinkTail(t *testing.T) {
	inner := newTrackingAllocator()
	z := NewZeroizeAlloc[*trackingAllocator](inner)

	old := Layout{Size: 48, Align: 1}
	span, err := z.Allocate(old)
	if err != nil {
		t.Fatal(err)
	}
	b := span.Bytes()
	for i := range b {
		b[i] = 0xAA
	}

	newLayout := Layout{Size: 16, Align: 1}
	shrunk, err := z.Shrink(span.Base, old, newLayout)
	if err != nil {
		t.Fatal(err)
	}
	if shrunk.Base != span.Base {
		t.Fatal("expected in-place shrink")
	}

	full := inner.live[uintptr(span.Base)]
	for i := 0; i < 16; i++ {
		if full[i] != 0xAA {
			t.Fatalf("preserved byte %d clobbered: %#x", i, full[i])
		}
	}
	for i := 16; i < 48; i++ {
		if full[i] != 0 {
			t.Fatalf("released tail byte %d = %#x, want 0", i, full[i])
		}
	}
}
