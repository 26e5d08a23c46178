package secmem

import "unsafe"

// ZeroizeAlloc wraps an inner Allocator A, scrubbing every block with
// ZeroizeMem before it is ever handed back to A — on deallocation, and on
// the old or released portion of a reallocation that moves or shrinks.
// ZeroizeAlloc owns no memory itself; it only adds a zeroing step around
// A's own ownership transfers (spec's C3).
//
// ZeroizeAlloc inherits the thread-safety of A: it touches only the bytes
// of the allocation currently being released, never another live
// allocation, so concurrent use is safe whenever concurrent use of A is.
type ZeroizeAlloc[A Allocator] struct {
	Inner A
}

// NewZeroizeAlloc wraps inner in a ZeroizeAlloc.
func NewZeroizeAlloc[A Allocator](inner A) *ZeroizeAlloc[A] {
	return &ZeroizeAlloc[A]{Inner: inner}
}

// Allocate delegates to the inner allocator unchanged; freshly allocated
// memory has nothing to scrub.
func (z *ZeroizeAlloc[A]) Allocate(layout Layout) (Span, error) {
	return z.Inner.Allocate(layout)
}

// Deallocate zeroizes the full layout.Size bytes at ptr before releasing
// them to the inner allocator, so no byte that was ever live through this
// allocator reaches A unscrubbed.
func (z *ZeroizeAlloc[A]) Deallocate(ptr unsafe.Pointer, layout Layout) {
	ZeroizeMem(Span{Base: ptr, Len: layout.Size})
	z.Inner.Deallocate(ptr, layout)
}

// Grow delegates to the inner allocator. If the inner allocator moves the
// allocation to satisfy the new size, the old block's full contents are
// copied forward by A before this wrapper gets a chance to see them, so
// the old block is scrubbed here exactly as Deallocate would. If A grew in
// place, the address is unchanged and there's nothing stale to scrub: the
// new suffix is uninitialized, unwritten memory, the caller's concern, not
// previously-live secret data.
func (z *ZeroizeAlloc[A]) Grow(ptr unsafe.Pointer, oldLayout, newLayout Layout) (Span, error) {
	span, err := z.Inner.Grow(ptr, oldLayout, newLayout)
	if err != nil {
		return Span{}, err
	}
	if span.Base != ptr {
		ZeroizeMem(Span{Base: ptr, Len: oldLayout.Size})
	}
	return span, nil
}

// Shrink delegates to the inner allocator. If the allocation moved, the
// old block is scrubbed in full, as in Grow. If it shrank in place, the
// released tail [newLayout.Size, oldLayout.Size) is scrubbed before
// returning, since those bytes may still hold secret data from the larger
// allocation even though they're no longer addressable through the
// returned Span.
func (z *ZeroizeAlloc[A]) Shrink(ptr unsafe.Pointer, oldLayout, newLayout Layout) (Span, error) {
	span, err := z.Inner.Shrink(ptr, oldLayout, newLayout)
	if err != nil {
		return Span{}, err
	}
	if span.Base != ptr {
		ZeroizeMem(Span{Base: ptr, Len: oldLayout.Size})
	} else if newLayout.Size < oldLayout.Size {
		ZeroizeMem(Span{Base: addPtr(ptr, newLayout.Size), Len: oldLayout.Size - newLayout.Size})
	}
	return span, nil
}
