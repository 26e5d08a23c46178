package secmem

import "unsafe"

// Allocator is the uniform allocation contract every allocator in this
// package implements: a value or pointer receiver implementing Allocator
// can be used interchangeably by the decorators in this package (spec's
// C5 facade, §4.5's "shared-by-reference" requirement).
type Allocator interface {
	// Allocate reserves memory satisfying layout and returns a Span
	// describing it. A zero-Size layout succeeds without touching memory.
	Allocate(layout Layout) (Span, error)

	// Deallocate releases memory previously returned by Allocate, Grow or
	// Shrink on the same allocator. ptr and layout must match exactly what
	// was returned/requested; behavior is undefined otherwise.
	Deallocate(ptr unsafe.Pointer, layout Layout)

	// Grow reallocates ptr, sized oldLayout, to hold newLayout.Size bytes
	// (newLayout.Size >= oldLayout.Size), preserving the first
	// oldLayout.Size bytes of content. The returned Span may or may not
	// share an address with ptr.
	Grow(ptr unsafe.Pointer, oldLayout, newLayout Layout) (Span, error)

	// Shrink reallocates ptr, sized oldLayout, to hold newLayout.Size bytes
	// (newLayout.Size <= oldLayout.Size), preserving the first
	// newLayout.Size bytes of content. The returned Span may or may not
	// share an address with ptr.
	Shrink(ptr unsafe.Pointer, oldLayout, newLayout Layout) (Span, error)
}
