package secmem

import "unsafe"

// frame is the bookkeeping header for one live sub-allocation: pad is the
// alignment padding inserted before it, size is the caller's requested
// layout size. Frames are recorded in allocation order and form the LIFO
// stack spec's §3/§4.4 describes; this slice is the allocator's only
// metadata, distinct from the page contents themselves.
type frame struct {
	offset uintptr // offset of the padding start, i.e. where pad begins
	pad    uintptr
	size   uintptr
}

// end returns the offset one past this frame's data, i.e. where the next
// frame (or the free region) begins.
func (f frame) end() uintptr { return f.offset + f.pad + f.size }

// SecStackSinglePageAlloc owns exactly one OS page, locked into RAM for
// its entire lifetime, and sub-allocates from it in LIFO (stack) order
// (spec's C4). It is not safe for concurrent mutation: allocate/deallocate
// on the same instance from multiple goroutines is a data race on the
// internal cursor, exactly as a bump allocator built around a single
// mutable integer would be in any language. Callers needing shared use
// must add their own mutual exclusion.
type SecStackSinglePageAlloc struct {
	page   *Page
	top    uintptr
	frames []frame
}

// New reserves one system page, locks it into RAM, and advises the kernel
// to exclude it from core dumps. On any failure the page (if reserved) is
// released before returning, so a failed construction never leaks a
// reserved-but-unlocked page (spec §5 resource policy).
func New() (*SecStackSinglePageAlloc, error) {
	page, err := PageAlloc()
	if err != nil {
		return nil, &InitError{Err: err}
	}
	// Best-effort no-dump advice applies from the reserve step onward, not
	// just once locked: PageLock re-applies it, but a crash between here
	// and a successful lock should still be excluded from a core dump.
	osPageAdviseNoDump(page)
	if err := PageLock(page); err != nil {
		_ = PageFree(page)
		return nil, &InitError{Err: err}
	}
	return &SecStackSinglePageAlloc{page: page}, nil
}

// capacity returns the page's size in bytes.
func (s *SecStackSinglePageAlloc) capacity() uintptr { return s.page.size }

// Allocate computes the next stack-aligned offset and, if it fits within
// the page, returns a Span at page_base + aligned_top and advances the
// cursor. A zero-Size layout returns a valid, aligned pointer without
// advancing the cursor or recording a frame, matching spec's "dangling-
// but-aligned address without touching memory."
func (s *SecStackSinglePageAlloc) Allocate(layout Layout) (Span, error) {
	if !layout.valid() {
		panic("secmem: invalid layout")
	}
	alignedTop := alignUp(s.top, layout.Align)
	if layout.Size == 0 {
		return Span{Base: addPtr(s.page.base, alignedTop), Len: 0}, nil
	}
	if alignedTop+layout.Size > s.capacity() {
		return Span{}, ErrOutOfMemory
	}

	pad := alignedTop - s.top
	s.frames = append(s.frames, frame{offset: s.top, pad: pad, size: layout.Size})
	s.top = alignedTop + layout.Size
	return Span{Base: addPtr(s.page.base, alignedTop), Len: layout.Size}, nil
}

// indexOf locates the live frame describing ptr, or -1 if none matches.
// ptr must be the base address this allocator previously returned from
// Allocate/Grow/Shrink for an outstanding sub-allocation.
func (s *SecStackSinglePageAlloc) indexOf(ptr unsafe.Pointer) int {
	off := uintptr(ptr) - uintptr(s.page.base)
	for i, f := range s.frames {
		if f.offset+f.pad == off {
			return i
		}
	}
	return -1
}

// Deallocate zeroizes exactly layout.Size bytes at ptr — never a rounded-
// up region, preserving strict provenance over exactly the bytes the
// caller has rights to (spec's 0.2.2 regression fix) — and then, if ptr is
// the topmost live frame, retracts the stack cursor past it and any
// frames directly beneath it that are already dead-but-held, reclaiming
// their space too. A release that isn't of the topmost frame is non-LIFO: the bytes
// are still scrubbed, but the cursor is left where it is, and the slot
// stays dead-but-held until the frames above it are released (spec's
// §4.4 "leaked-but-scrubbed" outcome).
func (s *SecStackSinglePageAlloc) Deallocate(ptr unsafe.Pointer, layout Layout) {
	if layout.Size == 0 {
		return
	}
	ZeroizeMem(Span{Base: ptr, Len: layout.Size})

	i := s.indexOf(ptr)
	if i < 0 {
		panic("secmem: deallocate of an address this allocator never returned")
	}
	s.frames[i].size = 0 // mark dead; pad/offset retained for accounting

	if i != len(s.frames)-1 {
		// not the topmost frame: scrubbed, but not space-reclaiming.
		return
	}

	// Topmost frame released: pop it and any dead frames now exposed
	// beneath it, reclaiming their padding along with their data. Padding
	// bytes are already zero (the whole page was zero at construction, and
	// any earlier frame that covered them was scrubbed on release), so
	// nothing further needs scrubbing.
	j := len(s.frames)
	for j > 0 && s.frames[j-1].size == 0 {
		j--
	}
	s.frames = s.frames[:j]
	if j == 0 {
		s.top = 0
	} else {
		s.top = s.frames[j-1].end()
	}
}

// Grow reallocates ptr, sized oldLayout, to newLayout. If ptr is the
// topmost live frame and there is room, it grows in place: the cursor
// simply advances, and no zeroization is needed since the newly exposed
// suffix lies above the cursor, where every byte is either untouched
// OS-zeroed page content or was scrubbed when its earlier frame was
// released. Otherwise a
// new frame is allocated, the old contents copied forward, and the old
// frame released via Deallocate (which scrubs it).
func (s *SecStackSinglePageAlloc) Grow(ptr unsafe.Pointer, oldLayout, newLayout Layout) (Span, error) {
	if i := s.indexOf(ptr); i == len(s.frames)-1 && i >= 0 {
		f := s.frames[i]
		newTop := f.offset + f.pad + newLayout.Size
		if newTop <= s.capacity() {
			s.frames[i].size = newLayout.Size
			s.top = newTop
			return Span{Base: ptr, Len: newLayout.Size}, nil
		}
	}
	return s.moveRealloc(ptr, oldLayout, newLayout)
}

// Shrink reallocates ptr, sized oldLayout, down to newLayout. In-place
// shrink is always possible regardless of stack position (the block
// itself just gets smaller and keeps its address), but only reclaims
// space back into the cursor when ptr is the topmost frame; either way the
// released tail is zeroized before returning, since it may hold secret
// bytes from the larger allocation.
func (s *SecStackSinglePageAlloc) Shrink(ptr unsafe.Pointer, oldLayout, newLayout Layout) (Span, error) {
	i := s.indexOf(ptr)
	if i < 0 {
		panic("secmem: shrink of an address this allocator never returned")
	}

	tailLen := oldLayout.Size - newLayout.Size
	if tailLen > 0 {
		ZeroizeMem(Span{Base: addPtr(ptr, newLayout.Size), Len: tailLen})
	}
	s.frames[i].size = newLayout.Size
	if i == len(s.frames)-1 {
		s.top = s.frames[i].end()
	}
	return Span{Base: ptr, Len: newLayout.Size}, nil
}

// moveRealloc implements the "move" branch shared by Grow and Shrink when
// in-place growth isn't possible: allocate a new frame, copy forward the
// preserved bytes, and release the old frame (which scrubs it via
// Deallocate).
func (s *SecStackSinglePageAlloc) moveRealloc(ptr unsafe.Pointer, oldLayout, newLayout Layout) (Span, error) {
	newSpan, err := s.Allocate(newLayout)
	if err != nil {
		return Span{}, err
	}
	preserve := oldLayout.Size
	if newLayout.Size < preserve {
		preserve = newLayout.Size
	}
	if preserve > 0 {
		copy(unsafe.Slice((*byte)(newSpan.Base), int(preserve)), unsafe.Slice((*byte)(ptr), int(preserve)))
	}
	s.Deallocate(ptr, oldLayout)
	return newSpan, nil
}

// Close zeroizes the entire page, unlocks it, and releases it back to the
// OS. It is idempotent: calling Close more than once is safe and a no-op
// after the first call, since SecStackSinglePageAlloc is move-only by Go
// convention (callers should not copy a *SecStackSinglePageAlloc to a new
// owner and call Close on both).
func (s *SecStackSinglePageAlloc) Close() error {
	if s.page == nil {
		return nil
	}
	ZeroizeMem(s.page.Span())
	unlockErr := PageUnlock(s.page)
	freeErr := PageFree(s.page)
	s.page = nil
	s.frames = nil
	s.top = 0
	if freeErr != nil {
		return freeErr
	}
	return unlockErr
}
