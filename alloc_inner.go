package secmem

import (
	"unsafe"

	"github.com/cznic/mathutil"
)

// innerAlign is the alignment every PageAllocator slot satisfies,
// mirroring cznic/memory's mallocAllign constant.
const innerAlign = 16

// innerHeader sits at the start of every region PageAllocator maps,
// exactly as cznic/memory's page struct does; it tracks which size class
// the region serves (log, 0 for a dedicated large allocation), how many
// of its slots are bump-allocated so far (brk) and how many are still
// live (used).
type innerHeader struct {
	brk  int
	log  uint
	size uintptr
	used int
}

var innerHeaderSize = alignUp(unsafe.Sizeof(innerHeader{}), innerAlign)

// innerNode overlays a free slot's memory, the same trick cznic/memory
// uses: a freed slot is never actually deallocated, its first machine
// words are reused to link it into the size class's free list until the
// whole region backing it is empty and gets unmapped.
type innerNode struct {
	prev, next *innerNode
}

var zeroSizeSentinel byte

// PageAllocator is a concrete, non-locking, size-classed Allocator
// descended from cznic/memory's page/slot bookkeeping (see DESIGN.md):
// small requests are bump-allocated out of shared mmap'd regions sized to
// PageSize() and recycled through per-class free lists once freed; large
// requests each get their own dedicated region. It never locks memory and
// provides no zeroization guarantee of its own — wrap it in
// ZeroizeAlloc for that. It is not safe for concurrent use; like
// SecStackSinglePageAlloc its whole state is a handful of plain fields a
// caller must serialize access to itself.
type PageAllocator struct {
	unit     uintptr // region-masking granularity; equals PageSize()
	unitMask uintptr
	classCap [64]int
	lists    [64]*innerNode
	pages    [64]*innerHeader
	regions  map[*innerHeader]uintptr
}

// NewPageAllocator returns a ready-to-use PageAllocator whose region
// granularity is the system page size.
func NewPageAllocator() *PageAllocator {
	u := PageSize()
	return &PageAllocator{unit: u, unitMask: u - 1, regions: map[*innerHeader]uintptr{}}
}

func (a *PageAllocator) maxSlotSize() uintptr {
	return (a.unit - innerHeaderSize) >> 1
}

func classLog(size uintptr) uint {
	return uint(mathutil.BitLen(int(alignUp(size, innerAlign)) - 1))
}

func (a *PageAllocator) mapRegion(size uintptr) (*innerHeader, error) {
	ptr, err := rawMap(size)
	if err != nil {
		return nil, err
	}
	hdr := (*innerHeader)(ptr)
	hdr.size = size
	a.regions[hdr] = size
	return hdr, nil
}

func (a *PageAllocator) unmapRegion(hdr *innerHeader) error {
	size := a.regions[hdr]
	delete(a.regions, hdr)
	return rawUnmap(unsafe.Pointer(hdr), size)
}

func (a *PageAllocator) newBigRegion(size uintptr) (*innerHeader, error) {
	hdr, err := a.mapRegion(size + innerHeaderSize)
	if err != nil {
		return nil, err
	}
	hdr.log = 0
	return hdr, nil
}

func (a *PageAllocator) newSharedRegion(log uint) (*innerHeader, error) {
	if a.classCap[log] == 0 {
		n := int((a.unit - innerHeaderSize) >> log)
		if n == 0 {
			n = 1
		}
		a.classCap[log] = n
	}
	hdr, err := a.mapRegion(innerHeaderSize + uintptr(a.classCap[log])<<log)
	if err != nil {
		return nil, err
	}
	a.pages[log] = hdr
	hdr.log = log
	return hdr, nil
}

// Allocate services size/align via a size-class bump region, a recycled
// free-list slot, or (when the request's power-of-two size class exceeds
// maxSlotSize) a dedicated region, in that preference order, exactly as
// cznic/memory's Malloc does.
func (a *PageAllocator) Allocate(layout Layout) (Span, error) {
	if !layout.valid() {
		panic("secmem: invalid layout")
	}
	if layout.Size == 0 {
		return Span{Base: unsafe.Pointer(&zeroSizeSentinel), Len: 0}, nil
	}
	if layout.Align > innerAlign {
		panic("secmem: PageAllocator only guarantees 16-byte alignment")
	}

	log := classLog(layout.Size)
	if uintptr(1)<<log > a.maxSlotSize() {
		hdr, err := a.newBigRegion(layout.Size)
		if err != nil {
			return Span{}, err
		}
		return Span{Base: addPtr(unsafe.Pointer(hdr), innerHeaderSize), Len: layout.Size}, nil
	}

	if a.lists[log] == nil && a.pages[log] == nil {
		if _, err := a.newSharedRegion(log); err != nil {
			return Span{}, err
		}
	}

	if hdr := a.pages[log]; hdr != nil {
		ptr := addPtr(unsafe.Pointer(hdr), innerHeaderSize+uintptr(hdr.brk)<<log)
		hdr.used++
		hdr.brk++
		if hdr.brk == a.classCap[log] {
			a.pages[log] = nil
		}
		return Span{Base: ptr, Len: layout.Size}, nil
	}

	n := a.lists[log]
	hdr := (*innerHeader)(unsafe.Pointer(uintptr(unsafe.Pointer(n)) &^ a.unitMask))
	a.lists[log] = n.next
	if n.next != nil {
		n.next.prev = nil
	}
	hdr.used++
	return Span{Base: unsafe.Pointer(n), Len: layout.Size}, nil
}

// Deallocate returns ptr's slot to its size class's free list, or, for a
// dedicated large region, unmaps it directly. When the last live slot of
// a shared region is freed, every slot is unlinked from the free list and
// the whole region is unmapped, matching cznic/memory's Free.
func (a *PageAllocator) Deallocate(ptr unsafe.Pointer, layout Layout) {
	if layout.Size == 0 {
		return
	}
	hdr := (*innerHeader)(unsafe.Pointer(uintptr(ptr) &^ a.unitMask))
	if hdr.log == 0 {
		_ = a.unmapRegion(hdr)
		return
	}

	log := hdr.log
	n := (*innerNode)(ptr)
	n.prev = nil
	n.next = a.lists[log]
	if n.next != nil {
		n.next.prev = n
	}
	a.lists[log] = n
	hdr.used--
	if hdr.used != 0 {
		return
	}

	for i := 0; i < hdr.brk; i++ {
		slot := (*innerNode)(addPtr(unsafe.Pointer(hdr), innerHeaderSize+uintptr(i)<<log))
		switch {
		case slot.prev == nil:
			a.lists[log] = slot.next
			if slot.next != nil {
				slot.next.prev = nil
			}
		case slot.next == nil:
			slot.prev.next = nil
		default:
			slot.prev.next = slot.next
			slot.next.prev = slot.prev
		}
	}
	if a.pages[log] == hdr {
		a.pages[log] = nil
	}
	_ = a.unmapRegion(hdr)
}

// Grow reallocates ptr to newLayout, which must be at least as large as
// oldLayout.
func (a *PageAllocator) Grow(ptr unsafe.Pointer, oldLayout, newLayout Layout) (Span, error) {
	return a.realloc(ptr, oldLayout, newLayout)
}

// Shrink reallocates ptr to newLayout, which must be no larger than
// oldLayout.
func (a *PageAllocator) Shrink(ptr unsafe.Pointer, oldLayout, newLayout Layout) (Span, error) {
	return a.realloc(ptr, oldLayout, newLayout)
}

// realloc is shared by Grow and Shrink: a class slot is already sized to
// its class's capacity rather than the caller's exact request, so most
// resizes that stay within the current class are serviced in place,
// exactly as cznic/memory's Realloc does for cap(b) >= size.
func (a *PageAllocator) realloc(ptr unsafe.Pointer, oldLayout, newLayout Layout) (Span, error) {
	if oldLayout.Size == 0 {
		return a.Allocate(newLayout)
	}
	if newLayout.Size == 0 {
		a.Deallocate(ptr, oldLayout)
		return Span{Base: unsafe.Pointer(&zeroSizeSentinel), Len: 0}, nil
	}

	hdr := (*innerHeader)(unsafe.Pointer(uintptr(ptr) &^ a.unitMask))
	var usable uintptr
	if hdr.log == 0 {
		usable = hdr.size - innerHeaderSize
	} else {
		usable = uintptr(1) << hdr.log
	}
	if newLayout.Size <= usable {
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
	copy(unsafe.Slice((*byte)(newSpan.Base), int(preserve)), unsafe.Slice((*byte)(ptr), int(preserve)))
	a.Deallocate(ptr, oldLayout)
	return newSpan, nil
}
