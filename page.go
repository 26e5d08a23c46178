package secmem

import (
	"sync"
	"unsafe"
)

type pageState uint8

const (
	pageReserved pageState = iota
	pageLocked
	pageReleased
)

// Page is one OS-provided region of PageSize() bytes, obtained from
// PageAlloc. Its zero value is not valid; Page values are only produced by
// PageAlloc.
type Page struct {
	base  unsafe.Pointer
	size  uintptr
	state pageState
}

// Base returns the page's starting address.
func (p *Page) Base() unsafe.Pointer { return p.base }

// Size returns the page's size in bytes, equal to PageSize() at the time
// it was allocated.
func (p *Page) Size() uintptr { return p.size }

// Span views the entire page as a Span.
func (p *Page) Span() Span { return Span{Base: p.base, Len: p.size} }

var (
	pageSizeOnce  sync.Once
	cachedPageSize uintptr
)

// PageSize returns the system page size, a power of two (typically 4096
// or 16384), cached after the first call.
func PageSize() uintptr {
	pageSizeOnce.Do(func() {
		cachedPageSize = osPageSize()
	})
	return cachedPageSize
}

// PageAlloc reserves and commits one page of RAM, zeroed by the OS. The
// returned Page is in the reserved state: address space is committed but
// not yet locked against swap.
func PageAlloc() (*Page, error) {
	return osPageAlloc()
}

// PageFree releases page back to the OS. It may be called on a page in
// any state; if the page is still locked, callers should call PageUnlock
// first (PageFree does not implicitly unlock).
func PageFree(page *Page) error {
	if page.state == pageReleased {
		return nil
	}
	err := osPageFree(page)
	page.state = pageReleased
	return err
}

// PageLock marks page resident, excluding it from swap, and best-effort
// advises the kernel to exclude it from core dumps / crash reports.
// Returns LockError if the process lacks privilege or a system resource
// limit (e.g. RLIMIT_MEMLOCK) is exceeded.
func PageLock(page *Page) error {
	if err := osPageLock(page); err != nil {
		return err
	}
	page.state = pageLocked
	osPageAdviseNoDump(page)
	return nil
}

// PageUnlock reverses PageLock.
func PageUnlock(page *Page) error {
	if page.state != pageLocked {
		return nil
	}
	err := osPageUnlock(page)
	page.state = pageReserved
	return err
}
