//go:build unix

package secmem

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

func osPageSize() uintptr {
	return uintptr(os.Getpagesize())
}

// osPageAlloc maps one anonymous, private, zero-initialized page via mmap,
// following the teacher's mmap_unix.go mmap0 shape (MAP_ANON, PROT_READ|
// PROT_WRITE) generalized to a single system page rather than an
// arbitrary size, since C4 only ever wants exactly one page.
func osPageAlloc() (*Page, error) {
	size := PageSize()
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, &PageAllocError{Size: size, Err: err}
	}
	return &Page{base: unsafe.Pointer(&b[0]), size: size, state: pageReserved}, nil
}

func osPageFree(page *Page) error {
	b := unsafe.Slice((*byte)(page.base), int(page.size))
	return unix.Munmap(b)
}

// osPageLock locks page into RAM via mlock, preventing it from being
// swapped out. Grounded on gocryptfs/internal/memprotect's use of mlock
// for the same purpose.
func osPageLock(page *Page) error {
	b := unsafe.Slice((*byte)(page.base), int(page.size))
	if err := unix.Mlock(b); err != nil {
		return &LockError{Size: page.size, Err: err}
	}
	return nil
}

func osPageUnlock(page *Page) error {
	b := unsafe.Slice((*byte)(page.base), int(page.size))
	return unix.Munlock(b)
}

// osPageAdviseNoDump advises the kernel to exclude page from core dumps
// via madvise(MADV_DONTDUMP), where the platform defines it (Linux).
// Best-effort: failures are ignored, per spec §7 ("none are logged or
// retried internally" for advisory calls whose absence doesn't compromise
// the lock guarantee, only the core-dump guarantee).
func osPageAdviseNoDump(page *Page) {
	b := unsafe.Slice((*byte)(page.base), int(page.size))
	_ = unix.Madvise(b, madviseDontDumpFlag)
}

// rawMap maps size bytes of anonymous, private, zero-initialized memory,
// rounded up to a whole number of pages by the kernel but not otherwise
// constrained to a single page. Used by PageAllocator (alloc_inner.go),
// which — unlike SecStackSinglePageAlloc — manages many variably-sized,
// unlocked regions, following the teacher's own mmap-per-region shape.
// MAP_PRIVATE, not MAP_SHARED: a shared anonymous mapping is the same
// physical page across fork(), so a child process could still read freed-
// but-not-yet-scrubbed or in-flight secret bytes routed through this path
// (ZeroizeAlloc wraps PageAllocator for exactly that reason).
func rawMap(size uintptr) (unsafe.Pointer, error) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, &PageAllocError{Size: size, Err: err}
	}
	return unsafe.Pointer(&b[0]), nil
}

func rawUnmap(ptr unsafe.Pointer, size uintptr) error {
	b := unsafe.Slice((*byte)(ptr), int(size))
	return unix.Munmap(b)
}
