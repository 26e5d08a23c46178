//go:build windows

package secmem

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func osPageSize() uintptr {
	var si windows.SystemInfo
	windows.GetSystemInfo(&si)
	return uintptr(si.PageSize)
}

// osPageAlloc reserves and commits one page via VirtualAlloc.
//
// Regression guard (spec §4.2, §8 S6): the size argument passed to
// VirtualAlloc is always the requested byte length computed from
// PageSize(), never the page-size *constant* passed through unexamined
// and never zero — a prior defect in the 0.2.1 line passed the wrong
// region-size argument here.
func osPageAlloc() (*Page, error) {
	size := PageSize()
	if size == 0 {
		panic("secmem: requested zero-byte page allocation")
	}
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, &PageAllocError{Size: size, Err: err}
	}
	return &Page{base: unsafe.Pointer(addr), size: size, state: pageReserved}, nil
}

func osPageFree(page *Page) error {
	return windows.VirtualFree(uintptr(page.base), 0, windows.MEM_RELEASE)
}

// osPageLock locks page's working set via VirtualLock. Windows requires
// the process's minimum working-set size to be large enough to
// accommodate the locked pages; SetProcessWorkingSetSize is grown first,
// best-effort, so a single-page lock doesn't spuriously fail on a
// freshly-started process with a small default working set.
func osPageLock(page *Page) error {
	_ = growWorkingSet(page.size)
	if err := windows.VirtualLock(uintptr(page.base), page.size); err != nil {
		return &LockError{Size: page.size, Err: err}
	}
	return nil
}

func osPageUnlock(page *Page) error {
	return windows.VirtualUnlock(uintptr(page.base), page.size)
}

// osPageAdviseNoDump asks the OS to exclude page from minidumps. Windows
// has no page-granularity madvise equivalent reachable from user mode
// without registering a full exception-handler-based dump filter, so this
// is a documented no-op on this platform; the lock guarantee (exclusion
// from swap) is still fully provided.
func osPageAdviseNoDump(page *Page) {}

// growWorkingSet grows the process's minimum working-set size by extra
// bytes so a subsequent VirtualLock of that size has room to succeed.
func growWorkingSet(extra uintptr) error {
	var minSize, maxSize uintptr
	h := windows.CurrentProcess()
	if err := windows.GetProcessWorkingSetSize(h, &minSize, &maxSize); err != nil {
		return err
	}
	return windows.SetProcessWorkingSetSize(h, minSize+extra, maxSize+extra)
}

// rawMap reserves and commits size bytes via VirtualAlloc, for
// PageAllocator's (alloc_inner.go) variably-sized, unlocked regions.
func rawMap(size uintptr) (unsafe.Pointer, error) {
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, &PageAllocError{Size: size, Err: err}
	}
	return unsafe.Pointer(addr), nil
}

func rawUnmap(ptr unsafe.Pointer, _ uintptr) error {
	return windows.VirtualFree(uintptr(ptr), 0, windows.MEM_RELEASE)
}
