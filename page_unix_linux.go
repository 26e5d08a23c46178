//go:build linux

package secmem

import "golang.org/x/sys/unix"

// madviseDontDumpFlag excludes the page from core dumps on Linux, where
// MADV_DONTDUMP is defined.
const madviseDontDumpFlag = unix.MADV_DONTDUMP
