//go:build unix && !linux

package secmem

import "golang.org/x/sys/unix"

// madviseDontDumpFlag is MADV_NORMAL (a true no-op advice) on Unix
// variants that don't define a dump-exclusion advice in
// golang.org/x/sys/unix; mlock still provides the swap guarantee spec's §1
// cares about most, core-dump exclusion here is best-effort only.
const madviseDontDumpFlag = unix.MADV_NORMAL
