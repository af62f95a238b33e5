// Package procname sets the OS-visible process name (the kernel's
// comm field) via PR_SET_NAME. The kernel keeps only the first 15
// bytes, so DaemonName appears as "grizzly-async-m"; the command line
// shown by ps is not changed. The package builds only on Linux.
package procname

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// DaemonName is the title every async-messaged process runs under.
const DaemonName = "grizzly-async-messaged"

// Set renames the calling process via PR_SET_NAME. Linux truncates the
// name to 15 bytes plus a NUL terminator; callers that need the full
// name should still rely on argv[0] or the structured logger's fields.
func Set(name string) error {
	buf := append([]byte(name), 0)
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&buf[0])), 0, 0, 0)
}
