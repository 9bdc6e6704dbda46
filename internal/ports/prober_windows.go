//go:build windows

package ports

import (
	"errors"
	"syscall"
)

// Winsock reports an occupied port as WSAEADDRINUSE, a different errno than
// the POSIX EADDRINUSE constant.
func addrInUse(err error) bool {
	return errors.Is(err, syscall.WSAEADDRINUSE)
}
