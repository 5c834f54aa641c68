//go:build !windows

package localdht

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlBroadcastReuse enables SO_REUSEADDR and SO_BROADCAST on the
// beacon UDP socket, matching spec §4.3's "broadcast and address-reuse
// enabled".
func controlBroadcastReuse(_, _ string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			ctrlErr = err
			return
		}
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
			ctrlErr = err
			return
		}
	})
	if err != nil {
		return err
	}
	return ctrlErr
}

// ignoreICMPUnreachable is a no-op outside Windows: spec §4.2 only calls
// for ignoring ICMP port-unreachable resets on Windows, where an
// unacknowledged UDP send otherwise surfaces as a spurious read error.
func ignoreICMPUnreachable(_ syscall.RawConn) error {
	return nil
}
