//go:build windows

package localdht

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// controlBroadcastReuse enables SO_REUSEADDR and SO_BROADCAST on the
// beacon UDP socket (spec §4.3).
func controlBroadcastReuse(_, _ string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		h := windows.Handle(fd)
		if err := windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
			ctrlErr = err
			return
		}
		if err := windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_BROADCAST, 1); err != nil {
			ctrlErr = err
			return
		}
	})
	if err != nil {
		return err
	}
	return ctrlErr
}

// SIO_UDP_CONNRESET tells the socket to ignore the ICMP port-unreachable
// datagram that would otherwise surface as a spurious WSAECONNRESET on a
// subsequent read (spec §4.2: "On Windows, the UDP socket is configured
// to ignore ICMP port-unreachable side effects").
const sioUDPConnReset = windows.IOC_IN | windows.IOC_VENDOR | 12

func ignoreICMPUnreachable(c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		h := windows.Handle(fd)
		flag := uint32(0)
		var bytesReturned uint32
		ctrlErr = windows.WSAIoctl(h, sioUDPConnReset,
			(*byte)(unsafe.Pointer(&flag)), 4,
			nil, 0, &bytesReturned, nil, 0)
	})
	if err != nil {
		return err
	}
	return ctrlErr
}
