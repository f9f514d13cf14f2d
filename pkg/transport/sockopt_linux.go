package transport

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

func control(opts Options) func(network, address string, c syscall.RawConn) error {
	if opts.Device == "" && opts.RecvBuffer <= 0 {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		var serr error
		err := c.Control(func(fd uintptr) {
			if opts.Device != "" {
				if serr = unix.SetsockoptString(int(fd), unix.SOL_SOCKET, unix.SO_BINDTODEVICE, opts.Device); serr != nil {
					serr = fmt.Errorf("bind to device %s: %w", opts.Device, serr)
					return
				}
			}
			if opts.RecvBuffer > 0 {
				if serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, opts.RecvBuffer); serr != nil {
					serr = fmt.Errorf("set receive buffer: %w", serr)
				}
			}
		})
		if err != nil {
			return err
		}
		return serr
	}
}

// afterListen has nothing left to do: control already applied every option.
func afterListen(*net.UDPConn, Options) error {
	return nil
}
