//go:build !linux

package transport

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

func control(opts Options) func(network, address string, c syscall.RawConn) error {
	if opts.Device == "" {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		return errors.New("binding to a device is only supported on linux")
	}
}

// afterListen sets the receive buffer through the portable net API.
func afterListen(conn *net.UDPConn, opts Options) error {
	if opts.RecvBuffer <= 0 {
		return nil
	}
	if err := conn.SetReadBuffer(opts.RecvBuffer); err != nil {
		return fmt.Errorf("set receive buffer: %w", err)
	}
	return nil
}
