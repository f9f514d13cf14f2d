// Package transport provides the datagram sockets a switchio node sends and
// receives packets on.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
)

// maxDatagram bounds the receive buffer of each batch slot. Anything larger
// than a packet is still read whole so the decoder can reject it by length.
const maxDatagram = 65507

// DefaultBatch is the number of datagrams read per ReadBatch call.
const DefaultBatch = 32

var ErrClosed = errors.New("switchio transport: connection is closed")

// Options configure socket setup.
type Options struct {
	// Device binds the socket to a network interface (SO_BINDTODEVICE).
	// Empty means any interface.
	Device string
	// RecvBuffer sets SO_RCVBUF when positive.
	RecvBuffer int
	// Batch is the number of datagrams read per ReadBatch call.
	Batch int
}

// Datagram is one received datagram. Data aliases the Conn's internal buffer
// and is only valid until the next ReadBatch call.
type Datagram struct {
	Data []byte
	Addr net.Addr
}

// Conn is a UDPv4 socket with batched reads.
type Conn struct {
	conn *net.UDPConn
	pc   *ipv4.PacketConn
	msgs []ipv4.Message
	out  []Datagram

	mu     sync.Mutex
	closed bool
}

// Listen binds a UDPv4 socket to ip:port. Port 0 picks a free port; use
// Port to read it back.
func Listen(ctx context.Context, ip string, port int, opts Options) (*Conn, error) {
	addr := net.JoinHostPort(ip, strconv.Itoa(port))
	lc := net.ListenConfig{Control: control(opts)}
	pc, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("switchio transport: listen %s: %w", addr, err)
	}
	udp, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("switchio transport: listen %s: unexpected conn type %T", addr, pc)
	}
	if err := afterListen(udp, opts); err != nil {
		udp.Close()
		return nil, fmt.Errorf("switchio transport: listen %s: %w", addr, err)
	}

	batch := opts.Batch
	if batch <= 0 {
		batch = DefaultBatch
	}
	msgs := make([]ipv4.Message, batch)
	for i := range msgs {
		msgs[i].Buffers = [][]byte{make([]byte, maxDatagram)}
	}
	return &Conn{
		conn: udp,
		pc:   ipv4.NewPacketConn(udp),
		msgs: msgs,
		out:  make([]Datagram, 0, batch),
	}, nil
}

// ReadBatch blocks until at least one datagram arrives, ctx ends, or the
// connection is closed. It must not be called concurrently with itself.
func (c *Conn) ReadBatch(ctx context.Context) ([]Datagram, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
	} else if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, err
	}

	// An expired deadline unblocks the read when ctx is cancelled.
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.conn.SetReadDeadline(time.Now())
		case <-readDone:
		}
	}()

	n, err := c.pc.ReadBatch(c.msgs, 0)
	if err != nil {
		if c.isClosed() {
			return nil, ErrClosed
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	c.out = c.out[:0]
	for i := 0; i < n; i++ {
		m := &c.msgs[i]
		c.out = append(c.out, Datagram{Data: m.Buffers[0][:m.N], Addr: m.Addr})
	}
	return c.out, nil
}

// WriteTo sends b to addr. A ctx deadline becomes the write deadline.
func (c *Conn) WriteTo(ctx context.Context, b []byte, addr *net.UDPAddr) error {
	if c.isClosed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	_, err := c.conn.WriteToUDP(b, addr)
	return err
}

// LocalAddr returns the bound address.
func (c *Conn) LocalAddr() *net.UDPAddr {
	return c.conn.LocalAddr().(*net.UDPAddr)
}

// Port returns the bound port.
func (c *Conn) Port() int {
	return c.LocalAddr().Port
}

// Close closes the socket, unblocking any pending ReadBatch.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
