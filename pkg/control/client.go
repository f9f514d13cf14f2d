package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// defaultCallTimeout bounds a single control call when the caller's context
// has no earlier deadline.
const defaultCallTimeout = 10 * time.Second

// ClientOption configures a Client during construction.
type ClientOption func(*Client)

// WithCallTimeout sets the per-call timeout. Zero disables it.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.callTimeout = d
	}
}

// WithDialOptions appends raw gRPC dial options, for example a context
// dialer in tests.
func WithDialOptions(opts ...grpc.DialOption) ClientOption {
	return func(c *Client) {
		c.dialOpts = append(c.dialOpts, opts...)
	}
}

// Client calls the control-plane service of one remote node. It never
// retries; transport errors are returned to the caller.
type Client struct {
	conn        *grpc.ClientConn
	target      string
	callTimeout time.Duration
	dialOpts    []grpc.DialOption

	mu     sync.Mutex
	closed bool
}

// Dial creates a Client for the service at addr. The connection is
// established lazily on the first call.
func Dial(addr string, opts ...ClientOption) (*Client, error) {
	c := &Client{target: addr, callTimeout: defaultCallTimeout}
	for _, opt := range opts {
		opt(c)
	}
	dopts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.ForceCodec(codec{}),
			grpc.MaxCallRecvMsgSize(MaxMessageBytes),
			grpc.MaxCallSendMsgSize(MaxMessageBytes),
		),
	}, c.dialOpts...)
	conn, err := grpc.NewClient(addr, dopts...)
	if err != nil {
		return nil, fmt.Errorf("switchio control: dial %s: %w", addr, err)
	}
	c.conn = conn
	return c, nil
}

// Target returns the address the client was dialled with.
func (c *Client) Target() string {
	return c.target
}

// ReadMissingSlice asks the remote node which segments of a job it lacks.
func (c *Client) ReadMissingSlice(ctx context.Context, req *MissingSliceRequest) (*MissingSliceResponse, error) {
	resp := new(MissingSliceResponse)
	if err := c.invoke(ctx, methodReadMissingSlice, req, resp); err != nil {
		return nil, fmt.Errorf("switchio control: read missing slice: %w", err)
	}
	return resp, nil
}

// Retransmission pushes segment payloads to the remote node.
func (c *Client) Retransmission(ctx context.Context, req *RetransmissionRequest) (*RetransmissionAck, error) {
	resp := new(RetransmissionAck)
	if err := c.invoke(ctx, methodRetransmission, req, resp); err != nil {
		return nil, fmt.Errorf("switchio control: retransmission: %w", err)
	}
	return resp, nil
}

func (c *Client) invoke(ctx context.Context, method string, req, resp Message) error {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}
	return c.conn.Invoke(ctx, method, req, resp)
}

// Close tears down the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
