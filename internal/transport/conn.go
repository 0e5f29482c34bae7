// Package transport opens RESP connections to replication-group nodes and
// asks them about their replication state.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dreamware/replwatch/internal/cluster"
	"github.com/dreamware/replwatch/internal/resp"
)

// ErrClosed is returned when using a closed connection or pool.
var ErrClosed = errors.New("transport: closed")

// ServerError is an error reply sent by the node itself.
type ServerError struct {
	Msg string
}

func (e *ServerError) Error() string {
	return e.Msg
}

// Options controls how connections are opened.
type Options struct {
	Password       string
	ConnectTimeout time.Duration
	Timeout        time.Duration
	Database       int
}

// DefaultOptions returns the timeouts used when none are configured.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout: 10 * time.Second,
		Timeout:        3 * time.Second,
	}
}

// Conn is a single connection to one node. Commands are serialized.
type Conn struct {
	nc      net.Conn
	rd      *bufio.Reader
	addr    cluster.NodeAddress
	timeout time.Duration
	mu      sync.Mutex
	closed  bool
}

// Dial connects to addr, authenticating and selecting the database when
// the options ask for it.
func Dial(ctx context.Context, addr cluster.NodeAddress, opts Options) (*Conn, error) {
	d := net.Dialer{Timeout: opts.ConnectTimeout}
	nc, err := d.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultOptions().Timeout
	}
	c := &Conn{
		nc:      nc,
		rd:      bufio.NewReader(nc),
		addr:    addr,
		timeout: timeout,
	}

	if opts.Password != "" {
		if _, err := c.Do(ctx, "AUTH", opts.Password); err != nil {
			c.Close()
			return nil, fmt.Errorf("auth on %s: %w", addr, err)
		}
	}
	if opts.Database != 0 {
		if _, err := c.Do(ctx, "SELECT", strconv.Itoa(opts.Database)); err != nil {
			c.Close()
			return nil, fmt.Errorf("select db %d on %s: %w", opts.Database, addr, err)
		}
	}
	return c, nil
}

// PeerAddress returns the node address this connection was opened for.
func (c *Conn) PeerAddress() cluster.NodeAddress {
	return c.addr
}

// Do sends one command and reads its reply. A RESP error reply is returned
// as *ServerError and leaves the connection usable; an I/O failure closes it.
func (c *Conn) Do(ctx context.Context, args ...string) (resp.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return resp.Value{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return resp.Value{}, c.ioError(ctx, err)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.nc.SetDeadline(deadline); err != nil {
		c.closeLocked()
		return resp.Value{}, err
	}
	// Unblock the read as soon as the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		c.nc.SetDeadline(time.Now())
	})
	defer stop()

	if err := resp.Write(c.nc, resp.Command(args...)); err != nil {
		c.closeLocked()
		return resp.Value{}, c.ioError(ctx, err)
	}
	v, err := resp.Read(c.rd)
	if err != nil {
		c.closeLocked()
		return resp.Value{}, c.ioError(ctx, err)
	}
	if v.IsError() {
		return v, &ServerError{Msg: v.Str}
	}
	return v, nil
}

func (c *Conn) ioError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", c.addr, ctxErr)
	}
	return fmt.Errorf("%s: %w", c.addr, err)
}

// Ping checks the node answers at all.
func (c *Conn) Ping(ctx context.Context) error {
	_, err := c.Do(ctx, "PING")
	return err
}

// Info runs INFO for one section and returns its key/value pairs.
func (c *Conn) Info(ctx context.Context, section string) (map[string]string, error) {
	v, err := c.Do(ctx, "INFO", section)
	if err != nil {
		return nil, err
	}
	text, err := v.Text()
	if err != nil {
		return nil, fmt.Errorf("info %s from %s: %w", section, c.addr, err)
	}
	return ParseInfo(text), nil
}

// ReplicationInfo returns the "replication" INFO section, which carries the
// node's self-reported role.
func (c *Conn) ReplicationInfo(ctx context.Context) (map[string]string, error) {
	return c.Info(ctx, "replication")
}

// Closed reports whether the connection can no longer be used.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close closes the connection. Closing twice is harmless.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Conn) closeLocked() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.nc.Close()
}

// ParseInfo splits an INFO payload into key/value pairs, skipping section
// headers and blank lines.
func ParseInfo(text string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out[key] = value
	}
	return out
}
