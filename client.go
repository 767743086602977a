// Copyright 2016 Commonwealth of Australia, Bureau of Meteorology.
// Licensed under the Apache License, Version 2.0.

package rapic

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Client manages one rapic protocol connection.
//
// The class is implemented with the expectation that it may be used in an
// environment where asynchronous I/O is desired, so checking data
// availability, processing traffic and dequeuing messages are separate
// calls. For synchronous use the calls are simply chained; see the package
// documentation for the canonical loop.
type Client struct {
	address         string        // remote hostname or address
	service         string        // remote service or port number
	keepalivePeriod time.Duration // time between sending keepalives
	filters         []string      // filter strings queued for connect
	socket          SocketHandle  // socket handle
	establishWait   bool          // waiting for socket connection to be established?
	lastKeepalive   time.Time     // time of last keepalive send

	rbuf *Buffer // read buffer

	curType MessageType // type of currently dequeued message (awaiting decode)
	curSize int         // size of currently dequeued message
}

// NewClient constructs a disconnected connection manager whose read buffer
// may grow up to maxBufferSize.
func NewClient(maxBufferSize int, keepalivePeriod time.Duration) *Client {
	return &Client{
		keepalivePeriod: keepalivePeriod,
		rbuf:            NewBuffer(DefaultBufferSize, maxBufferSize),
		curType:         noMessage,
	}
}

// AddFilter queues a product filter subscription. Filters only take effect
// at the next call to Connect, and may only be added while disconnected.
// Passing station -1 matches all stations; an empty moments list requests
// all available moments.
func (c *Client) AddFilter(station int, product string, moments ...string) error {
	if c.socket.Valid() {
		return errors.Wrap(ErrInvalidState, "rapic: add_filter called while connected")
	}

	// RPFILTER
	// :station number (-1 = all)
	// :product type (ANY, PPI, RHI, COMPPPI, IMAGE, VOLUME, RHI_SET, MERGE, SCAN_ERROR)
	// :video format (-1 = whatever is available)
	// :data source (unused, always -1)
	// :moments to retrieve (omitted for all available)
	var sb strings.Builder
	fmt.Fprintf(&sb, "RPFILTER:%d:%s:-1:-1", station, product)
	for i, m := range moments {
		if i == 0 {
			sb.WriteByte(':')
		} else {
			sb.WriteByte(',')
		}
		sb.WriteString(m)
	}
	sb.WriteByte('\n')
	c.filters = append(c.filters, sb.String())
	return nil
}

// Accept takes ownership of a connection accepted by a Server. The socket is
// switched to non-blocking mode regardless of how it was created.
func (c *Client) Accept(sock *SocketHandle, address, service string) error {
	if c.socket.Valid() {
		return errors.Wrap(ErrInvalidState, "rapic: accept called while already connected")
	}

	if err := unix.SetNonblock(sock.FD(), true); err != nil {
		return errors.Wrap(err, "rapic: failed to set socket flags")
	}

	// everything succeeded - commit the changes and take ownership
	c.address = address
	c.service = service
	c.socket.Reset(sock.Release())
	c.establishWait = false
	c.lastKeepalive = time.Time{}
	c.rbuf.Clear()
	c.curType = noMessage
	c.curSize = 0
	return nil
}

// Connect starts establishing a connection to a remote server. Resolution of
// the address and service is synchronous; the connect itself does not block:
// connection establishment continues during ProcessTraffic calls until the
// socket reports an outcome.
func (c *Client) Connect(address, service string) error {
	if c.socket.Valid() {
		return errors.Wrap(ErrInvalidState, "rapic: connect called while already connected")
	}

	// resolve the remote host and service
	ips, err := net.LookupIP(address)
	if err != nil || len(ips) == 0 {
		return errors.Wrap(ErrResolveFailed, address)
	}
	port, err := net.LookupPort("tcp", service)
	if err != nil {
		return errors.Wrap(ErrResolveFailed, service)
	}

	// use the first resolved address. this may be insufficient for
	// multi-homed servers; trying each address in turn is a possible future
	// enhancement.
	var family int
	var sa unix.Sockaddr
	if ip4 := ips[0].To4(); ip4 != nil {
		family = unix.AF_INET
		s4 := &unix.SockaddrInet4{Port: port}
		copy(s4.Addr[:], ip4)
		sa = s4
	} else {
		family = unix.AF_INET6
		s6 := &unix.SockaddrInet6{Port: port}
		copy(s6.Addr[:], ips[0].To16())
		sa = s6
	}

	// create the non-blocking socket
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return errors.Wrap(err, "rapic: socket creation failed")
	}
	sock := NewSocketHandle(fd)

	// connect to the remote host. even an immediate success passes through
	// the establishing state so the greeting and filters are sent by the
	// next ProcessTraffic call.
	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		sock.Close()
		return errors.Wrap(err, "rapic: failed to establish connection")
	}

	// everything succeeded - commit the changes and take ownership
	c.address = address
	c.service = service
	c.socket.Reset(sock.Release())
	c.establishWait = true
	c.lastKeepalive = time.Time{}
	c.rbuf.Clear()
	c.curType = noMessage
	c.curSize = 0
	return nil
}

// Disconnect closes the connection immediately. Queued filters survive for
// the next Connect; buffered bytes and any framed message do not.
func (c *Client) Disconnect() {
	c.socket.Close()
	c.establishWait = false
	c.curType = noMessage
	c.curSize = 0
}

// Connected reports whether a connection is currently active.
func (c *Client) Connected() bool {
	return c.socket.Valid()
}

// Address returns the hostname or address of the remote server.
func (c *Client) Address() string { return c.address }

// Service returns the service or port name for the connection.
func (c *Client) Service() string { return c.service }

// PollableFD returns the socket descriptor for use in a multiplexed polling
// function, or -1 while disconnected.
func (c *Client) PollableFD() int {
	return c.socket.FD()
}

// PollRead reports whether the descriptor should be monitored for read
// availability.
func (c *Client) PollRead() bool {
	return c.socket.Valid() && !c.establishWait
}

// PollWrite reports whether the descriptor should be monitored for write
// availability.
func (c *Client) PollWrite() bool {
	return c.socket.Valid() && c.establishWait
}

// Poll blocks until traffic arrives for processing or the timeout elapses.
func (c *Client) Poll(timeout time.Duration) error {
	if !c.socket.Valid() {
		return errors.Wrap(ErrInvalidState, "rapic: attempt to poll while disconnected")
	}

	var events int16 = unix.POLLRDHUP
	if c.PollRead() {
		events |= unix.POLLIN
	}
	if c.PollWrite() {
		events |= unix.POLLOUT
	}
	fds := []unix.PollFd{{Fd: int32(c.socket.FD()), Events: events}}
	for {
		_, err := unix.Poll(fds, int(timeout/time.Millisecond))
		if err != unix.EINTR {
			return nil
		}
	}
}

// send writes a small control message synchronously, retrying on EINTR.
//
// The only things ever sent are the initial connection message, the filters
// and the occasional keepalive, so the writes are not buffered. If these
// tiny writes could ever fill the socket buffer a write queue would be
// needed here, as for reads.
func (c *Client) send(data string) error {
	for {
		if _, err := unix.Write(c.socket.FD(), []byte(data)); err != nil {
			if err == unix.EINTR {
				continue
			}
			return errors.Wrap(err, "rapic: failed to write to socket")
		}
		return nil
	}
}

// ProcessTraffic advances connection establishment, emits due keepalives and
// reads available data into the buffer, possibly making new messages
// available for Dequeue.
//
// A false return means no more data is currently available on the socket,
// which can be used in an asynchronous environment when deciding whether to
// keep processing this connection or enter a multiplexed wait.
func (c *Client) ProcessTraffic() (bool, error) {
	// sanity check
	if !c.socket.Valid() {
		return false, nil
	}

	now := time.Now()

	// check our connection attempt progress
	if c.establishWait {
		res, err := unix.GetsockoptInt(c.socket.FD(), unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			c.Disconnect()
			return false, errors.Wrap(err, "rapic: getsockopt failure")
		}

		// not connected yet?
		if unix.Errno(res) == unix.EINPROGRESS {
			return false, nil
		}

		// okay, connection attempt is complete. did it succeed?
		if res != 0 {
			c.Disconnect()
			return false, errors.Wrap(unix.Errno(res), "rapic: failed to establish connection (async)")
		}

		c.establishWait = false

		// activate the semi-permanent connection, then each of our filters
		if err := c.send(msgConnect); err != nil {
			return false, err
		}
		for _, filter := range c.filters {
			if err := c.send(filter); err != nil {
				return false, err
			}
		}
	}

	// do we need to send a keepalive? (ie: RDRSTAT)
	if now.Sub(c.lastKeepalive) > c.keepalivePeriod {
		if err := c.send(msgKeepalive); err != nil {
			return false, err
		}
		c.lastKeepalive = now
	}

	// read once from the socket, retrying only when interrupted by a signal
	for {
		/* request a minimum of 256 bytes of buffer space to read into. in
		 * practice we will normally be returned far more than this. if the
		 * buffer cannot grow any further, let the caller drain messages. */
		wa, err := c.rbuf.WriteAcquire(256)
		if err != nil {
			return true, nil
		}

		// read some data off the wire
		n, err := unix.Read(c.socket.FD(), wa)
		switch {
		case n > 0:
			if err := c.rbuf.WriteAdvance(n); err != nil {
				return false, err
			}
			// if we read as much as we asked for there may be more waiting
			return n == len(wa), nil

		case n == 0 && err == nil:
			// connection has been closed
			c.Disconnect()
			return false, nil

		default:
			// if we've run out of data to read stop trying
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return false, nil
			}

			// if we were interrupted by a signal handler just try again
			if err == unix.EINTR {
				continue
			}

			// a real receive error - kill the connection
			c.Disconnect()
			return false, errors.Wrap(err, "rapic: recv failure")
		}
	}
}

// Enqueue encodes a message and sends it to the remote server.
func (c *Client) Enqueue(msg Message) error {
	if !c.socket.Valid() || c.establishWait {
		return errors.Wrap(ErrInvalidState, "rapic: enqueue while not established")
	}
	out := NewBuffer(DefaultBufferSize, DefaultMaxBufferSize)
	if err := msg.Encode(out); err != nil {
		return err
	}
	return c.send(string(out.ReadAcquire()))
}

// Dequeue advances past any previously framed message and reports whether a
// complete message is available, and its type. Each call advances the stream
// whether or not Decode was called for the previous message, so messages of
// no interest need not be decoded.
func (c *Client) Dequeue() (MessageType, bool, error) {
	// move along to the next message in the buffer if needed
	if c.curType != noMessage {
		if err := c.rbuf.ReadAdvance(c.curSize); err != nil {
			return noMessage, false, err
		}
		c.curType = noMessage
		c.curSize = 0
	}

	// detect the next message in the stream
	mt, size, ok, err := c.rbuf.ReadDetect()
	if err != nil || !ok {
		return noMessage, false, err
	}
	c.curType = mt
	c.curSize = size
	return mt, true, nil
}

// Decode decodes the currently dequeued message into msg, whose type must
// match the type returned by the most recent Dequeue. The buffer advances
// past the message even when decoding fails, so one malformed message cannot
// stall the stream.
func (c *Client) Decode(msg Message) error {
	if c.curType == noMessage {
		return errors.Wrap(ErrInvalidState, "rapic: no message dequeued for decoding")
	}
	if c.curType != msg.Type() {
		return errors.Wrap(ErrInvalidState, "rapic: incorrect type passed for decoding")
	}

	err := msg.Decode(c.rbuf)

	if aerr := c.rbuf.ReadAdvance(c.curSize); err == nil {
		err = aerr
	}
	c.curType = noMessage
	c.curSize = 0
	return err
}
