// Copyright 2016 Commonwealth of Australia, Bureau of Meteorology.
// Licensed under the Apache License, Version 2.0.

package rapic

import (
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Server manages a rapic protocol listen socket. It only accepts
// connections; each accepted connection is handed off to a fresh Client
// which becomes its sole owner.
type Server struct {
	socket SocketHandle // listen socket handle
}

// Listen starts listening for new clients on the given service or port. With
// ipv6 true the listen socket is dual-stack IPv6; pass ipv6 false for a pure
// IPv4 socket.
func (s *Server) Listen(service string, ipv6 bool) error {
	if s.socket.Valid() {
		return errors.Wrap(ErrInvalidState, "rapic: attempt to listen while already listening")
	}

	// lookup the port for the desired service, or parse it directly
	port, err := net.LookupPort("tcp", service)
	if err != nil || port == 0 {
		if port, err = strconv.Atoi(service); err != nil || port == 0 {
			return errors.Wrapf(ErrResolveFailed, "rapic: unknown or invalid service or port '%s'", service)
		}
	}

	// create the listen socket
	family := unix.AF_INET
	if ipv6 {
		family = unix.AF_INET6
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return errors.Wrap(err, "rapic: socket creation failed")
	}
	sock := NewSocketHandle(fd)

	// allow immediate reuse of the server socket after failure
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		sock.Close()
		return errors.Wrap(err, "rapic: socket reuse mode set failed")
	}

	if ipv6 {
		// allow connections from ipv4 clients on the ipv6 socket
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0); err != nil {
			sock.Close()
			return errors.Wrap(err, "rapic: socket failed to disable ipv6 only")
		}
		if err := unix.Bind(fd, &unix.SockaddrInet6{Port: port}); err != nil {
			sock.Close()
			return errors.Wrap(err, "rapic: socket bind failed")
		}
	} else {
		if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
			sock.Close()
			return errors.Wrap(err, "rapic: socket bind failed")
		}
	}

	// mark as a passive socket
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		sock.Close()
		return errors.Wrap(err, "rapic: socket listen failed")
	}

	// set as a non-blocking socket
	if err := unix.SetNonblock(fd, true); err != nil {
		sock.Close()
		return errors.Wrap(err, "rapic: failed to set socket flags")
	}

	s.socket.Reset(sock.Release())
	return nil
}

// Release ceases listening for new clients and releases the service/port.
func (s *Server) Release() {
	s.socket.Close()
}

// numericNameInfo renders the peer address as numeric host and service
// strings, the values a client reports through Address and Service.
func numericNameInfo(sa unix.Sockaddr) (string, string) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port)
	case *unix.SockaddrInet6:
		return net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port)
	}
	return "", ""
}

// AcceptPendingConnections accepts all pending connections, returning a
// connection manager owning each. Each new client is created with the given
// read buffer cap and keepalive period, already in the connected state.
func (s *Server) AcceptPendingConnections(maxBufferSize int, keepalivePeriod time.Duration) ([]*Client, error) {
	var clients []*Client
	for {
		fd, sa, err := unix.Accept(s.socket.FD())
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return clients, nil
			}
			return clients, errors.Wrap(err, "rapic: failed to accept socket")
		}
		sock := NewSocketHandle(fd)

		host, serv := numericNameInfo(sa)

		// initialize a connection manager to own the connection
		cli := NewClient(maxBufferSize, keepalivePeriod)
		if err := cli.Accept(&sock, host, serv); err != nil {
			sock.Close()
			return clients, err
		}
		clients = append(clients, cli)
	}
}

// PollableFD returns the listen descriptor for use in a multiplexed polling
// function, or -1 while not listening.
func (s *Server) PollableFD() int {
	return s.socket.FD()
}

// PollRead reports whether the descriptor should be monitored for read
// availability; pending connections arrive as readability.
func (s *Server) PollRead() bool {
	return s.socket.Valid()
}

// PollWrite reports whether the descriptor should be monitored for write
// availability; a listen socket never is.
func (s *Server) PollWrite() bool {
	return false
}
