// Copyright 2016 Commonwealth of Australia, Bureau of Meteorology.
// Licensed under the Apache License, Version 2.0.

package rapic

import "golang.org/x/sys/unix"

// invalidFD is the sentinel value of a SocketHandle which owns no descriptor.
const invalidFD = -1

// SocketHandle scopes ownership of a socket file descriptor. At any moment
// exactly one handle owns a descriptor; transferring ownership goes through
// Release. The zero value owns nothing.
type SocketHandle struct {
	fd int
}

// NewSocketHandle takes ownership of a raw file descriptor.
func NewSocketHandle(fd int) SocketHandle {
	return SocketHandle{fd: fd}
}

// FD returns the owned descriptor, or the invalid sentinel.
func (s *SocketHandle) FD() int {
	if s.fd == 0 {
		return invalidFD
	}
	return s.fd
}

// Valid reports whether the handle currently owns a descriptor.
func (s *SocketHandle) Valid() bool {
	return s.fd != 0 && s.fd != invalidFD
}

// Reset closes any owned descriptor and takes ownership of fd.
func (s *SocketHandle) Reset(fd int) {
	if s.Valid() {
		unix.Close(s.fd)
	}
	s.fd = fd
}

// Close releases the owned descriptor, if any.
func (s *SocketHandle) Close() {
	s.Reset(invalidFD)
}

// Release yields the raw descriptor without closing it, leaving the handle
// invalid.
func (s *SocketHandle) Release() int {
	fd := s.FD()
	s.fd = invalidFD
	return fd
}
