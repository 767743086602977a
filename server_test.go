// Copyright 2016 Commonwealth of Australia, Bureau of Meteorology.
// Licensed under the Apache License, Version 2.0.

package rapic

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
)

// listenAnyPort binds the server to a free high port, returning the port.
func listenAnyPort(t *testing.T, srv *Server, ipv6 bool) int {
	for port := 28515; port < 28615; port++ {
		if err := srv.Listen(fmt.Sprint(port), ipv6); err == nil {
			return port
		}
	}
	t.Fatal("no free port for listen test")
	return 0
}

func Test_Server_ListenRejectsBadService(t *testing.T) {
	var srv Server
	err := srv.Listen("no-such-service-xyz", false)
	assert.ErrorIs(t, err, ErrResolveFailed)
	assert.False(t, srv.PollRead())
}

func Test_Server_InitialState(t *testing.T) {
	var srv Server
	assert.Equal(t, -1, srv.PollableFD())
	assert.False(t, srv.PollRead())
	assert.False(t, srv.PollWrite())
}

func Test_Server_ListenAcceptRelease(t *testing.T) {
	defer leaktest.Check(t)()

	var srv Server
	port := listenAnyPort(t, &srv, false)
	defer srv.Release()

	assert.NotEqual(t, -1, srv.PollableFD())
	assert.True(t, srv.PollRead())
	assert.False(t, srv.PollWrite())

	// double listen is rejected
	assert.ErrorIs(t, srv.Listen("15555", false), ErrInvalidState)

	// nothing pending yet
	clients, err := srv.AcceptPendingConnections(DefaultMaxBufferSize, DefaultKeepalivePeriod)
	assert.NoError(t, err)
	assert.Empty(t, clients)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	assert.NoError(t, err)
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for len(clients) == 0 && time.Now().Before(deadline) {
		clients, err = srv.AcceptPendingConnections(DefaultMaxBufferSize, DefaultKeepalivePeriod)
		assert.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}
	assert.Len(t, clients, 1)

	cli := clients[0]
	defer cli.Disconnect()
	assert.True(t, cli.Connected())
	assert.Equal(t, "127.0.0.1", cli.Address())
	assert.NotEmpty(t, cli.Service())
	assert.True(t, cli.PollRead())
	assert.False(t, cli.PollWrite())

	// traffic written by the peer is framed by the accepted client
	_, err = conn.Write([]byte("RDRSTAT:\n"))
	assert.NoError(t, err)
	waitTraffic(t, cli, func() bool {
		mt, ok, err := cli.Dequeue()
		assert.NoError(t, err)
		return ok && mt == MessageStatus
	})

	srv.Release()
	assert.Equal(t, -1, srv.PollableFD())
	assert.False(t, srv.PollRead())
}

func Test_Server_DualStackAccept(t *testing.T) {
	defer leaktest.Check(t)()

	var srv Server
	port := 0
	for p := 28615; p < 28715; p++ {
		if err := srv.Listen(fmt.Sprint(p), true); err == nil {
			port = p
			break
		}
	}
	if port == 0 {
		t.Skip("ipv6 dual-stack listen unavailable")
	}
	defer srv.Release()

	// an ipv4 peer connects through the dual-stack socket
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	assert.NoError(t, err)
	defer conn.Close()

	var clients []*Client
	deadline := time.Now().Add(5 * time.Second)
	for len(clients) == 0 && time.Now().Before(deadline) {
		clients, err = srv.AcceptPendingConnections(DefaultMaxBufferSize, DefaultKeepalivePeriod)
		assert.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}
	assert.Len(t, clients, 1)
	clients[0].Disconnect()
}

func Test_Server_AcceptedClientsOwnTheirSockets(t *testing.T) {
	defer leaktest.Check(t)()

	var srv Server
	port := listenAnyPort(t, &srv, false)
	defer srv.Release()

	a, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	assert.NoError(t, err)
	defer a.Close()
	b, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	assert.NoError(t, err)
	defer b.Close()

	var clients []*Client
	deadline := time.Now().Add(5 * time.Second)
	for len(clients) < 2 && time.Now().Before(deadline) {
		more, err := srv.AcceptPendingConnections(DefaultMaxBufferSize, DefaultKeepalivePeriod)
		assert.NoError(t, err)
		clients = append(clients, more...)
		time.Sleep(10 * time.Millisecond)
	}
	assert.Len(t, clients, 2)

	// each client holds a distinct descriptor and survives its siblings
	assert.NotEqual(t, clients[0].PollableFD(), clients[1].PollableFD())
	clients[0].Disconnect()
	assert.False(t, clients[0].Connected())
	assert.True(t, clients[1].Connected())
	clients[1].Disconnect()
}
