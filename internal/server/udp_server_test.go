package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoHandler struct{ prefix byte }

func (h echoHandler) Handle(_ context.Context, reqBytes []byte, _ string) []byte {
	out := make([]byte, len(reqBytes)+1)
	out[0] = h.prefix
	copy(out[1:], reqBytes)
	return out
}

func bindLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	return conn
}

func TestUDPServerEchoesThroughHandler(t *testing.T) {
	conn := bindLoopback(t)
	addr := conn.LocalAddr().(*net.UDPAddr)

	srv := &UDPServer{Handler: echoHandler{prefix: 0xAB}, NumWorkers: 2}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.RunOnConn(ctx, conn) }()

	client, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 64)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := client.Read(buf)
	require.NoError(t, err)

	assert.Equal(t, byte(0xAB), buf[0])
	assert.Equal(t, "hello", string(buf[1:n]))

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down after context cancellation")
	}
}

func TestUDPServerDroppedMetricInitiallyZero(t *testing.T) {
	srv := &UDPServer{Handler: echoHandler{}}
	assert.Equal(t, uint64(0), srv.Dropped())
}

func TestUDPServerNilHandlerDropsSilently(t *testing.T) {
	conn := bindLoopback(t)
	addr := conn.LocalAddr().(*net.UDPAddr)

	srv := &UDPServer{NumWorkers: 1}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.RunOnConn(ctx, conn) }()

	client, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("ping"))
	require.NoError(t, err)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	buf := make([]byte, 64)
	_, err = client.Read(buf)
	assert.Error(t, err, "expected a read timeout since a nil Handler sends nothing back")
}
