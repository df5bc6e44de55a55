package bootstrap

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenFirstAvailableSkipsBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	busyPort := busy.Addr().(*net.TCPAddr).Port

	ln, port, err := ListenFirstAvailable("127.0.0.1", []int{busyPort, 0})
	require.NoError(t, err)
	defer ln.Close()
	assert.NotEqual(t, busyPort, port)
}

func TestListenFirstAvailableFailsWhenNoneBindable(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	busyPort := busy.Addr().(*net.TCPAddr).Port

	_, _, err = ListenFirstAvailable("127.0.0.1", []int{busyPort})
	assert.Error(t, err)
}

func TestDialWithBackoffSucceedsAgainstListeningPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	cfg := ConnectConfig{
		ConnectTimeout:   50 * time.Millisecond,
		ConnectBackoff:   2.0,
		ConnectSleep:     10 * time.Millisecond,
		ConnectTimeLimit: time.Second,
	}
	conn, err := DialWithBackoff("127.0.0.1", []int{port}, cfg)
	require.NoError(t, err)
	conn.Close()
}

func TestDialWithBackoffTimesOutWhenNothingListens(t *testing.T) {
	// Bind and immediately close to obtain a port almost certainly
	// refused by anything else on the loopback address.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cfg := ConnectConfig{
		ConnectTimeout:   5 * time.Millisecond,
		ConnectBackoff:   2.0,
		ConnectSleep:     5 * time.Millisecond,
		ConnectTimeLimit: 40 * time.Millisecond,
	}
	_, err = DialWithBackoff("127.0.0.1", []int{port}, cfg)
	assert.Error(t, err)
}
