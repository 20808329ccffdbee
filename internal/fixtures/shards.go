package fixtures

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atlassian/statsrelay"
)

// CapturingShard is a local listener standing in for a downstream shard. For UDP every datagram is
// captured, for TCP the full content of every connection is captured once it is closed.
type CapturingShard struct {
	Shard statsrelay.Shard

	mu       sync.Mutex
	payloads []string
	arrived  chan struct{}
	closer   io.Closer
}

// NewCapturingShard starts a listener on loopback for protocol. It is closed when the test ends.
func NewCapturingShard(tb testing.TB, protocol statsrelay.Protocol, ringIndex int) *CapturingShard {
	host := "127.0.0.1"
	if protocol == statsrelay.UDP6 || protocol == statsrelay.TCP6 {
		host = "::1"
	}
	cs := &CapturingShard{arrived: make(chan struct{}, 1024)}
	var addr net.Addr
	if protocol.IsStream() {
		l, err := net.Listen(string(protocol), net.JoinHostPort(host, "0"))
		require.NoError(tb, err)
		cs.closer = l
		addr = l.Addr()
		go cs.acceptLoop(l)
	} else {
		c, err := net.ListenPacket(string(protocol), net.JoinHostPort(host, "0"))
		require.NoError(tb, err)
		cs.closer = c
		addr = c.LocalAddr()
		go cs.readLoop(c)
	}
	_, port, err := net.SplitHostPort(addr.String())
	require.NoError(tb, err)
	p, err := strconv.Atoi(port)
	require.NoError(tb, err)
	cs.Shard = statsrelay.Shard{Hostname: host, Port: p, Protocol: protocol, RingIndex: ringIndex}
	tb.Cleanup(func() {
		_ = cs.closer.Close()
	})
	return cs
}

func (cs *CapturingShard) record(payload string) {
	cs.mu.Lock()
	cs.payloads = append(cs.payloads, payload)
	cs.mu.Unlock()
	cs.arrived <- struct{}{}
}

func (cs *CapturingShard) readLoop(c net.PacketConn) {
	buf := make([]byte, 65535)
	for {
		n, _, err := c.ReadFrom(buf)
		if err != nil {
			return
		}
		cs.record(string(buf[:n]))
	}
}

func (cs *CapturingShard) acceptLoop(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			data, err := io.ReadAll(bufio.NewReader(conn))
			if err == nil {
				cs.record(string(data))
			}
		}()
	}
}

// Wait blocks until count payloads arrived in total, or fails the test after timeout.
func (cs *CapturingShard) Wait(tb testing.TB, count int, timeout time.Duration) []string {
	deadline := time.After(timeout)
	for {
		cs.mu.Lock()
		n := len(cs.payloads)
		cs.mu.Unlock()
		if n >= count {
			return cs.Payloads()
		}
		select {
		case <-cs.arrived:
		case <-deadline:
			require.FailNowf(tb, "timed out", "waiting for %d payloads, got %d", count, n)
		}
	}
}

// Payloads returns everything captured so far.
func (cs *CapturingShard) Payloads() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]string(nil), cs.payloads...)
}
