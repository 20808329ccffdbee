package relay

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ash2k/stager/wait"
	"github.com/cenkalti/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/statsrelay/internal/fixtures"
	"github.com/atlassian/statsrelay/internal/util"
	"github.com/atlassian/statsrelay/pkg/fakesocket"
)

func TestDatagramReceiverSplitsLines(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := &capturingLineHandler{}
	dr := NewDatagramReceiver(fixtures.NewTestLogger(t), handler)
	conn := fakesocket.NewFakePacketConn("a:1|c\nb:2|g\n\nc:3|ms", "d:4|s\n")

	var wg wait.Group
	wg.Start(func() {
		assert.NoError(t, dr.Receive(ctx, conn))
	})
	require.Eventually(t, func() bool { return conn.Remaining() == 0 && len(handler.Lines()) == 4 }, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, conn.Close())
	wg.Wait()

	assert.Equal(t, []string{"a:1|c", "b:2|g", "c:3|ms", "d:4|s"}, handler.Lines())
	assert.EqualValues(t, 2, dr.packetsReceived)
}

func TestDatagramReceiverReportsClosedSocket(t *testing.T) {
	t.Parallel()
	dr := NewDatagramReceiver(fixtures.NewTestLogger(t), &capturingLineHandler{})
	conn := fakesocket.NewFakePacketConn()
	require.NoError(t, conn.Close())

	err := dr.Receive(context.Background(), conn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), fakesocket.ErrClosedConnection.Error())
}

func TestDatagramReceiverUDP(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	handler := &capturingLineHandler{}
	dr := NewDatagramReceiver(fixtures.NewTestLogger(t), handler)

	var wg wait.Group
	defer wg.Wait()
	wg.Start(func() {
		assert.NoError(t, dr.Receive(ctx, conn))
	})
	defer conn.Close()
	defer cancel()

	client, err := net.Dial("udp4", conn.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()
	_, err = client.Write([]byte("gorets:1|c\nglork:320|ms\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(handler.Lines()) == 2 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, []string{"gorets:1|c", "glork:320|ms"}, handler.Lines())
}

func TestStreamReceiver(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	handler := &capturingLineHandler{}
	sr := NewStreamReceiver(fixtures.NewTestLogger(t), handler, util.NewBackoffFactory(backoff.DefaultMultiplier, time.Millisecond, 10*time.Millisecond), DefaultMaxLineLength)

	var wg wait.Group
	defer wg.Wait()
	wg.Start(func() {
		assert.NoError(t, sr.Receive(ctx, l))
	})
	defer cancel()

	client, err := net.Dial("tcp4", l.Addr().String())
	require.NoError(t, err)
	_, err = client.Write([]byte("a:1|c\nb:2|c\npar"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(handler.Lines()) == 2 }, 5*time.Second, time.Millisecond)

	// the partial line is completed by the next write
	_, err = client.Write([]byte("tial:3|c\r\nlast:4|g"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(handler.Lines()) == 3 }, 5*time.Second, time.Millisecond)

	// the unterminated line is handled once the connection ends
	require.NoError(t, client.Close())
	require.Eventually(t, func() bool { return len(handler.Lines()) == 4 }, 5*time.Second, time.Millisecond)

	assert.Equal(t, []string{"a:1|c", "b:2|c", "partial:3|c", "last:4|g"}, handler.Lines())
	assert.EqualValues(t, 1, atomic.LoadUint64(&sr.connectionsAccepted))
}

func TestStreamReceiverClosesConnectionsOnShutdown(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())

	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	sr := NewStreamReceiver(fixtures.NewTestLogger(t), &capturingLineHandler{}, util.NewBackoffFactory(1, time.Millisecond, time.Millisecond), DefaultMaxLineLength)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		assert.NoError(t, sr.Receive(ctx, l))
	}()

	client, err := net.Dial("tcp4", l.Addr().String())
	require.NoError(t, err)
	defer client.Close()
	require.Eventually(t, func() bool { return atomic.LoadInt64(&sr.activeConnections) == 1 }, 5*time.Second, time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("receiver did not stop")
	}
}
