package relay

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/ash2k/stager/wait"
	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"

	"github.com/atlassian/statsrelay"
	"github.com/atlassian/statsrelay/internal/util"
	"github.com/atlassian/statsrelay/pkg/stats"
)

// ip packet size is stored in two bytes and that is how big in theory the packet can be.
// In practice it is highly unlikely but still possible to get packets bigger than usual MTU of 1500.
const packetSizeUDP = 0xffff

// DatagramReceiver reads datagrams from a PacketConn and hands every line to a LineHandler.
type DatagramReceiver struct {
	// Counter fields below must be read/written only using atomic instructions.
	// 64-bit fields must be the first fields in the struct to guarantee proper memory alignment.
	// See https://golang.org/pkg/sync/atomic/#pkg-note-BUG
	packetsReceived uint64

	logger  logrus.FieldLogger
	handler statsrelay.LineHandler
}

// NewDatagramReceiver initialises a new DatagramReceiver.
func NewDatagramReceiver(logger logrus.FieldLogger, handler statsrelay.LineHandler) *DatagramReceiver {
	return &DatagramReceiver{
		logger:  logger,
		handler: handler,
	}
}

// Receive accepts incoming datagrams on c until c is closed. A closed connection is only an error
// if ctx is not done.
func (dr *DatagramReceiver) Receive(ctx context.Context, c net.PacketConn) error {
	buf := make([]byte, packetSizeUDP)
	for {
		// This will error out when the socket is closed.
		nbytes, _, err := c.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("error reading from socket: %v", err)
		}
		atomic.AddUint64(&dr.packetsReceived, 1)
		dr.handlePacket(buf[:nbytes])
	}
}

// handlePacket splits a datagram on newlines and skips empty lines. The final line does not need a
// trailing newline.
func (dr *DatagramReceiver) handlePacket(msg []byte) {
	for len(msg) > 0 {
		var line []byte
		if idx := bytes.IndexByte(msg, '\n'); idx == -1 {
			line, msg = msg, nil
		} else {
			line, msg = msg[:idx], msg[idx+1:]
		}
		if len(line) > 0 {
			dr.handler.HandleLine(line)
		}
	}
}

// RunMetricsContext reports the number of datagrams received on every flush.
func (dr *DatagramReceiver) RunMetricsContext(ctx context.Context) {
	statser := stats.FromContext(ctx).WithPrefix("receiver")
	flushed, unregister := statser.RegisterFlush()
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushed:
			statser.Count("packets_received", float64(atomic.SwapUint64(&dr.packetsReceived, 0)))
		}
	}
}

// StreamReceiver accepts connections and hands every newline terminated line to a LineHandler. A
// trailing line without a newline is handled when the connection ends.
type StreamReceiver struct {
	connectionsAccepted uint64 // atomic
	activeConnections   int64  // atomic

	logger         logrus.FieldLogger
	handler        statsrelay.LineHandler
	backoffFactory util.BackoffFactory
	maxLineLength  int
}

// NewStreamReceiver initialises a new StreamReceiver. Accept errors are retried after a delay
// taken from backoffFactory.
func NewStreamReceiver(logger logrus.FieldLogger, handler statsrelay.LineHandler, backoffFactory util.BackoffFactory, maxLineLength int) *StreamReceiver {
	return &StreamReceiver{
		logger:         logger,
		handler:        handler,
		backoffFactory: backoffFactory,
		maxLineLength:  maxLineLength,
	}
}

// Receive accepts connections from l until ctx is done, and waits for them to be closed.
func (sr *StreamReceiver) Receive(ctx context.Context, l net.Listener) error {
	var wg wait.Group
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	wg.Start(func() {
		<-ctx.Done()
		_ = l.Close()
	})

	var bo backoff.BackOff
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if bo == nil {
				bo = sr.backoffFactory()
			}
			delay := bo.NextBackOff()
			if delay == backoff.Stop {
				return fmt.Errorf("error accepting connection: %v", err)
			}
			sr.logger.WithError(err).WithField("delay", delay).Warn("Failed to accept connection")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		bo = nil
		atomic.AddUint64(&sr.connectionsAccepted, 1)
		wg.StartWithContext(ctx, func(ctx context.Context) {
			sr.handleConnection(ctx, conn)
		})
	}
}

func (sr *StreamReceiver) handleConnection(ctx context.Context, conn net.Conn) {
	atomic.AddInt64(&sr.activeConnections, 1)
	defer atomic.AddInt64(&sr.activeConnections, -1)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), sr.maxLineLength)
	for scanner.Scan() {
		sr.handler.HandleLine(scanner.Bytes())
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		sr.logger.WithError(err).WithField("remote", conn.RemoteAddr().String()).Debug("Connection closed with error")
	}
}

// RunMetricsContext reports connection counters on every flush.
func (sr *StreamReceiver) RunMetricsContext(ctx context.Context) {
	statser := stats.FromContext(ctx).WithPrefix("receiver")
	flushed, unregister := statser.RegisterFlush()
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushed:
			statser.Count("connections_accepted", float64(atomic.SwapUint64(&sr.connectionsAccepted, 0)))
			statser.Gauge("connections_active", float64(atomic.LoadInt64(&sr.activeConnections)))
		}
	}
}
