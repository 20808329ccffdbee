package fakesocket

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"
)

// FakeAddr is a fake net.Addr
var FakeAddr = &net.UDPAddr{
	IP:   net.IPv4(127, 0, 0, 1),
	Port: 8181,
}

var ErrClosedConnection = errors.New("connection is closed")
var ErrAlreadyClosedConnection = errors.New("connection is already closed")

// FakePacketConn is a fake net.PacketConn returning a fixed list of datagrams, one per read. Once
// they are exhausted reads block until the connection is closed.
type FakePacketConn struct {
	closed    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	datagrams [][]byte
}

// NewFakePacketConn creates a FakePacketConn which returns datagrams in order.
func NewFakePacketConn(datagrams ...string) *FakePacketConn {
	fpc := &FakePacketConn{
		closed: make(chan struct{}),
	}
	for _, d := range datagrams {
		fpc.datagrams = append(fpc.datagrams, []byte(d))
	}
	return fpc
}

func (fpc *FakePacketConn) isClosed() bool {
	select {
	case <-fpc.closed:
		return true
	default:
		return false
	}
}

// ReadFrom copies the next datagram into b.
func (fpc *FakePacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	if fpc.isClosed() {
		return 0, nil, ErrClosedConnection
	}
	fpc.mu.Lock()
	if len(fpc.datagrams) > 0 {
		d := fpc.datagrams[0]
		fpc.datagrams = fpc.datagrams[1:]
		fpc.mu.Unlock()
		return copy(b, d), FakeAddr, nil
	}
	fpc.mu.Unlock()
	<-fpc.closed
	return 0, nil, ErrClosedConnection
}

// Remaining returns the number of datagrams not read yet.
func (fpc *FakePacketConn) Remaining() int {
	fpc.mu.Lock()
	defer fpc.mu.Unlock()
	return len(fpc.datagrams)
}

// WriteTo dummy impl.
func (fpc *FakePacketConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	if fpc.isClosed() {
		return 0, ErrClosedConnection
	}
	return len(b), nil
}

// Close unblocks pending reads.
func (fpc *FakePacketConn) Close() error {
	err := ErrAlreadyClosedConnection
	fpc.closeOnce.Do(func() {
		close(fpc.closed)
		err = nil
	})
	return err
}

// LocalAddr dummy impl.
func (fpc *FakePacketConn) LocalAddr() net.Addr { return FakeAddr }

// SetDeadline dummy impl.
func (fpc *FakePacketConn) SetDeadline(t time.Time) error { return nil }

// SetReadDeadline dummy impl.
func (fpc *FakePacketConn) SetReadDeadline(t time.Time) error { return nil }

// SetWriteDeadline dummy impl.
func (fpc *FakePacketConn) SetWriteDeadline(t time.Time) error { return nil }

// FakeRandomPacketConn is a fake net.PacketConn providing random fake metrics until closed.
type FakeRandomPacketConn struct {
	FakePacketConn
}

// ReadFrom generates a datagram of random metrics and writes it into b.
func (frpc *FakeRandomPacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	if frpc.isClosed() {
		return 0, nil, ErrClosedConnection
	}
	n := copy(b, RandomDatagram())
	return n, FakeAddr, nil
}

// RandomDatagram returns newline separated lines of a random metric type.
func RandomDatagram() []byte {
	num := rand.Int31n(10000) // Randomize metric name
	buf := new(bytes.Buffer)
	switch rand.Int31n(4) {
	case 0: // Counter
		fmt.Fprintf(buf, "statsrelay.tester.counter_%d:%f|c|@0.5\n", num, rand.Float64()*100) // #nosec
	case 1: // Gauge
		fmt.Fprintf(buf, "statsrelay.tester.gauge_%d:%f|g\n", num, rand.Float64()*100) // #nosec
	case 2: // Timer
		for i := 0; i < 10; i++ {
			fmt.Fprintf(buf, "statsrelay.tester.timer_%d:%f|ms\n", num, rand.Float64()*100) // #nosec
		}
	case 3: // Set
		for i := 0; i < 10; i++ {
			fmt.Fprintf(buf, "statsrelay.tester.set_%d:%d|s\n", num, rand.Int31n(9)+1) // #nosec
		}
	default:
		panic(errors.New("unreachable"))
	}
	return buf.Bytes()
}

// Factory is a replacement for net.ListenPacket() that produces instances of FakeRandomPacketConn.
func Factory() (net.PacketConn, error) {
	return &FakeRandomPacketConn{
		FakePacketConn: FakePacketConn{
			closed: make(chan struct{}),
		},
	}, nil
}
