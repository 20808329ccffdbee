package relay

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/statsrelay"
	"github.com/atlassian/statsrelay/internal/fixtures"
	"github.com/atlassian/statsrelay/pkg/fakesocket"
)

func newTestViper(shards ...statsrelay.Shard) *viper.Viper {
	v := viper.New()
	configs := make([]map[string]interface{}, 0, len(shards))
	for _, s := range shards {
		configs = append(configs, map[string]interface{}{
			"hostname":   s.Hostname,
			"port":       s.Port,
			"protocol":   string(s.Protocol),
			"ring-index": s.RingIndex,
		})
	}
	v.Set("shards", configs)
	v.Set("shard-ring-size", 100)
	v.Set(ParamFlushInterval, "50ms")
	v.Set(ParamMaxReaders, 2)
	v.Set(ParamStatserType, StatserNull)
	return v
}

func TestNewServerFromViper(t *testing.T) {
	t.Parallel()
	s, err := NewServerFromViper(fixtures.NewTestLogger(t), newTestViper(statsrelay.Shard{
		Hostname: "127.0.0.1", Port: 8126, Protocol: statsrelay.UDP4,
	}))
	require.NoError(t, err)
	assert.Equal(t, DefaultProtocol, s.Protocol)
	assert.Equal(t, DefaultMetricsAddr, s.MetricsAddr)
	assert.Equal(t, 50*time.Millisecond, s.FlushInterval)
	assert.Equal(t, 1, s.Ring.Len())
}

func TestNewServerFromViperInvalid(t *testing.T) {
	t.Parallel()
	shard := statsrelay.Shard{Hostname: "127.0.0.1", Port: 8126, Protocol: statsrelay.UDP4}
	tests := map[string]func(v *viper.Viper){
		"protocol":       func(v *viper.Viper) { v.Set(ParamProtocol, "sctp") },
		"flush interval": func(v *viper.Viper) { v.Set(ParamFlushInterval, "0s") },
		"readers":        func(v *viper.Viper) { v.Set(ParamMaxReaders, 0) },
		"statser":        func(v *viper.Viper) { v.Set(ParamStatserType, "carrier-pigeon") },
		"no shards":      func(v *viper.Viper) { v.Set("shards", []map[string]interface{}{}) },
		"no ring size":   func(v *viper.Viper) { v.Set("shard-ring-size", 0) },
		"rule":           func(v *viper.Viper) { v.Set("aggregation", []map[string]interface{}{{"match": "(", "generate": []string{"x"}}}) },
		"blacklist":      func(v *viper.Viper) { v.Set("blacklist", []string{"["}) },
	}
	for name, mutate := range tests {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			v := newTestViper(shard)
			mutate(v)
			_, err := NewServerFromViper(fixtures.NewTestLogger(t), v)
			require.Error(t, err)
		})
	}
}

func runServer(t *testing.T, s *Server, run func(context.Context) error) func() {
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() {
		stopped <- run(ctx)
	}()
	return func() {
		cancel()
		select {
		case err := <-stopped:
			assert.Equal(t, context.Canceled, err)
		case <-time.After(10 * time.Second):
			t.Fatal("server did not stop")
		}
	}
}

func TestServerRelaysDatagrams(t *testing.T) {
	t.Parallel()
	shard := fixtures.NewCapturingShard(t, statsrelay.UDP4, 0)
	v := newTestViper(shard.Shard)
	v.Set(ParamProtocol, "udp4")
	v.Set(ParamFlushInterval, "1s")
	v.Set("aggregation", []map[string]interface{}{
		{"match": `^web\.(\w+)\.count$`, "types": []string{"counter"}, "generate": []string{"web.all.count"}},
	})
	s, err := NewServerFromViper(fixtures.NewTestLogger(t), v)
	require.NoError(t, err)

	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	stop := runServer(t, s, func(ctx context.Context) error {
		return s.RunWithCustomSocket(ctx, func() (net.PacketConn, error) { return conn, nil })
	})
	defer stop()

	client, err := net.Dial("udp4", conn.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()
	_, err = client.Write([]byte("web.api.count:1|c\nweb.www.count:2|c|@0.5"))
	require.NoError(t, err)

	payloads := shard.Wait(t, 1, 5*time.Second)
	assert.Equal(t, "web.api.count:1|c\nweb.all.count:5|c\nweb.www.count:4|c", payloads[0])
}

func TestServerRelaysRandomDatagrams(t *testing.T) {
	t.Parallel()
	shard := fixtures.NewCapturingShard(t, statsrelay.TCP4, 0)
	v := newTestViper(shard.Shard)
	v.Set(ParamProtocol, "udp4")
	v.Set(ParamMaxReaders, 1)
	s, err := NewServerFromViper(fixtures.NewTestLogger(t), v)
	require.NoError(t, err)

	stop := runServer(t, s, func(ctx context.Context) error {
		return s.RunWithCustomSocket(ctx, fakesocket.Factory)
	})
	defer stop()

	payloads := shard.Wait(t, 1, 5*time.Second)
	assert.Contains(t, payloads[0], "statsrelay.tester.")
}

func TestServerRelaysStream(t *testing.T) {
	t.Parallel()
	shard := fixtures.NewCapturingShard(t, statsrelay.TCP4, 0)
	s, err := NewServerFromViper(fixtures.NewTestLogger(t), newTestViper(shard.Shard))
	require.NoError(t, err)

	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	stop := runServer(t, s, func(ctx context.Context) error {
		return s.RunWithCustomListener(ctx, func() (net.Listener, error) { return l, nil })
	})
	defer stop()

	client, err := net.Dial("tcp4", l.Addr().String())
	require.NoError(t, err)
	_, err = client.Write([]byte("glork:320|ms\ngaugor:333|g"))
	require.NoError(t, err)
	require.NoError(t, client.Close())

	payloads := shard.Wait(t, 1, 5*time.Second)
	assert.Equal(t, "gaugor:333|g\nglork:320|ms", payloads[0])
}

func TestServerSendsInternalMetrics(t *testing.T) {
	t.Parallel()
	shard := fixtures.NewCapturingShard(t, statsrelay.UDP4, 0)
	v := newTestViper(shard.Shard)
	v.Set(ParamStatserType, StatserInternal)
	v.Set(ParamHeartbeatEnabled, true)
	s, err := NewServerFromViper(fixtures.NewTestLogger(t), v)
	require.NoError(t, err)

	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	stop := runServer(t, s, func(ctx context.Context) error {
		return s.RunWithCustomListener(ctx, func() (net.Listener, error) { return l, nil })
	})
	defer stop()

	require.Eventually(t, func() bool {
		for _, p := range shard.Payloads() {
			if strings.Contains(p, "statsrelay.heartbeat:") {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServerFailsToListen(t *testing.T) {
	t.Parallel()
	shard := statsrelay.Shard{Hostname: "127.0.0.1", Port: 8126, Protocol: statsrelay.UDP4}
	s, err := NewServerFromViper(fixtures.NewTestLogger(t), newTestViper(shard))
	require.NoError(t, err)

	err = s.RunWithCustomListener(context.Background(), func() (net.Listener, error) {
		return nil, assert.AnError
	})
	assert.Equal(t, assert.AnError, err)
}
