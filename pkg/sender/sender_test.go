package sender

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/statsrelay"
	"github.com/atlassian/statsrelay/internal/fixtures"
	"github.com/atlassian/statsrelay/pkg/healthcheck"
)

func TestSendDatagrams(t *testing.T) {
	t.Parallel()
	cs := fixtures.NewCapturingShard(t, statsrelay.UDP4, 0)
	s := NewSender(fixtures.NewTestLogger(t), time.Second, time.Second)

	payloads := []string{"a:1|c\nb:1|c", "c:1|c", "d:1|g"}
	require.NoError(t, s.Send(context.Background(), cs.Shard, payloads))

	assert.Equal(t, payloads, cs.Wait(t, 3, 5*time.Second))
	assert.EqualValues(t, 3, s.payloadsSent)
}

func TestSendStream(t *testing.T) {
	t.Parallel()
	cs := fixtures.NewCapturingShard(t, statsrelay.TCP4, 0)
	s := NewSender(fixtures.NewTestLogger(t), time.Second, time.Second)

	require.NoError(t, s.Send(context.Background(), cs.Shard, []string{"a:1|c\nb:1|c", "c:1|c"}))

	assert.Equal(t, []string{"a:1|c\nb:1|c\nc:1|c"}, cs.Wait(t, 1, 5*time.Second))
}

func TestSendNothing(t *testing.T) {
	t.Parallel()
	s := NewSender(fixtures.NewTestLogger(t), time.Second, time.Second)
	shard := statsrelay.Shard{Hostname: "127.0.0.1", Port: 1, Protocol: statsrelay.TCP4}

	require.NoError(t, s.Send(context.Background(), shard, nil))
	assert.Empty(t, s.lastErrors)
}

func TestSendStreamRefused(t *testing.T) {
	t.Parallel()
	// grab a free port and release it so nothing is listening
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	require.NoError(t, l.Close())

	s := NewSender(fixtures.NewTestLogger(t), time.Second, time.Second)
	shard := statsrelay.Shard{Hostname: "127.0.0.1", Port: addr.Port, Protocol: statsrelay.TCP4}

	err = s.Send(context.Background(), shard, []string{"a:1|c", "b:1|c"})
	require.Error(t, err)
	var sendErr *SendError
	require.True(t, errors.As(err, &sendErr))
	assert.Equal(t, 2, sendErr.Failed)
	assert.Equal(t, 2, sendErr.Total)
	assert.EqualValues(t, 2, s.sendErrors)

	msg, status := s.DeepChecks()[0]()
	assert.Equal(t, healthcheck.Unhealthy, status)
	assert.Contains(t, msg, shard.Address())
}

func TestDeepCheckRecovers(t *testing.T) {
	t.Parallel()
	cs := fixtures.NewCapturingShard(t, statsrelay.UDP4, 0)
	s := NewSender(fixtures.NewTestLogger(t), time.Second, time.Second)
	s.lastErrors[cs.Shard.Address()] = errors.New("boom")

	_, status := s.DeepChecks()[0]()
	assert.Equal(t, healthcheck.Unhealthy, status)
	assert.Equal(t, 1, s.countFailing())

	require.NoError(t, s.Send(context.Background(), cs.Shard, []string{"a:1|c"}))
	_, status = s.DeepChecks()[0]()
	assert.Equal(t, healthcheck.Healthy, status)
	assert.Zero(t, s.countFailing())
}

func TestNewSenderFromViper(t *testing.T) {
	t.Parallel()
	logger := fixtures.NewTestLogger(t)

	s, err := NewSenderFromViper(logger, viper.New())
	require.NoError(t, err)
	assert.Equal(t, DefaultDialTimeout, s.dialer.Timeout)
	assert.Equal(t, DefaultWriteTimeout, s.writeTimeout)

	v := viper.New()
	v.Set(ParamWriteTimeout, "250ms")
	s, err = NewSenderFromViper(logger, v)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, s.writeTimeout)

	v = viper.New()
	v.Set(ParamDialTimeout, "0s")
	_, err = NewSenderFromViper(logger, v)
	require.Error(t, err)
}
