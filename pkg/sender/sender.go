package sender

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/atlassian/statsrelay"
	"github.com/atlassian/statsrelay/pkg/healthcheck"
	"github.com/atlassian/statsrelay/pkg/stats"
)

const (
	// DefaultDialTimeout is the default timeout for connecting to a shard.
	DefaultDialTimeout = 5 * time.Second
	// DefaultWriteTimeout is the default timeout for writing to a shard.
	DefaultWriteTimeout = 5 * time.Second

	// ParamDialTimeout is the name of parameter with the timeout for connecting to a shard.
	ParamDialTimeout = "dial-timeout"
	// ParamWriteTimeout is the name of parameter with the timeout for writing to a shard.
	ParamWriteTimeout = "write-timeout"
)

// SendError is returned when some payloads of a send could not be written.
type SendError struct {
	Failed int
	Total  int
	Err    error // first failure
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%d of %d payloads failed: %v", e.Failed, e.Total, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Sender writes payloads to shards. Nothing is retried and no acknowledgement is awaited.
type Sender struct {
	logger       logrus.FieldLogger
	dialer       net.Dialer
	writeTimeout time.Duration

	payloadsSent  uint64 // atomic
	sendErrors    uint64 // atomic
	failingShards stats.ChangeGauge

	lastErrorsLock sync.Mutex
	lastErrors     map[string]error // by shard address, nil after a success
}

// NewSender creates a Sender with the given timeouts.
func NewSender(logger logrus.FieldLogger, dialTimeout, writeTimeout time.Duration) *Sender {
	return &Sender{
		logger:       logger,
		dialer:       net.Dialer{Timeout: dialTimeout},
		writeTimeout: writeTimeout,
		lastErrors:   map[string]error{},
	}
}

// NewSenderFromViper creates a Sender from configuration.
func NewSenderFromViper(logger logrus.FieldLogger, v *viper.Viper) (*Sender, error) {
	v.SetDefault(ParamDialTimeout, DefaultDialTimeout)
	v.SetDefault(ParamWriteTimeout, DefaultWriteTimeout)
	dialTimeout := v.GetDuration(ParamDialTimeout)
	writeTimeout := v.GetDuration(ParamWriteTimeout)
	if dialTimeout <= 0 {
		return nil, fmt.Errorf("%s must be positive", ParamDialTimeout)
	}
	if writeTimeout <= 0 {
		return nil, fmt.Errorf("%s must be positive", ParamWriteTimeout)
	}
	return NewSender(logger, dialTimeout, writeTimeout), nil
}

// Send writes payloads to shard. Datagram shards get one datagram per payload, and a failed
// datagram does not stop the following ones. Stream shards get a single connection carrying the
// payloads joined by newlines.
func (s *Sender) Send(ctx context.Context, shard statsrelay.Shard, payloads []string) error {
	if len(payloads) == 0 {
		return nil
	}
	var err error
	if shard.Protocol.IsStream() {
		err = s.sendStream(ctx, shard, payloads)
	} else {
		err = s.sendDatagrams(ctx, shard, payloads)
	}
	s.lastErrorsLock.Lock()
	s.lastErrors[shard.Address()] = err
	s.lastErrorsLock.Unlock()
	return err
}

func (s *Sender) sendDatagrams(ctx context.Context, shard statsrelay.Shard, payloads []string) error {
	conn, err := s.dialer.DialContext(ctx, string(shard.Protocol), shard.Address())
	if err != nil {
		atomic.AddUint64(&s.sendErrors, uint64(len(payloads)))
		return &SendError{Failed: len(payloads), Total: len(payloads), Err: err}
	}
	defer conn.Close()

	var sendErr *SendError
	for _, payload := range payloads {
		if err = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err == nil {
			_, err = conn.Write([]byte(payload))
		}
		if err != nil {
			atomic.AddUint64(&s.sendErrors, 1)
			s.logger.WithFields(logrus.Fields{
				"shard": shard.Address(),
				"bytes": len(payload),
			}).WithError(err).Debug("Failed to send datagram")
			if sendErr == nil {
				sendErr = &SendError{Total: len(payloads), Err: err}
			}
			sendErr.Failed++
			continue
		}
		atomic.AddUint64(&s.payloadsSent, 1)
	}
	if sendErr != nil {
		return sendErr
	}
	return nil
}

func (s *Sender) sendStream(ctx context.Context, shard statsrelay.Shard, payloads []string) error {
	conn, err := s.dialer.DialContext(ctx, string(shard.Protocol), shard.Address())
	if err != nil {
		atomic.AddUint64(&s.sendErrors, uint64(len(payloads)))
		return &SendError{Failed: len(payloads), Total: len(payloads), Err: err}
	}
	defer conn.Close()

	if err = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err == nil {
		_, err = conn.Write([]byte(strings.Join(payloads, "\n")))
	}
	if err != nil {
		atomic.AddUint64(&s.sendErrors, uint64(len(payloads)))
		return &SendError{Failed: len(payloads), Total: len(payloads), Err: err}
	}
	atomic.AddUint64(&s.payloadsSent, uint64(len(payloads)))
	return nil
}

// DeepChecks reports the outcome of the latest send to each shard.
func (s *Sender) DeepChecks() []healthcheck.HealthcheckFunc {
	return []healthcheck.HealthcheckFunc{s.lastSendCheck}
}

func (s *Sender) lastSendCheck() (string, healthcheck.HealthyStatus) {
	s.lastErrorsLock.Lock()
	defer s.lastErrorsLock.Unlock()
	var failing []string
	for address, err := range s.lastErrors {
		if err != nil {
			failing = append(failing, address+": "+err.Error())
		}
	}
	if len(failing) > 0 {
		return "shard sends failing: " + strings.Join(failing, "; "), healthcheck.Unhealthy
	}
	return fmt.Sprintf("last send succeeded for %d shards", len(s.lastErrors)), healthcheck.Healthy
}

func (s *Sender) countFailing() int {
	s.lastErrorsLock.Lock()
	defer s.lastErrorsLock.Unlock()
	n := 0
	for _, err := range s.lastErrors {
		if err != nil {
			n++
		}
	}
	return n
}

// RunMetricsContext reports send counters on every flush.
func (s *Sender) RunMetricsContext(ctx context.Context) {
	statser := stats.FromContext(ctx).WithPrefix("sender")
	flushed, unregister := statser.RegisterFlush()
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushed:
			statser.Count("payloads_sent", float64(atomic.SwapUint64(&s.payloadsSent, 0)))
			statser.Count("send_errors", float64(atomic.SwapUint64(&s.sendErrors, 0)))
			atomic.StoreUint64(&s.failingShards.Cur, uint64(s.countFailing()))
			s.failingShards.SendIfChanged(statser, "failing_shards")
		}
	}
}
