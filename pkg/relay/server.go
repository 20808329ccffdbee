package relay

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ash2k/stager/wait"
	"github.com/libp2p/go-reuseport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/tilinna/clock"

	"github.com/atlassian/statsrelay"
	"github.com/atlassian/statsrelay/internal/util"
	"github.com/atlassian/statsrelay/pkg/aggregation"
	"github.com/atlassian/statsrelay/pkg/cluster/ring"
	"github.com/atlassian/statsrelay/pkg/distributor"
	"github.com/atlassian/statsrelay/pkg/healthcheck"
	"github.com/atlassian/statsrelay/pkg/sender"
	"github.com/atlassian/statsrelay/pkg/stats"
	"github.com/atlassian/statsrelay/pkg/web"
)

// SocketFactory is an indirection layer over net.ListenPacket() to allow for different implementations.
type SocketFactory func() (net.PacketConn, error)

// ListenerFactory is an indirection layer over net.Listen() to allow for different implementations.
type ListenerFactory func() (net.Listener, error)

// Server encapsulates all of the parameters necessary for starting up
// the relay. These can either be set via command line or directly.
type Server struct {
	Logger            logrus.FieldLogger
	Runnables         []statsrelay.Runnable
	Ring              *ring.Ring
	Expander          *aggregation.Expander
	Ingester          *Ingester
	Distributor       *distributor.Distributor
	Sender            *sender.Sender
	FlushInterval     time.Duration
	FlushOffset       time.Duration
	FlushAligned      bool
	MetricsAddr       string
	Protocol          statsrelay.Protocol
	MaxReaders        int
	ConnPerReader     bool
	ReceiveBufferSize int
	Namespace         string
	StatserType       string
	InternalNamespace string
	HeartbeatEnabled  bool
	BackoffFactory    util.BackoffFactory
	Viper             *viper.Viper
}

// NewServerFromViper builds a Server and all of its components from configuration.
func NewServerFromViper(logger logrus.FieldLogger, v *viper.Viper) (*Server, error) {
	setDefaults(v)
	protocol, err := statsrelay.ParseProtocol(v.GetString(ParamProtocol))
	if err != nil {
		return nil, err
	}
	flushInterval := v.GetDuration(ParamFlushInterval)
	if flushInterval <= 0 {
		return nil, fmt.Errorf("%s must be positive", ParamFlushInterval)
	}
	maxReaders := v.GetInt(ParamMaxReaders)
	if maxReaders < 1 {
		return nil, fmt.Errorf("%s must be at least 1", ParamMaxReaders)
	}
	statserType := v.GetString(ParamStatserType)
	switch statserType {
	case StatserInternal, StatserLogging, StatserNull:
	default:
		return nil, fmt.Errorf("unknown %s %q", ParamStatserType, statserType)
	}

	r, err := ring.NewRingFromViper(logger, v)
	if err != nil {
		return nil, fmt.Errorf("invalid shard ring: %v", err)
	}
	rules, err := aggregation.NewRulesFromViper(v)
	if err != nil {
		return nil, err
	}
	expander := aggregation.NewExpander(logger.WithField("component", "aggregation"), rules)
	snd, err := sender.NewSenderFromViper(logger.WithField("component", "sender"), v)
	if err != nil {
		return nil, err
	}
	dist, err := distributor.NewDistributorFromViper(logger.WithField("component", "distributor"), v, r, snd)
	if err != nil {
		return nil, err
	}
	backoffFactory, err := util.GetRetryFromViper(util.GetSubViper(v, "accept"))
	if err != nil {
		return nil, err
	}
	namespace := v.GetString(ParamNamespace)
	ingester := NewIngester(
		logger.WithField("component", "ingester"),
		expander,
		namespace,
		v.GetBool(ParamDumpMessages),
		v.GetFloat64(ParamBadLinesPerMinute),
	)

	return &Server{
		Logger:            logger,
		Ring:              r,
		Expander:          expander,
		Ingester:          ingester,
		Distributor:       dist,
		Sender:            snd,
		FlushInterval:     flushInterval,
		FlushOffset:       v.GetDuration(ParamFlushOffset),
		FlushAligned:      v.GetBool(ParamFlushAligned),
		MetricsAddr:       v.GetString(ParamMetricsAddr),
		Protocol:          protocol,
		MaxReaders:        maxReaders,
		ConnPerReader:     v.GetBool(ParamConnPerReader),
		ReceiveBufferSize: v.GetInt(ParamReceiveBufferSize),
		Namespace:         namespace,
		StatserType:       statserType,
		InternalNamespace: v.GetString(ParamInternalNamespace),
		HeartbeatEnabled:  v.GetBool(ParamHeartbeatEnabled),
		BackoffFactory:    backoffFactory,
		Viper:             v,
	}, nil
}

// Run runs the server until context signals done.
func (s *Server) Run(ctx context.Context) error {
	if s.Protocol.IsStream() {
		return s.RunWithCustomListener(ctx, func() (net.Listener, error) {
			return net.Listen(string(s.Protocol), s.MetricsAddr)
		})
	}
	return s.RunWithCustomSocket(ctx, s.socketFactory())
}

func (s *Server) socketFactory() SocketFactory {
	return func() (net.PacketConn, error) {
		var c net.PacketConn
		var err error
		if s.ConnPerReader {
			c, err = reuseport.ListenPacket(string(s.Protocol), s.MetricsAddr)
		} else {
			c, err = net.ListenPacket(string(s.Protocol), s.MetricsAddr)
		}
		if err != nil {
			return nil, err
		}
		if s.ReceiveBufferSize > 0 {
			if uc, ok := c.(*net.UDPConn); ok {
				if err = uc.SetReadBuffer(s.ReceiveBufferSize); err != nil {
					_ = c.Close()
					return nil, fmt.Errorf("failed to set receive buffer size: %v", err)
				}
			}
		}
		return c, nil
	}
}

// RunWithCustomSocket runs the server until context signals done. Listening sockets are created
// using sf, once per reader when ConnPerReader is set.
func (s *Server) RunWithCustomSocket(ctx context.Context, sf SocketFactory) error {
	receiver := NewDatagramReceiver(s.Logger.WithField("component", "receiver"), s.Ingester)
	return s.run(ctx, receiver, func(ctx context.Context, wg *wait.Group) error {
		numConns := 1
		if s.ConnPerReader {
			numConns = s.MaxReaders
		}
		conns := make([]net.PacketConn, 0, numConns)
		for i := 0; i < numConns; i++ {
			c, err := sf()
			if err != nil {
				for _, c := range conns {
					_ = c.Close()
				}
				return err
			}
			conns = append(conns, c)
		}
		s.Logger.WithFields(logrus.Fields{
			"address":  conns[0].LocalAddr().String(),
			"protocol": s.Protocol,
			"readers":  s.MaxReaders,
		}).Info("Listening for metrics")

		for r := 0; r < s.MaxReaders; r++ {
			c := conns[r%len(conns)]
			wg.Start(func() {
				if err := receiver.Receive(ctx, c); err != nil {
					s.Logger.WithError(err).Error("Receiver failed")
				}
			})
		}
		wg.Start(func() {
			<-ctx.Done()
			// This makes receivers error out and stop
			for _, c := range conns {
				if err := c.Close(); err != nil {
					s.Logger.WithError(err).Warn("Error closing socket")
				}
			}
		})
		return nil
	})
}

// RunWithCustomListener runs the server until context signals done. The listening socket is
// created using lf.
func (s *Server) RunWithCustomListener(ctx context.Context, lf ListenerFactory) error {
	receiver := NewStreamReceiver(s.Logger.WithField("component", "receiver"), s.Ingester, s.BackoffFactory, DefaultMaxLineLength)
	return s.run(ctx, receiver, func(ctx context.Context, wg *wait.Group) error {
		l, err := lf()
		if err != nil {
			return err
		}
		s.Logger.WithFields(logrus.Fields{
			"address":  l.Addr().String(),
			"protocol": s.Protocol,
		}).Info("Listening for metrics")
		wg.Start(func() {
			if err := receiver.Receive(ctx, l); err != nil {
				s.Logger.WithError(err).Error("Receiver failed")
			}
		})
		return nil
	})
}

func (s *Server) createStatser() stats.Statser {
	switch s.StatserType {
	case StatserNull:
		return stats.NewNullStatser()
	case StatserLogging:
		return stats.NewLoggingStatser(s.Logger.WithField("component", "statser"))
	default:
		namespace := s.InternalNamespace
		if s.Namespace != "" {
			if namespace != "" {
				namespace = s.Namespace + "." + namespace
			} else {
				namespace = s.Namespace
			}
		}
		return stats.NewInternalStatser(namespace, s.Ingester)
	}
}

func (s *Server) run(ctx context.Context, receiver interface{}, startReceivers func(context.Context, *wait.Group) error) error {
	statser := s.createStatser()
	ctx = stats.NewContext(ctx, statser)

	flusher := NewMetricFlusher(s.Logger.WithField("component", "flusher"), s.FlushInterval, s.FlushOffset, s.FlushAligned, s.Ingester, s.Distributor)

	// 0. Start runnables. They outlive the receivers and the flusher so the final flush still
	// reports through them.
	runnables := append([]statsrelay.Runnable(nil), s.Runnables...)
	for _, component := range []interface{}{s.Expander, s.Ingester, s.Distributor, s.Sender, receiver} {
		runnables = statsrelay.MaybeAppendRunnable(runnables, component)
	}
	if s.HeartbeatEnabled {
		runnables = append(runnables, stats.NewHeartBeater("heartbeat").Run)
	}

	var wgBack wait.Group
	defer wgBack.Wait() // Wait for runnables to shutdown
	ctxBack, cancelBack := context.WithCancel(stats.NewContext(clock.Context(context.Background(), clock.FromContext(ctx)), statser)) // Separate context!
	defer cancelBack() // Tell runnables to shutdown
	for _, runnable := range runnables {
		wgBack.StartWithContext(ctxBack, runnable)
	}

	// 1. Start the admin web servers
	var healthChecks, deepChecks []healthcheck.HealthcheckFunc
	healthChecks, deepChecks = healthcheck.MaybeAppendHealthChecks(healthChecks, deepChecks, flusher)
	healthChecks, deepChecks = healthcheck.MaybeAppendHealthChecks(healthChecks, deepChecks, s.Sender)
	var webServers []statsrelay.Runner
	if s.Viper != nil {
		servers, err := web.NewHttpServersFromViper(s.Viper, s.Logger, web.Relay{
			Handler:      s.Ingester,
			Ring:         s.Ring,
			Rules:        s.Expander.Rules(),
			HealthChecks: healthChecks,
			DeepChecks:   deepChecks,
		})
		if err != nil {
			return err
		}
		for _, server := range servers {
			webServers = append(webServers, server)
		}
	}

	var wg wait.Group
	defer wg.Wait() // Wait for receivers, the flusher and the web servers to finish
	ctx, cancel := context.WithCancel(ctx)
	defer cancel() // Stop everything started so far if a receiver fails to start
	for _, server := range webServers {
		wg.StartWithContext(ctx, server.Run)
	}

	// 2. Start the receivers
	if err := startReceivers(ctx, &wg); err != nil {
		return err
	}

	// 3. Start the flusher
	wg.StartWithContext(ctx, flusher.Run)

	// 4. Listen until done
	<-ctx.Done()
	return ctx.Err()
}
