package relay

import (
	"runtime"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/atlassian/statsrelay"
	"github.com/atlassian/statsrelay/pkg/cluster/ring"
	"github.com/atlassian/statsrelay/pkg/distributor"
	"github.com/atlassian/statsrelay/pkg/sender"
)

// DefaultMaxReaders is the default number of socket reading goroutines.
var DefaultMaxReaders = runtime.NumCPU()

const (
	// DefaultFlushInterval is the default metrics flush interval.
	DefaultFlushInterval = 10 * time.Second
	// DefaultFlushOffset is the default offset of aligned flushes.
	DefaultFlushOffset = 0
	// DefaultFlushAligned is the default for aligning flushes to the wall clock.
	DefaultFlushAligned = false
	// DefaultMetricsAddr is the default address on which to listen for metrics.
	DefaultMetricsAddr = ":8125"
	// DefaultProtocol is the default listening protocol.
	DefaultProtocol = statsrelay.TCP4
	// DefaultConnPerReader is the default for opening a socket per UDP reader.
	DefaultConnPerReader = false
	// DefaultReceiveBufferSize is the default socket receive buffer size, 0 keeps the OS default.
	DefaultReceiveBufferSize = 0
	// DefaultBadLinesPerMinute is the default number of bad lines logged per minute, 0 disables it.
	DefaultBadLinesPerMinute = 0
	// DefaultStatserType is the default statser type.
	DefaultStatserType = StatserInternal
	// DefaultInternalNamespace is the default namespace of internal metrics.
	DefaultInternalNamespace = "statsrelay"
	// DefaultHeartbeatEnabled is the default for sending a heartbeat counter on every flush.
	DefaultHeartbeatEnabled = false
	// DefaultMaxLineLength is the longest line accepted from a stream connection.
	DefaultMaxLineLength = 1 << 20
)

const (
	// StatserInternal is the name used to indicate the use of the internal statser.
	StatserInternal = "internal"
	// StatserLogging is the name used to indicate the use of the logging statser.
	StatserLogging = "logging"
	// StatserNull is the name used to indicate the use of the null statser.
	StatserNull = "null"
)

const (
	// ParamFlushInterval is the name of parameter with metrics flush interval.
	ParamFlushInterval = "flush-interval"
	// ParamFlushOffset is the name of parameter with the offset of aligned flushes.
	ParamFlushOffset = "flush-offset"
	// ParamFlushAligned is the name of parameter enabling flushes aligned to the wall clock.
	ParamFlushAligned = "flush-aligned"
	// ParamMetricsAddr is the name of parameter with address on which to listen for metrics.
	ParamMetricsAddr = "metrics-addr"
	// ParamProtocol is the name of parameter with the listening protocol.
	ParamProtocol = "protocol"
	// ParamMaxReaders is the name of parameter with number of socket readers.
	ParamMaxReaders = "max-readers"
	// ParamConnPerReader is the name of parameter enabling a SO_REUSEPORT socket per reader.
	ParamConnPerReader = "conn-per-reader"
	// ParamReceiveBufferSize is the name of parameter with the socket receive buffer size.
	ParamReceiveBufferSize = "receive-buffer-size"
	// ParamNamespace is the name of parameter with namespace for all incoming metrics.
	ParamNamespace = "namespace"
	// ParamDumpMessages is the name of parameter enabling debug logs of every received line.
	ParamDumpMessages = "dump-messages"
	// ParamBadLinesPerMinute is the name of parameter with the number of bad lines logged per minute.
	ParamBadLinesPerMinute = "bad-lines-per-minute"
	// ParamStatserType is the name of parameter with the type of statser.
	ParamStatserType = "statser-type"
	// ParamInternalNamespace is the name of parameter with the namespace of internal metrics.
	ParamInternalNamespace = "internal-namespace"
	// ParamHeartbeatEnabled is the name of parameter enabling the heartbeat counter.
	ParamHeartbeatEnabled = "heartbeat-enabled"
)

// AddFlags adds flags to the specified FlagSet.
func AddFlags(fs *pflag.FlagSet) {
	fs.Duration(ParamFlushInterval, DefaultFlushInterval, "How often to flush metrics to the shards")
	fs.Duration(ParamFlushOffset, DefaultFlushOffset, "Offset of aligned flushes")
	fs.Bool(ParamFlushAligned, DefaultFlushAligned, "Align flushes to the flush interval")
	fs.String(ParamMetricsAddr, DefaultMetricsAddr, "Address on which to listen for metrics")
	fs.String(ParamProtocol, string(DefaultProtocol), "Listening protocol, one of udp4, udp6, tcp4 or tcp6")
	fs.Int(ParamMaxReaders, DefaultMaxReaders, "Maximum number of socket readers")
	fs.Bool(ParamConnPerReader, DefaultConnPerReader, "Create a separate connection per reader (requires system support for reusing addresses)")
	fs.Int(ParamReceiveBufferSize, DefaultReceiveBufferSize, "Socket receive buffer size in bytes, 0 keeps the OS default")
	fs.String(ParamNamespace, "", "Namespace prepended to every received metric")
	fs.Bool(ParamDumpMessages, false, "Log every received line at debug level")
	fs.Float64(ParamBadLinesPerMinute, DefaultBadLinesPerMinute, "Number of bad lines logged per minute, 0 disables it")
	fs.String(ParamStatserType, DefaultStatserType, "Statser type to be used for sending metrics")
	fs.String(ParamInternalNamespace, DefaultInternalNamespace, "Namespace of internal metrics")
	fs.Bool(ParamHeartbeatEnabled, DefaultHeartbeatEnabled, "Send a heartbeat counter on every flush")

	fs.Int(ring.ParamShardRingSize, 0, "Number of positions on the shard ring")
	fs.Int(ring.ParamReplication, ring.DefaultReplication, "Number of shards receiving each metric")
	fs.Int(distributor.ParamBatchSize, distributor.DefaultBatchSize, "Maximum size of a payload sent to a shard, in bytes")
	fs.Int(distributor.ParamMaxConcurrentSends, distributor.DefaultMaxConcurrentSends, "Maximum number of shards sent to in parallel, 0 is unlimited")
	fs.Duration(sender.ParamDialTimeout, sender.DefaultDialTimeout, "Timeout for connecting to a shard")
	fs.Duration(sender.ParamWriteTimeout, sender.DefaultWriteTimeout, "Timeout for writing to a shard")
}

// setDefaults applies the defaults of the relay parameters, for configurations built without the
// flags of AddFlags.
func setDefaults(v *viper.Viper) {
	v.SetDefault(ParamFlushInterval, DefaultFlushInterval)
	v.SetDefault(ParamFlushOffset, DefaultFlushOffset)
	v.SetDefault(ParamFlushAligned, DefaultFlushAligned)
	v.SetDefault(ParamMetricsAddr, DefaultMetricsAddr)
	v.SetDefault(ParamProtocol, string(DefaultProtocol))
	v.SetDefault(ParamMaxReaders, DefaultMaxReaders)
	v.SetDefault(ParamConnPerReader, DefaultConnPerReader)
	v.SetDefault(ParamReceiveBufferSize, DefaultReceiveBufferSize)
	v.SetDefault(ParamBadLinesPerMinute, DefaultBadLinesPerMinute)
	v.SetDefault(ParamStatserType, DefaultStatserType)
	v.SetDefault(ParamInternalNamespace, DefaultInternalNamespace)
	v.SetDefault(ParamHeartbeatEnabled, DefaultHeartbeatEnabled)
}
