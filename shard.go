package statsrelay

import (
	"fmt"
	"net"
	"strconv"
)

// Protocol is the network a shard or listener speaks.
type Protocol string

const (
	UDP4 Protocol = "udp4"
	UDP6 Protocol = "udp6"
	TCP4 Protocol = "tcp4"
	TCP6 Protocol = "tcp6"
)

// ParseProtocol validates a protocol name.
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(s); p {
	case UDP4, UDP6, TCP4, TCP6:
		return p, nil
	}
	return "", fmt.Errorf("unsupported protocol %q, must be one of udp4, udp6, tcp4 or tcp6", s)
}

// IsStream returns true for connection oriented protocols.
func (p Protocol) IsStream() bool {
	return p == TCP4 || p == TCP6
}

// Shard is a downstream metrics store.
type Shard struct {
	Hostname  string   `mapstructure:"hostname" json:"hostname"`
	Port      int      `mapstructure:"port" json:"port"`
	Protocol  Protocol `mapstructure:"protocol" json:"protocol"`
	RingIndex int      `mapstructure:"ring-index" json:"ringIndex"`
}

// Address returns the host:port the shard is reached on.
func (s Shard) Address() string {
	return net.JoinHostPort(s.Hostname, strconv.Itoa(s.Port))
}

func (s Shard) String() string {
	return fmt.Sprintf("%s://%s@%d", s.Protocol, s.Address(), s.RingIndex)
}

// Validate checks that all required fields are present.
func (s Shard) Validate() error {
	if s.Hostname == "" {
		return fmt.Errorf("shard at ring index %d: hostname is required", s.RingIndex)
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("shard %s: invalid port %d", s.Hostname, s.Port)
	}
	if _, err := ParseProtocol(string(s.Protocol)); err != nil {
		return fmt.Errorf("shard %s: %v", s.Address(), err)
	}
	if s.RingIndex < 0 {
		return fmt.Errorf("shard %s: ring index must not be negative", s.Address())
	}
	return nil
}
