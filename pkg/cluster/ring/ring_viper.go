package ring

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/atlassian/statsrelay"
)

const (
	// ParamShardRingSize is the name of parameter with the number of ring positions.
	ParamShardRingSize = "shard-ring-size"
	// ParamShards is the name of parameter with the list of shards.
	ParamShards = "shards"
	// ParamReplication is the name of parameter with the number of shards receiving each metric.
	ParamReplication = "replication"
)

// DefaultReplication is the default number of shards receiving each metric.
const DefaultReplication = 1

// NewRingFromViper builds a Ring from configuration.
func NewRingFromViper(logger logrus.FieldLogger, v *viper.Viper) (*Ring, error) {
	v.SetDefault(ParamReplication, DefaultReplication)
	if !v.IsSet(ParamShardRingSize) {
		return nil, errors.New(ParamShardRingSize + " is required")
	}
	var shards []statsrelay.Shard
	if err := v.UnmarshalKey(ParamShards, &shards); err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", ParamShards, err)
	}
	return NewRing(logger, shards, v.GetInt(ParamShardRingSize), v.GetInt(ParamReplication))
}
