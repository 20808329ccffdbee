package web

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/atlassian/statsrelay"
	"github.com/atlassian/statsrelay/pkg/aggregation"
	"github.com/atlassian/statsrelay/pkg/cluster/ring"
)

type status struct {
	ring  *ring.Ring
	rules []*aggregation.Rule
}

type shardsResponse struct {
	Size        int                `json:"size"`
	Replication int                `json:"replication"`
	Shards      []statsrelay.Shard `json:"shards"`
}

func respondJSON(resp http.ResponseWriter, v interface{}) {
	resp.Header().Set("content-type", "application/json")
	resp.WriteHeader(http.StatusOK)
	_ = jsoniter.NewEncoder(resp).Encode(v)
}

// shardsHandler reports the ring the metrics are distributed over.
func (s *status) shardsHandler(resp http.ResponseWriter, req *http.Request) {
	if s.ring == nil {
		respondJSON(resp, shardsResponse{Shards: []statsrelay.Shard{}})
		return
	}
	respondJSON(resp, shardsResponse{
		Size:        s.ring.Size(),
		Replication: s.ring.Replication(),
		Shards:      s.ring.Shards(),
	})
}

// rulesHandler reports the aggregation rules, in evaluation order.
func (s *status) rulesHandler(resp http.ResponseWriter, req *http.Request) {
	configs := make([]aggregation.RuleConfig, 0, len(s.rules))
	for _, rule := range s.rules {
		configs = append(configs, rule.Config())
	}
	respondJSON(resp, configs)
}
