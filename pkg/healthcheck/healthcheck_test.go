package healthcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type provider struct{}

func (provider) HealthChecks() []HealthcheckFunc {
	return []HealthcheckFunc{staticCheck("alive", Healthy)}
}

func (provider) DeepChecks() []HealthcheckFunc {
	return []HealthcheckFunc{staticCheck("shard down", Unhealthy), staticCheck("shard up", Healthy)}
}

func staticCheck(report string, status HealthyStatus) HealthcheckFunc {
	return func() (string, HealthyStatus) {
		return report, status
	}
}

func TestMaybeAppendHealthChecks(t *testing.T) {
	t.Parallel()
	health, deep := MaybeAppendHealthChecks(nil, nil, provider{})
	assert.Len(t, health, 1)
	assert.Len(t, deep, 2)

	health, deep = MaybeAppendHealthChecks(health, deep, struct{}{})
	assert.Len(t, health, 1)
	assert.Len(t, deep, 2)
}

func TestRun(t *testing.T) {
	t.Parallel()
	good, bad := Run(nil)
	assert.NotNil(t, good)
	assert.NotNil(t, bad)
	assert.Empty(t, good)
	assert.Empty(t, bad)

	_, deep := MaybeAppendHealthChecks(nil, nil, provider{})
	good, bad = Run(deep)
	assert.Equal(t, []string{"shard up"}, good)
	assert.Equal(t, []string{"shard down"}, bad)
}
