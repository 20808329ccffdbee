package util

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the inspected environment variables.
const EnvPrefix = "SR" // Stats Relay

// GetSubViper returns the sub tree under key, or an empty viper when the key is absent. Environment
// variables for the sub tree are read as <EnvPrefix>_<KEY>_<NAME>.
func GetSubViper(v *viper.Viper, key string) *viper.Viper {
	n := v.Sub(key)
	if n == nil {
		n = viper.New()
	}
	InitViper(n, key)
	return n
}

// InitViper sets up env var handling for a viper. It has to be called on every sub viper as these
// settings are not inherited.
func InitViper(v *viper.Viper, subViperName string) {
	prefix := EnvPrefix
	if subViperName != "" {
		prefix += "_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(subViperName))
	}
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.SetEnvPrefix(prefix)
	v.SetTypeByDefaultValue(true)
	v.AutomaticEnv()
}
