package gconf

import (
	"strings"

	"github.com/iov-one/escrowd/errors"
	"github.com/iov-one/escrowd/store"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of all environment variables read by Load. Nested
// keys use an underscore, for example ESCROWD_CHAIN_URL.
const EnvPrefix = "ESCROWD"

// SetDefaults registers the default value of every configuration key. Keys
// without a default are not looked up in the environment.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("network", "devnet")
	v.SetDefault("chain_hex_id", "AB")
	v.SetDefault("deposit", "10")
	v.SetDefault("fee", "0.00000001")
	v.SetDefault("workers", 16)
	v.SetDefault("debug", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("storage.backend", store.BackendGoLevelDB)
	v.SetDefault("storage.path", "./escrowd-data")
	v.SetDefault("wallet.url", "http://localhost:9981")
	v.SetDefault("wallet.name", "escrow")
	v.SetDefault("wallet.passphrase", "")
	v.SetDefault("wallet.timeout", "30s")
	v.SetDefault("chain.url", "tcp://localhost:26657")
	v.SetDefault("chain.broadcast_timeout", "10s")
	v.SetDefault("chain.sync_timeout", "60s")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("http.rate_limit", 0)
	v.SetDefault("http.rate_burst", 20)
	v.SetDefault("http.trust_proxy", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "escrow-orders")
	v.SetDefault("watch.interval", "0s")
}

// Load reads the configuration from given file (optional), the environment
// and any flags already bound to v. Returned configuration is validated.
func Load(v *viper.Viper, file string) (*Configuration, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(errors.ErrInput, "read %q configuration: %s", file, err)
		}
	}

	var c Configuration
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "decode configuration: %s", err)
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &c, nil
}
