package gconf

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/iov-one/escrowd/coin"
	"github.com/iov-one/escrowd/errors"
	"github.com/iov-one/escrowd/store"
)

// Configuration holds all settings of the escrow daemon.
type Configuration struct {
	// Network is one of mainnet, testnet or devnet. It selects the human
	// readable part of all bech32 addresses.
	Network string `mapstructure:"network"`
	// ChainHexID is the two character hex identifier of the chain that is
	// part of every transaction.
	ChainHexID string `mapstructure:"chain_hex_id"`
	// Deposit and Fee are decimal coin values.
	Deposit  string `mapstructure:"deposit"`
	Fee      string `mapstructure:"fee"`
	Workers  int    `mapstructure:"workers"`
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`

	Storage Storage `mapstructure:"storage"`
	Wallet  Wallet  `mapstructure:"wallet"`
	Chain   Chain   `mapstructure:"chain"`
	HTTP    HTTP    `mapstructure:"http"`
	Kafka   Kafka   `mapstructure:"kafka"`
	Watch   Watch   `mapstructure:"watch"`
}

type Storage struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

type Wallet struct {
	URL        string        `mapstructure:"url"`
	Name       string        `mapstructure:"name"`
	Passphrase string        `mapstructure:"passphrase"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type Chain struct {
	URL              string        `mapstructure:"url"`
	BroadcastTimeout time.Duration `mapstructure:"broadcast_timeout"`
	SyncTimeout      time.Duration `mapstructure:"sync_timeout"`
}

type HTTP struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	// RateLimit is the number of requests per second allowed from a single
	// client. Zero disables the limit.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
	// TrustProxy identifies clients by the X-Forwarded-For header. Enable
	// it only when the daemon is reachable through a proxy setting it.
	TrustProxy bool `mapstructure:"trust_proxy"`
}

type Kafka struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type Watch struct {
	// Interval of zero disables the payment watcher.
	Interval time.Duration `mapstructure:"interval"`
}

var networkHRP = map[string]string{
	"mainnet": "cro",
	"testnet": "tcro",
	"devnet":  "dcro",
}

// HRP returns the bech32 human readable part of addresses used by the
// configured network.
func (c *Configuration) HRP() string {
	return networkHRP[c.Network]
}

// ChainID returns the decoded chain identifier.
func (c *Configuration) ChainID() (byte, error) {
	raw, err := hex.DecodeString(c.ChainHexID)
	if err != nil || len(raw) != 1 {
		return 0, errors.Wrapf(errors.ErrInput, "chain hex id must be a single hex encoded byte, got %q", c.ChainHexID)
	}
	return raw[0], nil
}

// DepositAmount returns the parsed deposit value.
func (c *Configuration) DepositAmount() (coin.Amount, error) {
	return coin.ParseAmount(c.Deposit)
}

// FeeAmount returns the parsed network fee value.
func (c *Configuration) FeeAmount() (coin.Amount, error) {
	return coin.ParseAmount(c.Fee)
}

// Validate returns all problems found in the configuration as field errors.
func (c *Configuration) Validate() error {
	var errs error
	if c.HRP() == "" {
		errs = errors.AppendField(errs, "Network", errors.Wrapf(errors.ErrInput, "unknown network %q", c.Network))
	}
	if _, err := c.ChainID(); err != nil {
		errs = errors.AppendField(errs, "ChainHexID", err)
	}
	deposit, depositErr := c.DepositAmount()
	errs = errors.AppendField(errs, "Deposit", depositErr)
	fee, feeErr := c.FeeAmount()
	errs = errors.AppendField(errs, "Fee", feeErr)
	if depositErr == nil && feeErr == nil && fee >= deposit {
		errs = errors.AppendField(errs, "Fee", errors.Wrap(errors.ErrAmount, "fee must be lower than the deposit"))
	}
	if c.Workers <= 0 {
		errs = errors.AppendField(errs, "Workers", errors.Wrap(errors.ErrInput, "must be greater than zero"))
	}
	switch c.Storage.Backend {
	case store.BackendMemory:
	case store.BackendGoLevelDB, store.BackendPebble:
		if c.Storage.Path == "" {
			errs = errors.AppendField(errs, "Storage.Path", errors.ErrEmpty)
		}
	default:
		errs = errors.AppendField(errs, "Storage.Backend", errors.Wrapf(errors.ErrInput, "unknown backend %q", c.Storage.Backend))
	}
	if c.Wallet.URL == "" {
		errs = errors.AppendField(errs, "Wallet.URL", errors.ErrEmpty)
	}
	if c.Wallet.Name == "" {
		errs = errors.AppendField(errs, "Wallet.Name", errors.ErrEmpty)
	}
	if c.Chain.URL == "" {
		errs = errors.AppendField(errs, "Chain.URL", errors.ErrEmpty)
	}
	if c.Chain.BroadcastTimeout <= 0 {
		errs = errors.AppendField(errs, "Chain.BroadcastTimeout", errors.Wrap(errors.ErrInput, "must be positive"))
	}
	if c.Chain.SyncTimeout <= 0 {
		errs = errors.AppendField(errs, "Chain.SyncTimeout", errors.Wrap(errors.ErrInput, "must be positive"))
	}
	if c.HTTP.Addr == "" {
		errs = errors.AppendField(errs, "HTTP.Addr", errors.ErrEmpty)
	}
	if c.HTTP.RateLimit < 0 {
		errs = errors.AppendField(errs, "HTTP.RateLimit", errors.Wrap(errors.ErrInput, "negative"))
	}
	if c.HTTP.RateLimit > 0 && c.HTTP.RateBurst <= 0 {
		errs = errors.AppendField(errs, "HTTP.RateBurst", errors.Wrap(errors.ErrInput, "must be greater than zero"))
	}
	if len(c.Kafka.Brokers) != 0 && strings.TrimSpace(c.Kafka.Topic) == "" {
		errs = errors.AppendField(errs, "Kafka.Topic", errors.ErrEmpty)
	}
	if c.Watch.Interval < 0 {
		errs = errors.AppendField(errs, "Watch.Interval", errors.Wrap(errors.ErrInput, "must not be negative"))
	}
	return errs
}
