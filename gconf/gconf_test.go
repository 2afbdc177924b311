package gconf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iov-one/escrowd/coin"
	"github.com/iov-one/escrowd/errors"
	"github.com/iov-one/escrowd/store"
	"github.com/iov-one/escrowd/weavetest/assert"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load(viper.New(), "")
	require.NoError(t, err)

	require.Equal(t, "dcro", c.HRP())
	id, err := c.ChainID()
	require.NoError(t, err)
	require.Equal(t, byte(0xAB), id)

	deposit, err := c.DepositAmount()
	require.NoError(t, err)
	require.Equal(t, 10*coin.Unit, deposit)
	fee, err := c.FeeAmount()
	require.NoError(t, err)
	require.Equal(t, coin.Amount(1), fee)

	require.Equal(t, 10*time.Second, c.Chain.BroadcastTimeout)
	require.Equal(t, []string{"*"}, c.HTTP.CORSOrigins)
	require.Empty(t, c.Kafka.Brokers)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "escrowd.yaml")
	content := []byte(`
network: testnet
workers: 4
chain:
  url: tcp://chain:26657
  sync_timeout: 2m
kafka:
  brokers: ["kafka:9092"]
`)
	require.NoError(t, os.WriteFile(file, content, 0o600))

	t.Setenv("ESCROWD_WORKERS", "8")
	t.Setenv("ESCROWD_STORAGE_BACKEND", "memory")

	c, err := Load(viper.New(), file)
	require.NoError(t, err)
	require.Equal(t, "tcro", c.HRP())
	require.Equal(t, 8, c.Workers, "environment overrides the file")
	require.Equal(t, "tcp://chain:26657", c.Chain.URL)
	require.Equal(t, 2*time.Minute, c.Chain.SyncTimeout)
	require.Equal(t, store.BackendMemory, c.Storage.Backend)
	require.Equal(t, []string{"kafka:9092"}, c.Kafka.Brokers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.toml"))
	assert.IsErr(t, errors.ErrInput, err)
}

func TestConfigurationValidate(t *testing.T) {
	valid := func() Configuration {
		v := viper.New()
		SetDefaults(v)
		var c Configuration
		require.NoError(t, v.Unmarshal(&c))
		return c
	}

	cases := map[string]struct {
		mutate    func(*Configuration)
		wantField string
		wantErr   *errors.Error
	}{
		"unknown network": {
			mutate:    func(c *Configuration) { c.Network = "moon" },
			wantField: "Network",
			wantErr:   errors.ErrInput,
		},
		"chain id too long": {
			mutate:    func(c *Configuration) { c.ChainHexID = "ABCD" },
			wantField: "ChainHexID",
			wantErr:   errors.ErrInput,
		},
		"fee above deposit": {
			mutate:    func(c *Configuration) { c.Fee = "11" },
			wantField: "Fee",
			wantErr:   errors.ErrAmount,
		},
		"deposit not a number": {
			mutate:    func(c *Configuration) { c.Deposit = "ten" },
			wantField: "Deposit",
			wantErr:   errors.ErrAmount,
		},
		"no workers": {
			mutate:    func(c *Configuration) { c.Workers = 0 },
			wantField: "Workers",
			wantErr:   errors.ErrInput,
		},
		"unknown backend": {
			mutate:    func(c *Configuration) { c.Storage.Backend = "sqlite" },
			wantField: "Storage.Backend",
			wantErr:   errors.ErrInput,
		},
		"pebble without path": {
			mutate: func(c *Configuration) {
				c.Storage.Backend = store.BackendPebble
				c.Storage.Path = ""
			},
			wantField: "Storage.Path",
			wantErr:   errors.ErrEmpty,
		},
		"kafka without topic": {
			mutate: func(c *Configuration) {
				c.Kafka.Brokers = []string{"localhost:9092"}
				c.Kafka.Topic = ""
			},
			wantField: "Kafka.Topic",
			wantErr:   errors.ErrEmpty,
		},
		"no broadcast timeout": {
			mutate:    func(c *Configuration) { c.Chain.BroadcastTimeout = 0 },
			wantField: "Chain.BroadcastTimeout",
			wantErr:   errors.ErrInput,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			c := valid()
			require.NoError(t, c.Validate())
			tc.mutate(&c)
			assert.FieldError(t, c.Validate(), tc.wantField, tc.wantErr)
		})
	}
}

type pinned struct {
	Deposit uint64
}

func (p *pinned) Validate() error {
	if p.Deposit == 0 {
		return errors.Wrap(errors.ErrEmpty, "deposit")
	}
	return nil
}

func TestPin(t *testing.T) {
	db := store.NewMemStore()

	assert.Nil(t, Pin(db, "settlement", &pinned{Deposit: 10}))
	assert.Nil(t, Pin(db, "settlement", &pinned{Deposit: 10}))
	assert.IsErr(t, errors.ErrState, Pin(db, "settlement", &pinned{Deposit: 11}))

	var got pinned
	assert.Nil(t, LoadStored(db, "settlement", &got))
	assert.Equal(t, pinned{Deposit: 10}, got)

	assert.IsErr(t, errors.ErrNotFound, LoadStored(db, "other", &got))
	assert.IsErr(t, errors.ErrEmpty, Pin(db, "other", &pinned{}))
}
