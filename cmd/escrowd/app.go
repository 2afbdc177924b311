package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/api"
	"github.com/iov-one/escrowd/chain"
	"github.com/iov-one/escrowd/errors"
	"github.com/iov-one/escrowd/events"
	"github.com/iov-one/escrowd/gconf"
	"github.com/iov-one/escrowd/store"
	"github.com/iov-one/escrowd/wallet"
	"github.com/iov-one/escrowd/worker"
	"github.com/iov-one/escrowd/x/escrow"
	"github.com/iov-one/escrowd/x/orders"
	"github.com/iov-one/escrowd/x/session"
	"github.com/iov-one/escrowd/x/settlement"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	cmn "github.com/tendermint/tendermint/libs/common"
	"github.com/tendermint/tendermint/libs/log"
)

// settlementPin is the name under which the settlement parameters are
// pinned in the database.
const settlementPin = "settlement"

// app holds all long lived components of the daemon.
type app struct {
	conf    *gconf.Configuration
	logger  log.Logger
	db      store.CloseableKVStore
	events  events.Publisher
	service *escrow.Service
	watcher *escrow.Watcher
	handler http.Handler
}

// newApp wires all components on top of given wallet and chain clients.
// Settlement parameters are pinned in the database on first start. A
// configuration that changes them is refused, because sessions already
// opened could no longer be finalized.
func newApp(conf *gconf.Configuration, logger log.Logger, w wallet.Service, c chain.Client) (_ *app, err error) {
	params, err := settlementParams(conf)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(conf.Storage.Backend, conf.Storage.Path)
	if err != nil {
		return nil, errors.Wrap(err, "open storage")
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()
	if err := gconf.Pin(db, settlementPin, &params); err != nil {
		return nil, errors.Wrap(err, "settlement parameters")
	}

	var pub events.Publisher = events.Nop{}
	if len(conf.Kafka.Brokers) != 0 {
		pub = events.NewKafkaPublisher(conf.Kafka.Brokers, conf.Kafka.Topic)
	}

	pool := worker.NewPool(conf.Workers)
	om := orders.NewManager(orders.NewBucket(db), pool, pub)
	coord := session.NewCoordinator(om, session.NewBucket(db), w, c, pool, params)
	svc := escrow.NewService(om, coord, w, c, pool, conf.HRP())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "escrowd",
			Name:      "workers_in_flight",
			Help:      "Number of busy workers.",
		}, func() float64 { return float64(pool.InFlight()) }),
	)

	handler := api.NewRouter(svc, logger.With("module", "api"), reg, api.Config{
		Debug:       conf.Debug,
		CORSOrigins: conf.HTTP.CORSOrigins,
		RateLimit:   conf.HTTP.RateLimit,
		RateBurst:   conf.HTTP.RateBurst,
		TrustProxy:  conf.HTTP.TrustProxy,
		Info: api.Info{
			Version:    escrowd.Version(),
			Network:    conf.Network,
			ChainHexID: conf.ChainHexID,
			Deposit:    params.Deposit.String(),
			Fee:        params.Fee.String(),
		},
	})

	return &app{
		conf:    conf,
		logger:  logger,
		db:      db,
		events:  pub,
		service: svc,
		watcher: escrow.NewWatcher(om, c, pool),
		handler: handler,
	}, nil
}

func settlementParams(conf *gconf.Configuration) (settlement.Params, error) {
	chainID, err := conf.ChainID()
	if err != nil {
		return settlement.Params{}, err
	}
	p := settlement.DefaultParams(chainID)
	if p.Deposit, err = conf.DepositAmount(); err != nil {
		return p, err
	}
	if p.Fee, err = conf.FeeAmount(); err != nil {
		return p, err
	}
	return p, p.Validate()
}

// Close releases the storage and the event publisher.
func (a *app) Close() error {
	var errs error
	if err := a.events.Close(); err != nil {
		errs = errors.Append(errs, errors.Wrap(errors.ErrUpstream, err.Error()))
	}
	if err := a.db.Close(); err != nil {
		errs = errors.Append(errs, errors.Wrap(errors.ErrDatabase, err.Error()))
	}
	return errs
}

func newLogger(level string) (log.Logger, error) {
	logger := log.NewTMLogger(log.NewSyncWriter(os.Stdout)).With("module", "escrowd")
	opt, err := log.AllowLevel(level)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	return log.NewFilter(logger, opt), nil
}

// start runs the daemon until a termination signal is received or the HTTP
// server fails.
func start(conf *gconf.Configuration) error {
	logger, err := newLogger(conf.LogLevel)
	if err != nil {
		return err
	}

	w := wallet.NewRPCClient(conf.Wallet.URL, conf.Wallet.Name, conf.Wallet.Passphrase, conf.Wallet.Timeout)
	c := chain.WithTimeouts(chain.NewTendermintClient(conf.Chain.URL), conf.Chain.BroadcastTimeout, conf.Chain.SyncTimeout)

	a, err := newApp(conf, logger, w, c)
	if err != nil {
		return err
	}
	return a.run(conf.HTTP.Addr, conf.Watch.Interval)
}

// run serves the HTTP API and runs the watcher when interval is not zero. A
// termination signal shuts the server down, releases all resources and exits
// the process. run returns only when the server cannot serve, after the
// resources are released.
func (a *app) run(addr string, interval time.Duration) error {
	ctx, cancel := context.WithCancel(escrowd.WithLogger(context.Background(), a.logger.With("module", "watcher")))
	defer cancel()
	if interval > 0 {
		go a.watcher.Run(ctx, interval)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	failed := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP API", "addr", addr, "network", a.conf.Network)
		// A closed server means a signal is being handled and the process
		// exits from the signal handler.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			failed <- err
		}
	}()

	cmn.TrapSignal(a.logger, func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("HTTP API shutdown", "err", err)
		}
		if err := a.Close(); err != nil {
			a.logger.Error("cannot release resources", "err", err)
		}
	})

	err := <-failed
	a.logger.Error("HTTP API failed", "err", err)
	if cerr := a.Close(); cerr != nil {
		a.logger.Error("cannot release resources", "err", cerr)
	}
	return errors.Wrapf(errors.ErrInput, "cannot serve on %q: %s", addr, err)
}
