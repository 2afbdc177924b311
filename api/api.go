/*
Package api exposes the escrow operations over HTTP.

All binary values are hex encoded and amounts are decimal strings. Failures
are returned as {"error": "..."} with a status code derived from the error
kind. Internal errors are redacted unless running in debug mode.
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/iov-one/escrowd/errors"
	"github.com/iov-one/escrowd/x/escrow"
	"github.com/iov-one/escrowd/x/orders"
	"github.com/iov-one/escrowd/x/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/tendermint/tendermint/libs/log"
)

// Escrow is the set of operations served. escrow.Service implements it.
type Escrow interface {
	CreateOrder(ctx context.Context, req *escrow.CreateOrderRequest) (*orders.Order, error)
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	ListOrders(ctx context.Context, statuses ...orders.Status) ([]*orders.Order, error)
	SubmitPayment(ctx context.Context, orderID string, txID []byte) (*orders.Order, error)
	MarkDelivering(ctx context.Context, orderID string) (*orders.Order, error)
	MarkRefunding(ctx context.Context, orderID string) (*orders.Order, error)
	ExchangeCommitment(ctx context.Context, orderID string, commitment []byte) (*session.Commitment, error)
	ConfirmDelivery(ctx context.Context, orderID string, nonce, partialSig []byte) (*session.Settlement, error)
	ConfirmRefund(ctx context.Context, orderID string, nonce, partialSig []byte) (*session.Settlement, error)
}

var _ Escrow = (*escrow.Service)(nil)

// Info is returned by the info endpoint.
type Info struct {
	Version    string `json:"version"`
	Network    string `json:"network"`
	ChainHexID string `json:"chain_hex_id"`
	Deposit    string `json:"deposit"`
	Fee        string `json:"fee"`
}

// Config holds the HTTP layer settings.
type Config struct {
	// Debug exposes internal error details to clients.
	Debug       bool
	CORSOrigins []string
	// RateLimit of requests per second per client. Zero disables it.
	RateLimit float64
	RateBurst int
	// TrustProxy rate limits clients by the X-Forwarded-For address.
	TrustProxy bool
	Info       Info
}

// NewRouter returns the HTTP handler of the API. Metrics are registered
// with reg and served from /metrics.
func NewRouter(svc Escrow, logger log.Logger, reg *prometheus.Registry, conf Config) http.Handler {
	h := &handlers{svc: svc, debug: conf.Debug, info: conf.Info}
	m := newMetrics(reg)

	r := chi.NewRouter()
	r.Use(withRequestID)
	r.Use(withLogging(logger, m, conf.Debug))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: conf.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", requestIDHeader},
	}).Handler)
	if conf.RateLimit > 0 {
		r.Use(newRateLimiter(conf.RateLimit, conf.RateBurst, conf.TrustProxy).middleware())
	}
	r.Use(limitBody)

	r.Get("/info", h.serveInfo)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Post("/payment", h.submitPayment)
			r.Post("/deliver", h.markDelivering)
			r.Post("/refund", h.markRefunding)
			r.Post("/commitment", h.exchangeCommitment)
			r.Post("/confirm-delivery", h.confirmDelivery)
			r.Post("/confirm-refund", h.confirmRefund)
		})
	})

	r.Get("/order/pending", h.listStatuses(orders.PendingPayment))
	r.Get("/order/outstanding", h.listStatuses(orders.Delivering, orders.Refunding))
	r.Get("/order/completed", h.listStatuses(orders.Completed, orders.Refunded))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		JSONErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		JSONErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// JSONResp writes content as a JSON encoded response.
func JSONResp(w http.ResponseWriter, code int, content interface{}) {
	b, err := json.MarshalIndent(content, "", "\t")
	if err != nil {
		code = http.StatusInternalServerError
		b = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

// JSONErr writes a single error as JSON encoded response.
func JSONErr(w http.ResponseWriter, code int, errText string) {
	JSONResp(w, code, struct {
		Error string `json:"error"`
	}{Error: errText})
}

// writeErr responds with the status and message safe for the error kind.
// Invalid requests also list the message of every invalid field.
func writeErr(w http.ResponseWriter, err error, debug bool) {
	code, msg := errors.HTTPInfo(err, debug)
	if code != http.StatusBadRequest {
		JSONErr(w, code, msg)
		return
	}
	JSONResp(w, code, struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields,omitempty"`
	}{Error: msg, Fields: errors.Fields(err)})
}
