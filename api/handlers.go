package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/errors"
	"github.com/iov-one/escrowd/x/escrow"
	"github.com/iov-one/escrowd/x/orders"
	"github.com/iov-one/escrowd/x/session"
)

type handlers struct {
	svc   Escrow
	debug bool
	info  Info
}

func (h *handlers) fail(w http.ResponseWriter, err error) {
	recordErr(w, err)
	writeErr(w, err, h.debug)
}

// decode reads the JSON request body into dest.
func decode(r *http.Request, dest interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		if errors.ErrInput.Is(err) {
			return err
		}
		return errors.Wrapf(errors.ErrInput, "cannot decode request: %s", err)
	}
	return nil
}

func (h *handlers) serveInfo(w http.ResponseWriter, r *http.Request) {
	JSONResp(w, http.StatusOK, h.info)
}

func (h *handlers) createOrder(w http.ResponseWriter, r *http.Request) {
	var req escrow.CreateOrderRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	o, err := h.svc.CreateOrder(r.Context(), &req)
	if err != nil {
		h.fail(w, err)
		return
	}
	JSONResp(w, http.StatusCreated, o)
}

func (h *handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	JSONResp(w, http.StatusOK, o)
}

// listOrders returns orders in statuses given as a comma separated status
// query parameter. Without it, orders in any status are returned.
func (h *handlers) listOrders(w http.ResponseWriter, r *http.Request) {
	statuses := orders.Statuses
	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses = nil
		for _, name := range strings.Split(raw, ",") {
			s, err := orders.ParseStatus(strings.TrimSpace(name))
			if err != nil {
				h.fail(w, err)
				return
			}
			statuses = append(statuses, s)
		}
	}
	h.list(w, r, statuses)
}

func (h *handlers) listStatuses(statuses ...orders.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.list(w, r, statuses)
	}
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request, statuses []orders.Status) {
	res, err := h.svc.ListOrders(r.Context(), statuses...)
	if err != nil {
		h.fail(w, err)
		return
	}
	if res == nil {
		res = []*orders.Order{}
	}
	JSONResp(w, http.StatusOK, res)
}

type paymentRequest struct {
	TransactionID escrowd.HexBytes `json:"transaction_id"`
}

func (h *handlers) submitPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	o, err := h.svc.SubmitPayment(r.Context(), chi.URLParam(r, "orderID"), req.TransactionID)
	if err != nil {
		h.fail(w, err)
		return
	}
	JSONResp(w, http.StatusOK, o)
}

func (h *handlers) markDelivering(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.MarkDelivering(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	JSONResp(w, http.StatusOK, o)
}

func (h *handlers) markRefunding(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.MarkRefunding(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	JSONResp(w, http.StatusOK, o)
}

type commitmentRequest struct {
	Commitment escrowd.HexBytes `json:"commitment"`
}

func (h *handlers) exchangeCommitment(w http.ResponseWriter, r *http.Request) {
	var req commitmentRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	c, err := h.svc.ExchangeCommitment(r.Context(), chi.URLParam(r, "orderID"), req.Commitment)
	if err != nil {
		h.fail(w, err)
		return
	}
	JSONResp(w, http.StatusOK, c)
}

type confirmRequest struct {
	Nonce            escrowd.HexBytes `json:"nonce"`
	PartialSignature escrowd.HexBytes `json:"partial_signature"`
}

func (h *handlers) confirmDelivery(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, h.svc.ConfirmDelivery)
}

func (h *handlers) confirmRefund(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, h.svc.ConfirmRefund)
}

func (h *handlers) confirm(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, orderID string, nonce, partialSig []byte) (*session.Settlement, error),
) {
	var req confirmRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	res, err := fn(r.Context(), chi.URLParam(r, "orderID"), req.Nonce, req.PartialSignature)
	if err != nil {
		h.fail(w, err)
		return
	}
	JSONResp(w, http.StatusOK, res)
}
