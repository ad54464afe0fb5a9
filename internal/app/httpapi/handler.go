package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/cause_registry/internal/app/domain/cause"
	"github.com/R3E-Network/cause_registry/internal/app/metrics"
	"github.com/R3E-Network/cause_registry/internal/app/services/causes"
	"github.com/R3E-Network/cause_registry/internal/errors"
	"github.com/R3E-Network/cause_registry/internal/gasbank"
	"github.com/R3E-Network/cause_registry/internal/httputil"
	"github.com/R3E-Network/cause_registry/internal/logging"
	"github.com/R3E-Network/cause_registry/internal/middleware"
)

const maxBodyBytes = 1 << 20

// Options wires the API to the application services. Ledger and Stream are
// optional; their routes answer 404 when nil.
type Options struct {
	Registry    *causes.Registry
	Ledger      *gasbank.Manager
	Stream      http.Handler
	Auth        *middleware.AuthMiddleware
	RateLimiter *middleware.RateLimiter
	CORS        *middleware.CORSMiddleware
	Logger      *logging.Logger
}

// handler bundles HTTP endpoints for the registry.
type handler struct {
	registry *causes.Registry
	ledger   *gasbank.Manager
	log      *logging.Logger
}

// NewHandler returns the registry REST API.
func NewHandler(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logging.New("httpapi", "info", "json")
	}
	h := &handler{registry: opts.Registry, ledger: opts.Ledger, log: log}

	authed := func(fn http.HandlerFunc) http.Handler {
		if opts.Auth == nil {
			return fn
		}
		return opts.Auth.Handler(fn)
	}

	r := mux.NewRouter()
	r.Use(middleware.MetricsMiddleware())
	if opts.RateLimiter != nil {
		r.Use(opts.RateLimiter.Handler)
	}

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/causes", h.listCauses).Methods(http.MethodGet)
	r.Handle("/causes", authed(h.addCause)).Methods(http.MethodPost)
	r.HandleFunc("/causes/{id}", h.getCause).Methods(http.MethodGet)
	r.Handle("/causes/{id}", authed(h.updateCause)).Methods(http.MethodPut)
	r.Handle("/causes/{id}/donations", authed(h.donate)).Methods(http.MethodPost)

	r.HandleFunc("/owner", h.owner).Methods(http.MethodGet)
	r.Handle("/owner/transfer", authed(h.transferOwnership)).Methods(http.MethodPost)
	r.Handle("/owner/renounce", authed(h.renounceOwnership)).Methods(http.MethodPost)

	r.HandleFunc("/events", h.events).Methods(http.MethodGet)
	if opts.Stream != nil {
		r.Handle("/events/stream", opts.Stream).Methods(http.MethodGet)
	}

	if opts.Ledger != nil {
		r.Handle("/gasbank/balance", authed(h.balance)).Methods(http.MethodGet)
		r.Handle("/gasbank/deposits", authed(h.deposit)).Methods(http.MethodPost)
		r.Handle("/gasbank/accounts", authed(h.openAccount)).Methods(http.MethodPost)
		r.Handle("/gasbank/accounts/{address}/suspend", authed(h.suspendAccount)).Methods(http.MethodPost)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteError(w, req, errors.NotFound("route", req.URL.Path))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteError(w, req, errors.New("METHOD_NOT_ALLOWED", "Method not allowed", http.StatusMethodNotAllowed, nil))
	})

	var out http.Handler = r
	if opts.CORS != nil {
		out = opts.CORS.Handler(out)
	}
	return middleware.NewTracingMiddleware(log).Handler(out)
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// Causes
// =============================================================================

func (h *handler) listCauses(w http.ResponseWriter, r *http.Request) {
	ids, err := h.registry.GetAllCauseIDs(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]uint64{"ids": ids})
}

func (h *handler) getCause(w http.ResponseWriter, r *http.Request) {
	id, err := causeID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.registry.GetCause(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newCauseResponse(c))
}

func (h *handler) addCause(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAddress(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := decodeParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := h.registry.AddCause(r.Context(), caller, p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

func (h *handler) updateCause(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAddress(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := causeID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := decodeParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.registry.UpdateCause(r.Context(), caller, id, p); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) donate(w http.ResponseWriter, r *http.Request) {
	donor, err := callerAddress(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := causeID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var payload struct {
		Amount uint64 `json:"amount"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	rc, err := h.registry.DonateToCause(r.Context(), donor, id, payload.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, donationResponse{
		CauseID:   id,
		Donor:     cause.FormatAddress(donor),
		Amount:    payload.Amount,
		Reference: rc.Reference,
	})
}

// =============================================================================
// Ownership
// =============================================================================

func (h *handler) owner(w http.ResponseWriter, r *http.Request) {
	owner, ok, err := h.registry.Owner(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := ownerResponse{Initialized: ok}
	if ok && !cause.IsZero(owner) {
		resp.Owner = cause.FormatAddress(owner)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *handler) transferOwnership(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAddress(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var payload struct {
		NewOwner string `json:"new_owner"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	next, err := parseAddressField("new_owner", payload.NewOwner)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.registry.TransferOwnership(r.Context(), caller, next); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) renounceOwnership(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAddress(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.registry.RenounceOwnership(r.Context(), caller); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Events
// =============================================================================

func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after uint64
	if s := q.Get("after"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			h.fail(w, r, errors.InvalidFormat("after", "must be an unsigned integer"))
			return
		}
		after = v
	}
	limit := 0
	if s := q.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			h.fail(w, r, errors.InvalidFormat("limit", "must be a non-negative integer"))
			return
		}
		limit = v
	}

	evs, err := h.registry.Events(r.Context(), after, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]cause.Event{"events": evs})
}

// =============================================================================
// Gas bank
// =============================================================================

func (h *handler) balance(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAddress(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	addr := cause.FormatAddress(caller)
	balance, reserved, available, err := h.ledger.GetBalance(r.Context(), addr)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, balanceResponse{
		Address:   addr,
		Balance:   balance,
		Reserved:  reserved,
		Available: available,
	})
}

func (h *handler) deposit(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAddress(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.requireOwner(r, caller); err != nil {
		h.fail(w, r, err)
		return
	}

	var payload struct {
		Address string `json:"address"`
		Amount  int64  `json:"amount"`
		TxHash  string `json:"tx_hash"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	addr, err := parseAddressField("address", payload.Address)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if payload.TxHash == "" {
		h.fail(w, r, errors.InvalidFormat("tx_hash", "required"))
		return
	}

	entry, err := h.ledger.Deposit(r.Context(), cause.FormatAddress(addr), payload.Amount, payload.TxHash)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

func (h *handler) openAccount(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAddress(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.requireOwner(r, caller); err != nil {
		h.fail(w, r, err)
		return
	}
	var payload struct {
		Address string `json:"address"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	addr, err := parseAddressField("address", payload.Address)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	acct, err := h.ledger.OpenAccount(r.Context(), cause.FormatAddress(addr))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, acct)
}

func (h *handler) suspendAccount(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAddress(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.requireOwner(r, caller); err != nil {
		h.fail(w, r, err)
		return
	}
	addr, err := parseAddressField("address", mux.Vars(r)["address"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var payload struct {
		Suspended bool `json:"suspended"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.ledger.Suspend(r.Context(), cause.FormatAddress(addr), payload.Suspended); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Helpers
// =============================================================================

// requireOwner guards ledger administration, which the registry itself does
// not own.
func (h *handler) requireOwner(r *http.Request, caller util.Uint160) error {
	owner, ok, err := h.registry.Owner(r.Context())
	if err != nil {
		return err
	}
	if !ok || cause.IsZero(owner) || !owner.Equals(caller) {
		return causes.ErrUnauthorized
	}
	return nil
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	se := toServiceError(err)
	if se.HTTPStatus >= http.StatusInternalServerError {
		h.log.WithContext(r.Context()).WithError(err).Error("request failed")
	}
	httputil.WriteError(w, r, se)
}

func causeID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, errors.InvalidFormat("id", "must be an unsigned integer")
	}
	return id, nil
}

// callerAddress returns the authenticated caller as a script hash.
func callerAddress(r *http.Request) (util.Uint160, error) {
	raw := logging.GetUserID(r.Context())
	if raw == "" {
		return util.Uint160{}, errors.Unauthorized("")
	}
	addr, err := cause.ParseAddress(raw)
	if err != nil {
		return util.Uint160{}, errors.InvalidToken(err).WithDetails("reason", "neo_address is not a Neo address")
	}
	return addr, nil
}

func parseAddressField(field, raw string) (util.Uint160, error) {
	addr, err := cause.ParseAddress(raw)
	if err != nil {
		return util.Uint160{}, errors.InvalidFormat(field, "must be a Neo address or 0x script hash")
	}
	return addr, nil
}

func decodeParams(r *http.Request) (cause.Params, error) {
	var payload causeParams
	if err := decodeJSON(r, &payload); err != nil {
		return cause.Params{}, err
	}
	return payload.toParams()
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.InvalidFormat("body", err.Error())
	}
	return nil
}
