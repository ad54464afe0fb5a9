package httpapi

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/cause_registry/internal/app/domain/cause"
	"github.com/R3E-Network/cause_registry/internal/app/services/causes"
	"github.com/R3E-Network/cause_registry/internal/app/storage/memory"
	"github.com/R3E-Network/cause_registry/internal/gasbank"
	"github.com/R3E-Network/cause_registry/internal/httputil"
	"github.com/R3E-Network/cause_registry/internal/logging"
	"github.com/R3E-Network/cause_registry/internal/middleware"
)

var (
	ownerAddr  = cause.FormatAddress(util.Uint160{0xAA})
	donorAddr  = cause.FormatAddress(util.Uint160{0x01})
	payoutAddr = cause.FormatAddress(util.Uint160{0xCC})
)

type testAPI struct {
	t       *testing.T
	handler http.Handler
	key     *rsa.PrivateKey
	ledger  *gasbank.Manager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	log := logging.NewDiscard()
	ledger := gasbank.NewManager(gasbank.NewMemoryStore(), log)
	registry := causes.New(memory.New(), ledger, log)

	owner, err := cause.ParseAddress(ownerAddr)
	require.NoError(t, err)
	require.NoError(t, registry.Initialize(context.Background(), owner))

	handler := NewHandler(Options{
		Registry: registry,
		Ledger:   ledger,
		Auth:     middleware.NewAuthMiddleware(&key.PublicKey, "", log),
		Logger:   log,
	})
	return &testAPI{t: t, handler: handler, key: key, ledger: ledger}
}

func (a *testAPI) token(address string) string {
	a.t.Helper()
	claims := &middleware.Claims{
		NeoAddress: address,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.key)
	require.NoError(a.t, err)
	return s
}

func (a *testAPI) do(method, path, caller string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if caller != "" {
		req.Header.Set("Authorization", "Bearer "+a.token(caller))
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env httputil.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Error.Code
}

func causeBody(name string) map[string]interface{} {
	return map[string]interface{}{
		"name":           name,
		"description":    "clean water",
		"goal":           1000,
		"wallet_address": payoutAddr,
		"is_active":      true,
	}
}

func TestCauseLifecycle(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/causes", ownerAddr, causeBody("wells"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created map[string]uint64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, uint64(1), created["id"])

	rec = api.do(http.MethodPost, "/gasbank/accounts", ownerAddr, map[string]string{"address": payoutAddr})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = api.do(http.MethodPost, "/gasbank/deposits", ownerAddr, map[string]interface{}{
		"address": donorAddr, "amount": 100, "tx_hash": "0xdead",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPost, "/causes/1/donations", donorAddr, map[string]uint64{"amount": 40})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var receipt donationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	require.NotEmpty(t, receipt.Reference)
	require.Equal(t, donorAddr, receipt.Donor)

	rec = api.do(http.MethodGet, "/causes/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got causeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, uint64(40), got.Raised)
	require.Equal(t, uint64(1), got.DonorsCount)
	require.Equal(t, payoutAddr, got.WalletAddress)

	update := causeBody("wells v2")
	rec = api.do(http.MethodPut, "/causes/1", ownerAddr, update)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = api.do(http.MethodGet, "/causes/1", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "wells v2", got.Name)
	require.Equal(t, uint64(40), got.Raised)

	rec = api.do(http.MethodGet, "/gasbank/balance", donorAddr, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bal balanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bal))
	require.Equal(t, int64(60), bal.Available)

	rec = api.do(http.MethodGet, "/causes", "", nil)
	require.JSONEq(t, `{"ids":[1]}`, rec.Body.String())

	rec = api.do(http.MethodGet, "/events?after=0&limit=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var evs struct {
		Events []cause.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &evs))
	kinds := make([]cause.EventKind, 0, len(evs.Events))
	for _, ev := range evs.Events {
		kinds = append(kinds, ev.Kind)
	}
	require.Equal(t, []cause.EventKind{
		cause.EventOwnershipTransferred,
		cause.EventCauseAdded,
		cause.EventDonationReceived,
		cause.EventCauseUpdated,
	}, kinds)
}

func TestErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/causes", ownerAddr, causeBody("wells")).Code)

	inactive := causeBody("closed")
	inactive["is_active"] = false
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/causes", ownerAddr, inactive).Code)

	noWallet := causeBody("nowhere")
	delete(noWallet, "wallet_address")

	cases := []struct {
		name   string
		method string
		path   string
		caller string
		body   interface{}
		status int
		code   string
	}{
		{"no token", http.MethodPost, "/causes", "", causeBody("x"), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"not owner", http.MethodPost, "/causes", donorAddr, causeBody("x"), http.StatusForbidden, "UNAUTHORIZED"},
		{"zero wallet", http.MethodPost, "/causes", ownerAddr, noWallet, http.StatusBadRequest, "INVALID_WALLET_ADDRESS"},
		{"bad wallet", http.MethodPost, "/causes", ownerAddr, map[string]string{"wallet_address": "nope"}, http.StatusBadRequest, "INVALID_FORMAT"},
		{"unknown field", http.MethodPost, "/causes", ownerAddr, map[string]string{"colour": "red"}, http.StatusBadRequest, "INVALID_FORMAT"},
		{"missing cause", http.MethodGet, "/causes/99", "", nil, http.StatusNotFound, "CAUSE_NOT_FOUND"},
		{"bad id", http.MethodGet, "/causes/abc", "", nil, http.StatusBadRequest, "INVALID_FORMAT"},
		{"zero amount", http.MethodPost, "/causes/1/donations", donorAddr, map[string]uint64{"amount": 0}, http.StatusBadRequest, "ZERO_AMOUNT"},
		{"inactive", http.MethodPost, "/causes/2/donations", donorAddr, map[string]uint64{"amount": 5}, http.StatusConflict, "CAUSE_INACTIVE"},
		{"no funds", http.MethodPost, "/causes/1/donations", donorAddr, map[string]uint64{"amount": 5}, http.StatusBadGateway, "TRANSFER_FAILED"},
		{"zero owner", http.MethodPost, "/owner/transfer", ownerAddr, map[string]string{"new_owner": cause.FormatAddress(util.Uint160{})}, http.StatusBadRequest, "INVALID_OWNER"},
		{"deposit by stranger", http.MethodPost, "/gasbank/deposits", donorAddr, map[string]interface{}{"address": donorAddr, "amount": 1, "tx_hash": "0x1"}, http.StatusForbidden, "UNAUTHORIZED"},
		{"bad after", http.MethodGet, "/events?after=-1", "", nil, http.StatusBadRequest, "INVALID_FORMAT"},
		{"no balance", http.MethodGet, "/gasbank/balance", donorAddr, nil, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := api.do(tc.method, tc.path, tc.caller, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			require.Equal(t, tc.code, errorCode(t, rec))
		})
	}
}

func TestOwnershipEndpoints(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/owner", "", nil)
	require.JSONEq(t, `{"owner":"`+ownerAddr+`","initialized":true}`, rec.Body.String())

	rec = api.do(http.MethodPost, "/owner/transfer", ownerAddr, map[string]string{"new_owner": donorAddr})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPost, "/causes", ownerAddr, causeBody("old owner"))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodPost, "/owner/renounce", donorAddr, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = api.do(http.MethodGet, "/owner", "", nil)
	require.JSONEq(t, `{"initialized":true}`, rec.Body.String())

	rec = api.do(http.MethodPost, "/causes", donorAddr, causeBody("nobody"))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get(middleware.TraceHeader))

	rec = api.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "cause_registry_http_requests_total")

	rec = api.do(http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSuspendedPayoutAccountRejectsDonations(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/causes", ownerAddr, causeBody("wells")).Code)

	_, err := api.ledger.OpenAccount(ctx, payoutAddr)
	require.NoError(t, err)
	_, err = api.ledger.Deposit(ctx, donorAddr, 50, "0xbeef")
	require.NoError(t, err)

	rec := api.do(http.MethodPost, "/gasbank/accounts/"+payoutAddr+"/suspend", ownerAddr, map[string]bool{"suspended": true})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPost, "/causes/1/donations", donorAddr, map[string]uint64{"amount": 10})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "TRANSFER_FAILED", errorCode(t, rec))

	_, _, available, err := api.ledger.GetBalance(ctx, donorAddr)
	require.NoError(t, err)
	require.Equal(t, int64(50), available)

	rec = api.do(http.MethodGet, "/causes/1", "", nil)
	var got causeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Zero(t, got.Raised)
}
