package httpserver

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ruteri/land-registry/api"
	"github.com/ruteri/land-registry/cryptoutils"
	"github.com/ruteri/land-registry/events"
	"github.com/ruteri/land-registry/governance"
	"github.com/ruteri/land-registry/interfaces"
	"github.com/ruteri/land-registry/marketplace"
	"github.com/ruteri/land-registry/registry"
	"github.com/ruteri/land-registry/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	adminAddr = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	buyerA    = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	buyerB    = common.HexToAddress("0x0000000000000000000000000000000000000a22")
)

type MockCheckpointer struct {
	mock.Mock
}

func (m *MockCheckpointer) Save(ctx context.Context) (interfaces.ContentID, error) {
	args := m.Called(ctx)
	return args.Get(0).(interfaces.ContentID), args.Error(1)
}

type testEnv struct {
	ts      *httptest.Server
	srv     *Server
	reg     *registry.Registry
	ledger  *settlement.Ledger
	journal *events.Journal
}

func setupServer(t *testing.T, requireSignatures bool, checkpointer Checkpointer) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := registry.DefaultConfig(adminAddr)
	gate := governance.NewGate(cfg.Admin, cfg.Escrow)
	journal := events.NewJournal(logger)
	reg, err := registry.New(cfg, gate, journal, logger)
	require.NoError(t, err)
	ledger := settlement.NewLedger(logger)
	market := marketplace.New(reg, gate, ledger, logger)

	handler := NewHandler(reg, market, ledger, journal, requireSignatures, logger)
	admin := NewAdminHandler(handler, checkpointer, logger)

	srv, err := New(&api.HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      logger,
		GracefulShutdownDuration: time.Second,
	}, handler, admin)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, srv: srv, reg: reg, ledger: ledger, journal: journal}
}

func (e *testEnv) do(t *testing.T, method, path string, caller *common.Address, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if caller != nil {
		req.Header.Set(api.CallerHeader, caller.Hex())
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func ether(n int64) *hexutil.Big {
	return (*hexutil.Big)(new(big.Int).Mul(big.NewInt(n), big.NewInt(params.Ether)))
}

func TestHandler_Collection(t *testing.T) {
	env := setupServer(t, false, nil)

	resp := env.do(t, http.MethodGet, "/api/collection", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(api.RequestIDHeader))

	c := decode[api.CollectionResponse](t, resp)
	assert.Equal(t, "VWorld", c.Name)
	assert.Equal(t, "VW", c.Symbol)
	assert.Equal(t, uint64(3), c.MaxSupply)
	assert.Equal(t, uint64(0), c.TotalMinted)
	assert.Equal(t, big.NewInt(params.Ether), c.ListingPrice.ToInt())
	assert.Equal(t, adminAddr, c.Admin)
	assert.Equal(t, env.reg.Escrow(), c.Escrow)
}

func TestHandler_MintAndRead(t *testing.T) {
	env := setupServer(t, false, nil)

	resp := env.do(t, http.MethodPost, "/api/lands", &adminAddr, api.MintRequest{Metadata: "1,2,3"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, interfaces.ParcelID(1), decode[api.MintResponse](t, resp).ID)

	resp = env.do(t, http.MethodGet, "/api/lands/1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	parcel := decode[api.ParcelResponse](t, resp)
	assert.Equal(t, "1,2,3", parcel.Metadata)
	require.NotNil(t, parcel.Coordinates)
	assert.Equal(t, interfaces.Coordinates{X: 1, Y: 2, Area: 3}, *parcel.Coordinates)
	assert.True(t, parcel.Listed)
	assert.Equal(t, adminAddr, parcel.ListedBy)
	assert.Equal(t, []common.Address{env.reg.Escrow()}, parcel.OwnershipHistory)

	resp = env.do(t, http.MethodGet, "/api/lands/1/owner", nil, nil)
	assert.Equal(t, env.reg.Escrow(), decode[api.OwnerResponse](t, resp).Owner)

	resp = env.do(t, http.MethodGet, "/api/lands/1/uri", nil, nil)
	uri := decode[api.URIResponse](t, resp)
	assert.Equal(t, "1,2,3", uri.URI)
	require.NotNil(t, uri.Coordinates)
	assert.Equal(t, interfaces.Coordinates{X: 1, Y: 2, Area: 3}, *uri.Coordinates)

	resp = env.do(t, http.MethodGet, "/api/lands/total", nil, nil)
	assert.Equal(t, uint64(1), decode[api.TotalResponse](t, resp).Total)

	resp = env.do(t, http.MethodGet, "/api/lands?listed=true", nil, nil)
	assert.Len(t, decode[[]api.ParcelResponse](t, resp), 1)
}

func TestHandler_TokenURIOpaqueMetadata(t *testing.T) {
	env := setupServer(t, false, nil)

	resp := env.do(t, http.MethodPost, "/api/lands", &adminAddr, api.MintRequest{Metadata: "ipfs://parcel"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/lands/1/uri", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	uri := decode[api.URIResponse](t, resp)
	assert.Equal(t, "ipfs://parcel", uri.URI)
	assert.Nil(t, uri.Coordinates)
}

func TestHandler_MintErrors(t *testing.T) {
	env := setupServer(t, false, nil)

	resp := env.do(t, http.MethodPost, "/api/lands", &buyerA, api.MintRequest{Metadata: "1,2,3"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "caller is not the owner", decode[api.ErrorResponse](t, resp).Error)

	resp = env.do(t, http.MethodPost, "/api/lands", nil, api.MintRequest{Metadata: "1,2,3"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	for i := 0; i < 3; i++ {
		resp = env.do(t, http.MethodPost, "/api/lands", &adminAddr, api.MintRequest{Metadata: "sample URI"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	resp = env.do(t, http.MethodPost, "/api/lands", &adminAddr, api.MintRequest{Metadata: "sample URI"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "you can't mint more land !, maxID is reached !", decode[api.ErrorResponse](t, resp).Error)
}

func TestHandler_ReadErrors(t *testing.T) {
	env := setupServer(t, false, nil)

	resp := env.do(t, http.MethodGet, "/api/lands/1", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/api/lands/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/api/lands?listed=maybe", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/api/accounts/0x1234", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_PurchaseResellFlow(t *testing.T) {
	env := setupServer(t, false, nil)

	resp := env.do(t, http.MethodPost, "/api/lands", &adminAddr, api.MintRequest{Metadata: "1,2,3"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/admin/accounts/"+buyerA.Hex()+"/credit", &adminAddr, api.CreditRequest{Amount: ether(5)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ether(5).ToInt(), decode[api.AccountResponse](t, resp).Balance.ToInt())

	resp = env.do(t, http.MethodPost, "/api/admin/accounts/"+buyerB.Hex()+"/credit", &adminAddr, api.CreditRequest{Amount: ether(5)})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Wrong price leaves the parcel listed.
	resp = env.do(t, http.MethodPost, "/api/lands/1/purchase", &buyerA, api.PurchaseRequest{Amount: ether(2)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "submit the asking price", decode[api.ErrorResponse](t, resp).Error)

	resp = env.do(t, http.MethodPost, "/api/lands/4/purchase", &buyerA, api.PurchaseRequest{Amount: ether(1)})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "invalid land item id", decode[api.ErrorResponse](t, resp).Error)

	resp = env.do(t, http.MethodPost, "/api/lands/1/purchase", &buyerA, api.PurchaseRequest{Amount: ether(1)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	parcel := decode[api.ParcelResponse](t, resp)
	assert.False(t, parcel.Listed)
	assert.Equal(t, buyerA, parcel.Custodian)

	resp = env.do(t, http.MethodPost, "/api/lands/1/resell", &buyerB, api.ResellRequest{Price: ether(2)})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/lands/1/resell", &buyerA, api.ResellRequest{Price: ether(2)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	parcel = decode[api.ParcelResponse](t, resp)
	assert.Equal(t, buyerA, parcel.ListedBy)
	assert.Equal(t, ether(2).ToInt(), parcel.Price.ToInt())

	resp = env.do(t, http.MethodPost, "/api/lands/1/purchase", &buyerB, api.PurchaseRequest{Amount: ether(2)})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/lands/1/owners", nil, nil)
	owners := decode[api.OwnersResponse](t, resp).Owners
	assert.Equal(t, []common.Address{env.reg.Escrow(), buyerA, env.reg.Escrow(), buyerB}, owners)

	resp = env.do(t, http.MethodGet, "/api/accounts/"+buyerA.Hex(), nil, nil)
	account := decode[api.AccountResponse](t, resp)
	assert.Equal(t, ether(6).ToInt(), account.Balance.ToInt())
	assert.Equal(t, uint64(0), account.Parcels)

	resp = env.do(t, http.MethodGet, "/api/events?since=1&limit=2", nil, nil)
	page := decode[api.EventsResponse](t, resp)
	assert.Equal(t, uint64(4), page.LastSeq)
	require.Len(t, page.Events, 2)
	assert.Equal(t, interfaces.ParcelBought, page.Events[0].Kind)
	assert.Equal(t, uint64(2), page.Events[0].Seq)
	assert.Equal(t, interfaces.ParcelListed, page.Events[1].Kind)
}

func TestHandler_SettlementFailure(t *testing.T) {
	env := setupServer(t, false, nil)
	resp := env.do(t, http.MethodPost, "/api/lands", &adminAddr, api.MintRequest{Metadata: "1,2,3"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/lands/1/purchase", &buyerA, api.PurchaseRequest{Amount: ether(1)})
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	owner, err := env.reg.OwnerOf(1)
	require.NoError(t, err)
	assert.Equal(t, env.reg.Escrow(), owner)
}

func TestHandler_BadBodies(t *testing.T) {
	env := setupServer(t, false, nil)

	resp := env.do(t, http.MethodPost, "/api/lands", &adminAddr, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/lands", &adminAddr, map[string]string{"meta": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/lands/1/purchase", &buyerA, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func signedRequest(t *testing.T, key *ecdsa.PrivateKey, signedAt time.Time, method, url, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	sig, err := cryptoutils.SignRequest(key, method, path, signedAt.Unix(), data)
	require.NoError(t, err)

	req, err := http.NewRequest(method, url+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set(api.SignatureHeader, sig)
	req.Header.Set(api.TimestampHeader, strconv.FormatInt(signedAt.Unix(), 10))
	return req
}

// setupSignedServer serves a registry administered by key's address with
// signatures required.
func setupSignedServer(t *testing.T, key *ecdsa.PrivateKey) *testEnv {
	t.Helper()
	return setupSignedServerWithConfig(t, key, &api.HTTPServerConfig{})
}

func setupSignedServerWithConfig(t *testing.T, key *ecdsa.PrivateKey, serverCfg *api.HTTPServerConfig) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := registry.DefaultConfig(crypto.PubkeyToAddress(key.PublicKey))
	gate := governance.NewGate(cfg.Admin, cfg.Escrow)
	journal := events.NewJournal(logger)
	reg, err := registry.New(cfg, gate, journal, logger)
	require.NoError(t, err)
	ledger := settlement.NewLedger(logger)
	handler := NewHandler(reg, marketplace.New(reg, gate, ledger, logger), ledger, journal, true, logger)
	serverCfg.Log = logger
	srv, err := New(serverCfg, handler, NewAdminHandler(handler, nil, logger))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, srv: srv, reg: reg, ledger: ledger, journal: journal}
}

func send(t *testing.T, req *http.Request) int {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestHandler_Signatures(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)
	env := setupSignedServer(t, key)

	// Claimed caller without signature is rejected.
	data, _ := json.Marshal(api.MintRequest{Metadata: "1,2,3"})
	req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/api/lands", bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set(api.CallerHeader, signer.Hex())
	assert.Equal(t, http.StatusUnauthorized, send(t, req))

	// A signature by the admin key mints.
	req = signedRequest(t, key, time.Now(), http.MethodPost, env.ts.URL, "/api/lands", api.MintRequest{Metadata: "1,2,3"})
	assert.Equal(t, http.StatusCreated, send(t, req))

	// A signature that does not match the claimed caller is rejected.
	req = signedRequest(t, key, time.Now(), http.MethodPost, env.ts.URL, "/api/lands", api.MintRequest{Metadata: "5,4,7"})
	req.Header.Set(api.CallerHeader, buyerA.Hex())
	assert.Equal(t, http.StatusUnauthorized, send(t, req))

	// A signature without its timestamp is rejected.
	req = signedRequest(t, key, time.Now(), http.MethodPost, env.ts.URL, "/api/lands", api.MintRequest{Metadata: "5,4,7"})
	req.Header.Del(api.TimestampHeader)
	assert.Equal(t, http.StatusUnauthorized, send(t, req))

	// A timestamp other than the signed one recovers a different signer.
	req = signedRequest(t, key, time.Now(), http.MethodPost, env.ts.URL, "/api/lands", api.MintRequest{Metadata: "5,4,7"})
	req.Header.Set(api.TimestampHeader, strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))
	req.Header.Set(api.CallerHeader, signer.Hex())
	assert.Equal(t, http.StatusUnauthorized, send(t, req))

	// Signatures older than the window are rejected.
	req = signedRequest(t, key, time.Now().Add(-DefaultSignatureWindow-time.Minute), http.MethodPost, env.ts.URL, "/api/lands", api.MintRequest{Metadata: "5,4,7"})
	assert.Equal(t, http.StatusUnauthorized, send(t, req))

	assert.Equal(t, uint64(1), env.reg.TotalMinted())
}

func TestServer_SignatureWindowFromConfig(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	env := setupSignedServerWithConfig(t, key, &api.HTTPServerConfig{SignatureWindow: time.Minute})

	// Inside the default window but outside the configured one.
	req := signedRequest(t, key, time.Now().Add(-2*time.Minute), http.MethodPost, env.ts.URL, "/api/lands", api.MintRequest{Metadata: "1,2,3"})
	assert.Equal(t, http.StatusUnauthorized, send(t, req))

	req = signedRequest(t, key, time.Now(), http.MethodPost, env.ts.URL, "/api/lands", api.MintRequest{Metadata: "1,2,3"})
	assert.Equal(t, http.StatusCreated, send(t, req))
}

func TestAdmin_SignedCreditIsHonouredOnce(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	env := setupSignedServer(t, key)

	signedAt := time.Now()
	path := "/api/admin/accounts/" + buyerA.Hex() + "/credit"
	first := signedRequest(t, key, signedAt, http.MethodPost, env.ts.URL, path, api.CreditRequest{Amount: ether(1)})
	sig := first.Header.Get(api.SignatureHeader)
	require.Equal(t, http.StatusOK, send(t, first))

	for i := 0; i < 5; i++ {
		again := signedRequest(t, key, signedAt, http.MethodPost, env.ts.URL, path, api.CreditRequest{Amount: ether(1)})
		assert.Equal(t, sig, again.Header.Get(api.SignatureHeader))
		assert.Equal(t, http.StatusUnauthorized, send(t, again))
	}

	// The same signature with the 27/28 recovery id is still the same request.
	raw, err := hexutil.Decode(sig)
	require.NoError(t, err)
	raw[crypto.RecoveryIDOffset] += 27
	again := signedRequest(t, key, signedAt, http.MethodPost, env.ts.URL, path, api.CreditRequest{Amount: ether(1)})
	again.Header.Set(api.SignatureHeader, hexutil.Encode(raw))
	assert.Equal(t, http.StatusUnauthorized, send(t, again))

	assert.Equal(t, big.NewInt(params.Ether), env.ledger.BalanceOf(buyerA))

	// A fresh signature over the same credit is a new request.
	next := signedRequest(t, key, signedAt.Add(time.Second), http.MethodPost, env.ts.URL, path, api.CreditRequest{Amount: ether(1)})
	require.Equal(t, http.StatusOK, send(t, next))
	assert.Equal(t, new(big.Int).Mul(big.NewInt(2), big.NewInt(params.Ether)), env.ledger.BalanceOf(buyerA))
}

func TestAdmin_Checkpoint(t *testing.T) {
	cp := new(MockCheckpointer)
	id := interfaces.ComputeID([]byte("state"))
	cp.On("Save", mock.Anything).Return(id, nil).Once()

	env := setupServer(t, false, cp)

	resp := env.do(t, http.MethodPost, "/api/admin/checkpoint", &buyerA, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/admin/checkpoint", &adminAddr, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id.String(), decode[api.CheckpointResponse](t, resp).ID)

	cp.AssertExpectations(t)
}

func TestAdmin_CheckpointUnconfigured(t *testing.T) {
	env := setupServer(t, false, nil)
	resp := env.do(t, http.MethodPost, "/api/admin/checkpoint", &adminAddr, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAdmin_CreditRejectsNonAdmin(t *testing.T) {
	env := setupServer(t, false, nil)
	resp := env.do(t, http.MethodPost, "/api/admin/accounts/"+buyerA.Hex()+"/credit", &buyerA, api.CreditRequest{Amount: ether(1)})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, env.ledger.BalanceOf(buyerA).Sign())
}

func TestServer_Health(t *testing.T) {
	env := setupServer(t, false, nil)

	resp := env.do(t, http.MethodGet, "/livez", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/drain", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/undrain", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{interfaces.ErrUnauthorized, http.StatusForbidden},
		{interfaces.ErrSupplyExhausted, http.StatusConflict},
		{interfaces.ErrInvalidItem, http.StatusNotFound},
		{interfaces.ErrNotFound, http.StatusNotFound},
		{interfaces.ErrWrongPrice, http.StatusBadRequest},
		{interfaces.ErrInvalidPrice, http.StatusBadRequest},
		{interfaces.ErrSettlementFailed, http.StatusPaymentRequired},
		{errors.New("boom"), http.StatusInternalServerError},
		{&RequestError{StatusCode: http.StatusTeapot, Err: errors.New("tea")}, http.StatusTeapot},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, statusFor(tt.err), tt.err.Error())
	}
}
