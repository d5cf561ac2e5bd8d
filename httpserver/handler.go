package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ruteri/land-registry/api"
	"github.com/ruteri/land-registry/cryptoutils"
	"github.com/ruteri/land-registry/interfaces"
)

const (
	defaultMaxBodySize = 1024 * 1024
	maxEventsPerPage   = 1000
)

// Registry is the registry surface served over HTTP.
type Registry interface {
	interfaces.LandRegistry
	Parcels(listedOnly bool) []interfaces.ParcelView
	Name() string
	Symbol() string
	MaxSupply() uint64
	ListingPrice() *big.Int
	Admin() common.Address
	Escrow() common.Address
}

// Ledger is the settlement balance surface served over HTTP.
type Ledger interface {
	BalanceOf(account common.Address) *big.Int
	Credit(account common.Address, amount *big.Int) error
}

// Journal serves change records for catch-up reads.
type Journal interface {
	Since(seq uint64) []interfaces.Event
	LastSeq() uint64
}

// RequestError carries the HTTP status for a failed request.
type RequestError struct {
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func badRequest(format string, args ...any) error {
	return &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf(format, args...)}
}

// Handler serves the parcel, marketplace, account and journal endpoints.
type Handler struct {
	registry          Registry
	market            interfaces.Marketplace
	ledger            Ledger
	journal           Journal
	requireSignatures bool
	signatures        *signatureStore
	maxBodySize       int64
	log               *slog.Logger
}

func NewHandler(registry Registry, market interfaces.Marketplace, ledger Ledger, journal Journal, requireSignatures bool, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		registry:          registry,
		market:            market,
		ledger:            ledger,
		journal:           journal,
		requireSignatures: requireSignatures,
		signatures:        newSignatureStore(DefaultSignatureWindow),
		maxBodySize:       defaultMaxBodySize,
		log:               log,
	}
}

// SetSignatureWindow overrides how far a signed timestamp may drift from the
// server clock.
func (h *Handler) SetSignatureWindow(window time.Duration) {
	if window > 0 {
		h.signatures = newSignatureStore(window)
	}
}

// SetMaxBodySize overrides the request body cap.
func (h *Handler) SetMaxBodySize(n int64) {
	if n > 0 {
		h.maxBodySize = n
	}
}

// Routes mounts the public API.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/collection", h.HandleCollection)
	r.Route("/lands", func(r chi.Router) {
		r.Get("/", h.HandleListParcels)
		r.Post("/", h.HandleMint)
		r.Get("/total", h.HandleTotal)
		r.Get("/{id}", h.HandleGetParcel)
		r.Get("/{id}/owner", h.HandleOwner)
		r.Get("/{id}/owners", h.HandleOwners)
		r.Get("/{id}/uri", h.HandleTokenURI)
		r.Post("/{id}/purchase", h.HandlePurchase)
		r.Post("/{id}/resell", h.HandleResell)
	})
	r.Get("/accounts/{address}", h.HandleAccount)
	r.Get("/events", h.HandleEvents)
}

// HandleCollection serves GET /api/collection.
func (h *Handler) HandleCollection(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, api.CollectionResponse{
		Name:         h.registry.Name(),
		Symbol:       h.registry.Symbol(),
		MaxSupply:    h.registry.MaxSupply(),
		TotalMinted:  h.registry.TotalMinted(),
		ListingPrice: toHexBig(h.registry.ListingPrice()),
		Admin:        h.registry.Admin(),
		Escrow:       h.registry.Escrow(),
	})
}

// HandleListParcels serves GET /api/lands[?listed=true].
func (h *Handler) HandleListParcels(w http.ResponseWriter, r *http.Request) {
	listedOnly := false
	if raw := r.URL.Query().Get("listed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, r, badRequest("invalid listed filter %q", raw))
			return
		}
		listedOnly = v
	}

	views := h.registry.Parcels(listedOnly)
	resp := make([]api.ParcelResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, api.NewParcelResponse(v))
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

// HandleMint serves POST /api/lands. Only the admin may mint.
func (h *Handler) HandleMint(w http.ResponseWriter, r *http.Request) {
	body, caller, err := h.authenticate(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req api.MintRequest
	if err := decodeBody(body, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	id, err := h.registry.Mint(caller, req.Metadata)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, api.MintResponse{ID: id})
}

// HandleTotal serves GET /api/lands/total.
func (h *Handler) HandleTotal(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, api.TotalResponse{Total: h.registry.TotalMinted()})
}

// HandleGetParcel serves GET /api/lands/{id}.
func (h *Handler) HandleGetParcel(w http.ResponseWriter, r *http.Request) {
	id, err := parcelIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.registry.Get(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, api.NewParcelResponse(view))
}

// HandleOwner serves GET /api/lands/{id}/owner.
func (h *Handler) HandleOwner(w http.ResponseWriter, r *http.Request) {
	id, err := parcelIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	owner, err := h.registry.OwnerOf(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, api.OwnerResponse{ID: id, Owner: owner})
}

// HandleOwners serves GET /api/lands/{id}/owners, oldest custodian first.
func (h *Handler) HandleOwners(w http.ResponseWriter, r *http.Request) {
	id, err := parcelIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	owners, err := h.registry.LandOwners(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, api.OwnersResponse{ID: id, Owners: owners})
}

// HandleTokenURI serves GET /api/lands/{id}/uri.
func (h *Handler) HandleTokenURI(w http.ResponseWriter, r *http.Request) {
	id, err := parcelIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	uri, err := h.registry.TokenURI(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, api.NewURIResponse(id, uri))
}

// HandlePurchase serves POST /api/lands/{id}/purchase with the caller as buyer.
func (h *Handler) HandlePurchase(w http.ResponseWriter, r *http.Request) {
	id, err := parcelIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	body, caller, err := h.authenticate(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req api.PurchaseRequest
	if err := decodeBody(body, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Amount == nil {
		h.writeError(w, r, badRequest("missing amount"))
		return
	}

	if err := h.market.Purchase(id, caller, req.Amount.ToInt()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeParcel(w, r, id)
}

// HandleResell serves POST /api/lands/{id}/resell with the caller as seller.
func (h *Handler) HandleResell(w http.ResponseWriter, r *http.Request) {
	id, err := parcelIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	body, caller, err := h.authenticate(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req api.ResellRequest
	if err := decodeBody(body, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	var price *big.Int
	if req.Price != nil {
		price = req.Price.ToInt()
	}
	if err := h.market.Resell(id, caller, price); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeParcel(w, r, id)
}

// HandleAccount serves GET /api/accounts/{address}.
func (h *Handler) HandleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := interfaces.NewAddressFromHex(chi.URLParam(r, "address"))
	if err != nil {
		h.writeError(w, r, badRequest("%v", err))
		return
	}
	h.writeJSON(w, r, http.StatusOK, h.account(addr))
}

// HandleEvents serves GET /api/events?since=N[&limit=M].
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var since uint64
	if raw := query.Get("since"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			h.writeError(w, r, badRequest("invalid since %q", raw))
			return
		}
		since = v
	}

	limit := maxEventsPerPage
	if raw := query.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			h.writeError(w, r, badRequest("invalid limit %q", raw))
			return
		}
		limit = min(v, maxEventsPerPage)
	}

	records := h.journal.Since(since)
	if len(records) > limit {
		records = records[:limit]
	}

	resp := api.EventsResponse{
		Events:  make([]api.EventResponse, 0, len(records)),
		LastSeq: h.journal.LastSeq(),
	}
	for _, ev := range records {
		resp.Events = append(resp.Events, api.NewEventResponse(ev))
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

func (h *Handler) account(addr common.Address) api.AccountResponse {
	return api.AccountResponse{
		Address: addr,
		Balance: toHexBig(h.ledger.BalanceOf(addr)),
		Parcels: h.registry.BalanceOf(addr),
	}
}

func (h *Handler) writeParcel(w http.ResponseWriter, r *http.Request, id interfaces.ParcelID) {
	view, err := h.registry.Get(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, api.NewParcelResponse(view))
}

// authenticate reads the body and resolves the caller. A signature, when
// present, must carry a fresh timestamp, recover to the claimed caller and not
// have been accepted before. With signatures required it must be present.
func (h *Handler) authenticate(r *http.Request) ([]byte, common.Address, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodySize+1))
	if err != nil {
		return nil, common.Address{}, badRequest("failed to read request body: %v", err)
	}
	if int64(len(body)) > h.maxBodySize {
		return nil, common.Address{}, &RequestError{StatusCode: http.StatusRequestEntityTooLarge, Err: errors.New("request body too large")}
	}

	unauthenticated := func(format string, args ...any) error {
		return &RequestError{StatusCode: http.StatusUnauthorized, Err: fmt.Errorf(format, args...)}
	}

	var caller common.Address
	claimed := r.Header.Get(api.CallerHeader)
	if claimed != "" {
		caller, err = interfaces.NewAddressFromHex(claimed)
		if err != nil {
			return nil, common.Address{}, unauthenticated("invalid %s header: %v", api.CallerHeader, err)
		}
	}

	signature := r.Header.Get(api.SignatureHeader)
	switch {
	case signature != "":
		signedAt, err := strconv.ParseInt(r.Header.Get(api.TimestampHeader), 10, 64)
		if err != nil {
			return nil, common.Address{}, unauthenticated("missing or invalid %s header", api.TimestampHeader)
		}
		signer, err := cryptoutils.RecoverRequestSigner(signature, r.Method, r.URL.Path, signedAt, body)
		if err != nil {
			return nil, common.Address{}, unauthenticated("%v", err)
		}
		if claimed != "" && signer != caller {
			return nil, common.Address{}, unauthenticated("signature does not match %s", api.CallerHeader)
		}
		if err := h.signatures.Consume(signer, cryptoutils.RequestDigest(r.Method, r.URL.Path, signedAt, body), signedAt); err != nil {
			return nil, common.Address{}, unauthenticated("%v", err)
		}
		caller = signer
	case h.requireSignatures:
		return nil, common.Address{}, unauthenticated("missing %s header", api.SignatureHeader)
	case claimed == "":
		return nil, common.Address{}, unauthenticated("missing %s header", api.CallerHeader)
	}

	return body, caller, nil
}

func decodeBody(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return badRequest("empty request body")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func parcelIDParam(r *http.Request) (interfaces.ParcelID, error) {
	id, err := interfaces.ParseParcelID(chi.URLParam(r, "id"))
	if err != nil {
		return 0, badRequest("%v", err)
	}
	return id, nil
}

func toHexBig(v *big.Int) *hexutil.Big {
	return (*hexutil.Big)(v)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.StatusCode
	case errors.Is(err, interfaces.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrSupplyExhausted):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrInvalidItem), errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrWrongPrice), errors.Is(err, interfaces.ErrInvalidPrice):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrSettlementFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage returns the message clients see: the domain sentinel text for
// domain failures so they can match on it, the full error otherwise.
func errorMessage(err error) string {
	for _, sentinel := range []error{
		interfaces.ErrUnauthorized,
		interfaces.ErrSupplyExhausted,
		interfaces.ErrInvalidItem,
		interfaces.ErrWrongPrice,
		interfaces.ErrNotFound,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "err", err,
			slog.String("path", r.URL.Path),
			slog.String("requestID", RequestIDFrom(r.Context())))
	} else {
		h.log.Debug("Request rejected", "err", err,
			slog.Int("status", status),
			slog.String("path", r.URL.Path),
			slog.String("requestID", RequestIDFrom(r.Context())))
	}
	h.writeJSON(w, r, status, api.ErrorResponse{Error: errorMessage(err)})
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err, slog.String("path", r.URL.Path))
	}
}

type requestIDKey struct{}

// RequestIDFrom returns the request id assigned by WithRequestID.
func RequestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithRequestID tags each request with the caller's X-Request-ID or a fresh
// UUID and echoes it back.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(api.RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(api.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}
