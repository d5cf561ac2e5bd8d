package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/land-registry/api"
	"github.com/ruteri/land-registry/interfaces"
)

// Checkpointer persists the current state on demand.
type Checkpointer interface {
	Save(ctx context.Context) (interfaces.ContentID, error)
}

// AdminHandler serves operator endpoints. Every request must be made by the
// registry admin.
type AdminHandler struct {
	handler      *Handler
	checkpointer Checkpointer
	log          *slog.Logger
}

// NewAdminHandler shares caller resolution with h. checkpointer may be nil
// when no checkpoint backend is configured.
func NewAdminHandler(h *Handler, checkpointer Checkpointer, log *slog.Logger) *AdminHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AdminHandler{
		handler:      h,
		checkpointer: checkpointer,
		log:          log,
	}
}

// AdminRouter returns the router mounted under /api/admin.
func (a *AdminHandler) AdminRouter() chi.Router {
	r := chi.NewRouter()
	r.Post("/accounts/{address}/credit", a.handleCredit)
	r.Post("/checkpoint", a.handleCheckpoint)
	return r
}

func (a *AdminHandler) verifyAdmin(r *http.Request) ([]byte, error) {
	body, caller, err := a.handler.authenticate(r)
	if err != nil {
		return nil, err
	}
	if caller != a.handler.registry.Admin() {
		return nil, fmt.Errorf("%w: %s is not the registry admin", interfaces.ErrUnauthorized, caller.Hex())
	}
	return body, nil
}

// handleCredit funds an account on the settlement ledger.
//
// Endpoint: POST /api/admin/accounts/{address}/credit
func (a *AdminHandler) handleCredit(w http.ResponseWriter, r *http.Request) {
	body, err := a.verifyAdmin(r)
	if err != nil {
		a.handler.writeError(w, r, err)
		return
	}

	addr, err := interfaces.NewAddressFromHex(chi.URLParam(r, "address"))
	if err != nil {
		a.handler.writeError(w, r, badRequest("%v", err))
		return
	}

	var req api.CreditRequest
	if err := decodeBody(body, &req); err != nil {
		a.handler.writeError(w, r, err)
		return
	}
	if req.Amount == nil {
		a.handler.writeError(w, r, badRequest("missing amount"))
		return
	}

	if err := a.handler.ledger.Credit(addr, req.Amount.ToInt()); err != nil {
		a.handler.writeError(w, r, err)
		return
	}

	a.log.Info("Account credited",
		slog.String("account", addr.Hex()),
		slog.String("amount", req.Amount.ToInt().String()),
		slog.String("requestID", RequestIDFrom(r.Context())))
	a.handler.writeJSON(w, r, http.StatusOK, a.handler.account(addr))
}

// handleCheckpoint saves a checkpoint immediately.
//
// Endpoint: POST /api/admin/checkpoint
func (a *AdminHandler) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	if _, err := a.verifyAdmin(r); err != nil {
		a.handler.writeError(w, r, err)
		return
	}
	if a.checkpointer == nil {
		a.handler.writeError(w, r, &RequestError{
			StatusCode: http.StatusServiceUnavailable,
			Err:        errors.New("no checkpoint backend configured"),
		})
		return
	}

	id, err := a.checkpointer.Save(r.Context())
	if err != nil {
		a.handler.writeError(w, r, err)
		return
	}
	a.handler.writeJSON(w, r, http.StatusOK, api.CheckpointResponse{ID: id.String()})
}
