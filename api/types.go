// Package api defines the wire types shared by the land registry HTTP server
// and its clients.
package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ruteri/land-registry/interfaces"
)

const (
	// CallerHeader carries the address the request acts for.
	CallerHeader = "X-Land-Caller"

	// SignatureHeader carries an EIP-191 signature over
	// "METHOD\nPATH\nTIMESTAMP\nBODY" by the caller's key. Required when the
	// server runs with signature checks enabled.
	SignatureHeader = "X-Land-Signature"

	// TimestampHeader carries the unix second the request was signed at. The
	// server rejects signatures outside its freshness window and any
	// signature it has already accepted.
	TimestampHeader = "X-Land-Timestamp"

	// RequestIDHeader is echoed back on every response.
	RequestIDHeader = "X-Request-ID"
)

// LandProvider is the client side view of the land registry service.
type LandProvider interface {
	Collection() (*CollectionResponse, error)
	Mint(metadata string) (*MintResponse, error)
	Parcel(id interfaces.ParcelID) (*ParcelResponse, error)
	Parcels(listedOnly bool) ([]ParcelResponse, error)
	Owner(id interfaces.ParcelID) (common.Address, error)
	Owners(id interfaces.ParcelID) ([]common.Address, error)
	TokenURI(id interfaces.ParcelID) (string, error)
	Total() (uint64, error)
	Purchase(id interfaces.ParcelID, amount *hexutil.Big) (*ParcelResponse, error)
	Resell(id interfaces.ParcelID, price *hexutil.Big) (*ParcelResponse, error)
	Account(addr common.Address) (*AccountResponse, error)
	Events(since uint64) (*EventsResponse, error)
}

// AdminProvider covers the operator endpoints.
type AdminProvider interface {
	Credit(addr common.Address, amount *hexutil.Big) (*AccountResponse, error)
	Checkpoint() (*CheckpointResponse, error)
}

type CollectionResponse struct {
	Name         string         `json:"name"`
	Symbol       string         `json:"symbol"`
	MaxSupply    uint64         `json:"max_supply"`
	TotalMinted  uint64         `json:"total_minted"`
	ListingPrice *hexutil.Big   `json:"listing_price"`
	Admin        common.Address `json:"admin"`
	Escrow       common.Address `json:"escrow"`
}

type MintRequest struct {
	Metadata string `json:"metadata"`
}

type MintResponse struct {
	ID interfaces.ParcelID `json:"id"`
}

// ParcelResponse is the public record of one parcel. Coordinates is set when
// the metadata follows the "x,y,area" convention.
type ParcelResponse struct {
	ID               interfaces.ParcelID     `json:"id"`
	Metadata         string                  `json:"metadata"`
	Coordinates      *interfaces.Coordinates `json:"coordinates,omitempty"`
	Listed           bool                    `json:"listed"`
	ListedBy         common.Address          `json:"listed_by"`
	Custodian        common.Address          `json:"custodian"`
	OwnershipHistory []common.Address        `json:"ownership_history"`
	Price            *hexutil.Big            `json:"price"`
}

// NewParcelResponse converts a registry view to its wire form.
func NewParcelResponse(view interfaces.ParcelView) ParcelResponse {
	resp := ParcelResponse{
		ID:               view.ID,
		Metadata:         view.Metadata,
		Listed:           view.Listed(),
		ListedBy:         view.ListedBy,
		Custodian:        view.Custodian,
		OwnershipHistory: view.OwnershipHistory,
		Price:            (*hexutil.Big)(view.Price),
	}
	if coords, err := interfaces.ParseMetadata(view.Metadata); err == nil {
		resp.Coordinates = &coords
	}
	return resp
}

type OwnerResponse struct {
	ID    interfaces.ParcelID `json:"id"`
	Owner common.Address      `json:"owner"`
}

type OwnersResponse struct {
	ID     interfaces.ParcelID `json:"id"`
	Owners []common.Address    `json:"owners"`
}

// URIResponse carries the stored metadata verbatim, and its coordinates when
// it parses as "x,y,area".
type URIResponse struct {
	ID          interfaces.ParcelID     `json:"id"`
	URI         string                  `json:"uri"`
	Coordinates *interfaces.Coordinates `json:"coordinates,omitempty"`
}

func NewURIResponse(id interfaces.ParcelID, uri string) URIResponse {
	resp := URIResponse{ID: id, URI: uri}
	if coords, err := interfaces.ParseMetadata(uri); err == nil {
		resp.Coordinates = &coords
	}
	return resp
}

type TotalResponse struct {
	Total uint64 `json:"total"`
}

type PurchaseRequest struct {
	Amount *hexutil.Big `json:"amount"`
}

type ResellRequest struct {
	Price *hexutil.Big `json:"price"`
}

type CreditRequest struct {
	Amount *hexutil.Big `json:"amount"`
}

type AccountResponse struct {
	Address common.Address `json:"address"`
	Balance *hexutil.Big   `json:"balance"`
	Parcels uint64         `json:"parcels"`
}

type EventResponse struct {
	Seq       uint64               `json:"seq"`
	Kind      interfaces.EventKind `json:"kind"`
	ParcelID  interfaces.ParcelID  `json:"parcel_id"`
	Price     *hexutil.Big         `json:"price"`
	Seller    common.Address       `json:"seller"`
	Buyer     common.Address       `json:"buyer"`
	Escrow    common.Address       `json:"escrow"`
	Timestamp int64                `json:"timestamp"`
}

func NewEventResponse(ev interfaces.Event) EventResponse {
	return EventResponse{
		Seq:       ev.Seq,
		Kind:      ev.Kind,
		ParcelID:  ev.ParcelID,
		Price:     (*hexutil.Big)(ev.Price),
		Seller:    ev.Seller,
		Buyer:     ev.Buyer,
		Escrow:    ev.Escrow,
		Timestamp: ev.Timestamp.Unix(),
	}
}

type EventsResponse struct {
	Events  []EventResponse `json:"events"`
	LastSeq uint64          `json:"last_seq"`
}

type CheckpointResponse struct {
	ID string `json:"id"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
