package interfaces

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LandRegistry exposes parcel creation and the read side of the registry.
type LandRegistry interface {
	Mint(caller common.Address, metadata string) (ParcelID, error)
	Get(id ParcelID) (ParcelView, error)
	OwnerOf(id ParcelID) (common.Address, error)
	LandOwners(id ParcelID) ([]common.Address, error)
	TokenURI(id ParcelID) (string, error)
	TotalMinted() uint64
	BalanceOf(owner common.Address) uint64
}

// Marketplace settles purchases and relistings of parcels held in escrow.
type Marketplace interface {
	Purchase(id ParcelID, buyer common.Address, amountPaid *big.Int) error
	Resell(id ParcelID, caller common.Address, newPrice *big.Int) error
}

// Settlement moves value between accounts. Transfer either moves the full
// amount or fails with an error wrapping ErrSettlementFailed and changes nothing.
type Settlement interface {
	Transfer(from, to common.Address, amount *big.Int) error
}
