package registry

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
)

const (
	// DefaultName is the collection name.
	DefaultName = "VWorld"
	// DefaultSymbol is the collection symbol.
	DefaultSymbol = "VW"
	// DefaultMaxSupply is the number of parcels that can ever be minted.
	DefaultMaxSupply = 3
)

// DefaultListingPrice is the first-sale price of every minted parcel: 1 ether.
func DefaultListingPrice() *big.Int {
	return big.NewInt(params.Ether)
}

// Config holds the construction parameters of a Registry.
type Config struct {
	Name         string
	Symbol       string
	MaxSupply    uint64
	ListingPrice *big.Int

	// Admin is the only identity allowed to mint.
	Admin common.Address

	// Escrow is the identity holding every listed parcel.
	Escrow common.Address
}

// EscrowAddressFor derives the default escrow identity: the address of a
// contract created by admin at nonce 0.
func EscrowAddressFor(admin common.Address) common.Address {
	return crypto.CreateAddress(admin, 0)
}

// DefaultConfig returns the reference configuration for admin.
func DefaultConfig(admin common.Address) Config {
	return Config{
		Name:         DefaultName,
		Symbol:       DefaultSymbol,
		MaxSupply:    DefaultMaxSupply,
		ListingPrice: DefaultListingPrice(),
		Admin:        admin,
		Escrow:       EscrowAddressFor(admin),
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.Admin == (common.Address{}) {
		return errors.New("admin address is required")
	}
	if c.Escrow == (common.Address{}) {
		return errors.New("escrow address is required")
	}
	if c.Admin == c.Escrow {
		return errors.New("escrow address must differ from admin address")
	}
	if c.MaxSupply == 0 {
		return errors.New("max supply must be positive")
	}
	if c.ListingPrice == nil || c.ListingPrice.Sign() < 0 {
		return errors.New("listing price must be a non-negative amount")
	}
	return nil
}
