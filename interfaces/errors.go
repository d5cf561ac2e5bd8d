package interfaces

import "errors"

var (
	// ErrUnauthorized is returned when the caller lacks the role an operation requires.
	ErrUnauthorized = errors.New("caller is not the owner")

	// ErrSupplyExhausted is returned by mint once the configured supply cap is reached.
	ErrSupplyExhausted = errors.New("you can't mint more land !, maxID is reached !")

	// ErrInvalidItem is returned by marketplace operations for ids outside [1, total minted].
	ErrInvalidItem = errors.New("invalid land item id")

	// ErrWrongPrice is returned when a purchase does not pay exactly the asking price.
	ErrWrongPrice = errors.New("submit the asking price")

	// ErrSettlementFailed is returned when value could not be moved from buyer to seller.
	ErrSettlementFailed = errors.New("settlement failed")

	// ErrNotFound is returned by reads of a parcel id that was never minted.
	ErrNotFound = errors.New("land not found")

	// ErrInvalidPrice is returned when a relisting price is missing or negative.
	ErrInvalidPrice = errors.New("price must be a non-negative amount")

	// ErrInsufficientFunds is wrapped into ErrSettlementFailed when the payer balance is too low.
	ErrInsufficientFunds = errors.New("insufficient funds")
)
