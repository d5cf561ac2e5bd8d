package interfaces

import "github.com/ethereum/go-ethereum/common"

// ActionKind enumerates the gated operations.
type ActionKind int

const (
	// MintAction creates a new parcel.
	MintAction ActionKind = iota
	// ResellAction relists a parcel held by an end user.
	ResellAction
)

// String returns the action name used in logs and errors.
func (k ActionKind) String() string {
	switch k {
	case MintAction:
		return "mint"
	case ResellAction:
		return "resell"
	default:
		return "unknown"
	}
}

// Action is a gated operation together with the state the gate needs to decide it.
type Action struct {
	Kind ActionKind

	// Parcel and Custodian are set for ResellAction.
	Parcel    ParcelID
	Custodian common.Address
}

// Mint returns the action for creating a parcel.
func Mint() Action {
	return Action{Kind: MintAction}
}

// Resell returns the action for relisting parcel id currently held by custodian.
func Resell(id ParcelID, custodian common.Address) Action {
	return Action{Kind: ResellAction, Parcel: id, Custodian: custodian}
}

// AccessGate decides who may create and who may relist parcels.
type AccessGate interface {
	// Allowed reports whether caller may perform action.
	Allowed(caller common.Address, action Action) bool

	// Authorize returns an error wrapping ErrUnauthorized when Allowed is false.
	Authorize(caller common.Address, action Action) error
}
