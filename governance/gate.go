// Package governance implements the access gate of the land registry: the
// single administrator may mint, and only the end user currently holding a
// parcel may relist it.
package governance

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/land-registry/interfaces"
)

// Gate implements interfaces.AccessGate for a fixed administrator and escrow.
type Gate struct {
	admin  common.Address
	escrow common.Address
}

// NewGate creates a gate. The escrow identity is never allowed to relist, even
// though it is the recorded custodian of every listed parcel.
func NewGate(admin, escrow common.Address) *Gate {
	return &Gate{
		admin:  admin,
		escrow: escrow,
	}
}

// Admin returns the identity allowed to mint.
func (g *Gate) Admin() common.Address {
	return g.admin
}

// Allowed reports whether caller may perform action.
func (g *Gate) Allowed(caller common.Address, action interfaces.Action) bool {
	switch action.Kind {
	case interfaces.MintAction:
		return caller == g.admin
	case interfaces.ResellAction:
		if caller == g.escrow || caller == (common.Address{}) {
			return false
		}
		return caller == action.Custodian
	default:
		return false
	}
}

// Authorize wraps interfaces.ErrUnauthorized with the denied action.
func (g *Gate) Authorize(caller common.Address, action interfaces.Action) error {
	if g.Allowed(caller, action) {
		return nil
	}
	if action.Kind == interfaces.ResellAction {
		return fmt.Errorf("%w: %s may not %s parcel %s", interfaces.ErrUnauthorized, caller.Hex(), action.Kind, action.Parcel)
	}
	return fmt.Errorf("%w: %s may not %s", interfaces.ErrUnauthorized, caller.Hex(), action.Kind)
}
