package governance

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/land-registry/interfaces"
	"github.com/stretchr/testify/assert"
)

var (
	admin  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	escrow = common.HexToAddress("0x00000000000000000000000000000000000000e5")
	alice  = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func TestGate_Mint(t *testing.T) {
	g := NewGate(admin, escrow)

	assert.True(t, g.Allowed(admin, interfaces.Mint()))
	assert.NoError(t, g.Authorize(admin, interfaces.Mint()))

	for _, caller := range []common.Address{alice, escrow, {}} {
		assert.False(t, g.Allowed(caller, interfaces.Mint()))
		assert.ErrorIs(t, g.Authorize(caller, interfaces.Mint()), interfaces.ErrUnauthorized)
	}
}

func TestGate_Resell(t *testing.T) {
	g := NewGate(admin, escrow)

	tests := []struct {
		name      string
		caller    common.Address
		custodian common.Address
		allowed   bool
	}{
		{name: "holder relists", caller: alice, custodian: alice, allowed: true},
		{name: "other account", caller: bob, custodian: alice, allowed: false},
		{name: "admin is not the holder", caller: admin, custodian: alice, allowed: false},
		{name: "escrow never relists", caller: escrow, custodian: escrow, allowed: false},
		{name: "listed parcel cannot be relisted by buyer-to-be", caller: bob, custodian: escrow, allowed: false},
		{name: "zero address", caller: common.Address{}, custodian: common.Address{}, allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action := interfaces.Resell(1, tt.custodian)
			assert.Equal(t, tt.allowed, g.Allowed(tt.caller, action))

			err := g.Authorize(tt.caller, action)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, interfaces.ErrUnauthorized)
			}
		})
	}
}

func TestGate_UnknownAction(t *testing.T) {
	g := NewGate(admin, escrow)
	assert.False(t, g.Allowed(admin, interfaces.Action{Kind: interfaces.ActionKind(99)}))
}
