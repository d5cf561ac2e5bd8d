package registry

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/land-registry/interfaces"
)

// ParcelState is the serialisable form of a parcel.
type ParcelState struct {
	ID               interfaces.ParcelID `json:"id"`
	Metadata         string              `json:"metadata"`
	Price            *big.Int            `json:"price"`
	ListedBy         common.Address      `json:"listed_by"`
	Custodian        common.Address      `json:"custodian"`
	OwnershipHistory []common.Address    `json:"ownership_history"`
}

// State is the serialisable parcel table.
type State struct {
	Parcels []ParcelState `json:"parcels"`
}

// Snapshot returns a deep copy of the parcel table.
func (r *Registry) Snapshot() State {
	return r.SnapshotWith(nil)
}

// SnapshotWith copies the parcel table and runs fn before any further commit
// can happen, so state captured by fn is consistent with the returned table.
// fn must not call back into the registry's write path.
func (r *Registry) SnapshotWith(fn func()) State {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	state := State{Parcels: make([]ParcelState, 0, len(r.parcels))}
	for _, p := range r.parcels {
		state.Parcels = append(state.Parcels, ParcelState{
			ID:               p.id,
			Metadata:         p.metadata,
			Price:            p.Price(),
			ListedBy:         p.listedBy,
			Custodian:        p.custodian,
			OwnershipHistory: p.historyCopy(),
		})
	}
	if fn != nil {
		fn()
	}
	return state
}

// Restore replaces the parcel table with state after checking it satisfies
// the registry invariants under the current configuration.
func (r *Registry) Restore(state State) error {
	if uint64(len(state.Parcels)) > r.cfg.MaxSupply {
		return fmt.Errorf("snapshot holds %d parcels, max supply is %d", len(state.Parcels), r.cfg.MaxSupply)
	}

	parcels := make([]*Parcel, 0, len(state.Parcels))
	for i, ps := range state.Parcels {
		if err := r.validateParcelState(interfaces.ParcelID(i+1), ps); err != nil {
			return err
		}
		p := &Parcel{
			id:        ps.ID,
			metadata:  ps.Metadata,
			price:     new(big.Int).Set(ps.Price),
			listedBy:  ps.ListedBy,
			custodian: ps.Custodian,
			history:   make([]common.Address, len(ps.OwnershipHistory)),
		}
		copy(p.history, ps.OwnershipHistory)
		parcels = append(parcels, p)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.parcels = parcels

	r.log.Info("Restored parcel table", "parcels", len(parcels))
	return nil
}

func (r *Registry) validateParcelState(expected interfaces.ParcelID, ps ParcelState) error {
	if ps.ID != expected {
		return fmt.Errorf("snapshot parcel ids are not dense: got %s, expected %s", ps.ID, expected)
	}
	if ps.Price == nil || ps.Price.Sign() < 0 {
		return fmt.Errorf("parcel %s: invalid price", ps.ID)
	}
	if len(ps.OwnershipHistory) == 0 {
		return fmt.Errorf("parcel %s: empty ownership history", ps.ID)
	}
	if ps.OwnershipHistory[0] != r.cfg.Escrow {
		return fmt.Errorf("parcel %s: history must start with escrow %s", ps.ID, r.cfg.Escrow.Hex())
	}
	if last := ps.OwnershipHistory[len(ps.OwnershipHistory)-1]; last != ps.Custodian {
		return fmt.Errorf("parcel %s: custodian %s does not match last history entry %s", ps.ID, ps.Custodian.Hex(), last.Hex())
	}
	if ps.ListedBy != interfaces.NoLister && ps.Custodian != r.cfg.Escrow {
		return fmt.Errorf("parcel %s: listed parcel must be held by escrow", ps.ID)
	}
	return nil
}
