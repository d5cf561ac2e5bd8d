package registry

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/land-registry/interfaces"
)

// Parcel is the mutable record of one parcel inside a transaction.
type Parcel struct {
	id        interfaces.ParcelID
	metadata  string
	price     *big.Int
	listedBy  common.Address
	custodian common.Address
	history   []common.Address
}

// ID returns the parcel id.
func (p *Parcel) ID() interfaces.ParcelID { return p.id }

// Metadata returns the stored metadata string.
func (p *Parcel) Metadata() string { return p.metadata }

// Price returns a copy of the current asking price.
func (p *Parcel) Price() *big.Int { return new(big.Int).Set(p.price) }

// ListedBy returns the beneficiary of the next sale, or interfaces.NoLister.
func (p *Parcel) ListedBy() common.Address { return p.listedBy }

// Listed reports whether the parcel has an active lister.
func (p *Parcel) Listed() bool { return p.listedBy != interfaces.NoLister }

// Custodian returns the identity currently holding the parcel.
func (p *Parcel) Custodian() common.Address { return p.custodian }

// HistoryLen returns the number of custody transfers so far.
func (p *Parcel) HistoryLen() int { return len(p.history) }

// TransferCustody moves the parcel to a new holder and records it in the history.
func (p *Parcel) TransferCustody(to common.Address) {
	p.custodian = to
	p.history = append(p.history, to)
}

// List sets the lister and asking price.
func (p *Parcel) List(lister common.Address, price *big.Int) {
	p.listedBy = lister
	p.price = new(big.Int).Set(price)
}

// ClearListing marks the parcel as not for sale. The last price is kept.
func (p *Parcel) ClearListing() {
	p.listedBy = interfaces.NoLister
}

// View returns an immutable snapshot of the parcel.
func (p *Parcel) View() interfaces.ParcelView {
	return interfaces.ParcelView{
		ID:               p.id,
		Metadata:         p.metadata,
		ListedBy:         p.listedBy,
		Custodian:        p.custodian,
		OwnershipHistory: p.historyCopy(),
		Price:            p.Price(),
	}
}

func (p *Parcel) historyCopy() []common.Address {
	out := make([]common.Address, len(p.history))
	copy(out, p.history)
	return out
}

func (p *Parcel) clone() *Parcel {
	return &Parcel{
		id:        p.id,
		metadata:  p.metadata,
		price:     p.Price(),
		listedBy:  p.listedBy,
		custodian: p.custodian,
		history:   p.historyCopy(),
	}
}
