package registry

import (
	"github.com/ruteri/land-registry/interfaces"
)

// Tx stages parcel writes and change records for one Apply call. A Tx is only
// valid inside the closure it was passed to.
type Tx struct {
	reg     *Registry
	staged  map[interfaces.ParcelID]*Parcel
	created []*Parcel
	events  []interfaces.Event
}

// Config returns the registry configuration.
func (tx *Tx) Config() Config {
	return tx.reg.cfg
}

// Total returns the number of parcels including those created in this Tx.
func (tx *Tx) Total() uint64 {
	return uint64(len(tx.reg.parcels) + len(tx.created))
}

// Load returns a private copy of the parcel, reflecting writes already staged
// in this Tx. Unknown ids fail with interfaces.ErrNotFound.
func (tx *Tx) Load(id interfaces.ParcelID) (*Parcel, error) {
	if p, ok := tx.staged[id]; ok {
		return p.clone(), nil
	}
	for _, p := range tx.created {
		if p.id == id {
			return p.clone(), nil
		}
	}
	p, err := tx.reg.parcelLocked(id)
	if err != nil {
		return nil, err
	}
	return p.clone(), nil
}

// Put stages p to replace the stored parcel with the same id on commit.
func (tx *Tx) Put(p *Parcel) {
	for i, c := range tx.created {
		if c.id == p.id {
			tx.created[i] = p.clone()
			return
		}
	}
	tx.staged[p.id] = p.clone()
}

// Emit stages a change record, published after commit.
func (tx *Tx) Emit(ev interfaces.Event) {
	tx.events = append(tx.events, ev)
}

func (tx *Tx) create(p *Parcel) {
	tx.created = append(tx.created, p.clone())
}

func (tx *Tx) commit() {
	for id, p := range tx.staged {
		tx.reg.parcels[id-1] = p
	}
	tx.reg.parcels = append(tx.reg.parcels, tx.created...)

	if tx.reg.publisher != nil && len(tx.events) > 0 {
		tx.reg.publisher.Publish(tx.events...)
	}
}
