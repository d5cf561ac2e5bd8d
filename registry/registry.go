package registry

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/land-registry/interfaces"
)

// Registry implements interfaces.LandRegistry. The zero value is not usable;
// construct with New.
type Registry struct {
	mutex     sync.RWMutex
	cfg       Config
	parcels   []*Parcel // parcels[i] has id i+1
	gate      interfaces.AccessGate
	publisher interfaces.EventPublisher
	log       *slog.Logger
}

// New creates an empty registry. publisher may be nil when nobody consumes
// change records.
func New(cfg Config, gate interfaces.AccessGate, publisher interfaces.EventPublisher, log *slog.Logger) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid registry config: %w", err)
	}
	if gate == nil {
		return nil, fmt.Errorf("invalid registry config: access gate is required")
	}
	if log == nil {
		log = slog.Default()
	}

	cfg.ListingPrice = new(big.Int).Set(cfg.ListingPrice)

	return &Registry{
		cfg:       cfg,
		parcels:   make([]*Parcel, 0, cfg.MaxSupply),
		gate:      gate,
		publisher: publisher,
		log:       log,
	}, nil
}

// Name returns the collection name.
func (r *Registry) Name() string { return r.cfg.Name }

// Symbol returns the collection symbol.
func (r *Registry) Symbol() string { return r.cfg.Symbol }

// MaxSupply returns the supply cap.
func (r *Registry) MaxSupply() uint64 { return r.cfg.MaxSupply }

// Admin returns the minting identity.
func (r *Registry) Admin() common.Address { return r.cfg.Admin }

// Escrow returns the marketplace escrow identity.
func (r *Registry) Escrow() common.Address { return r.cfg.Escrow }

// ListingPrice returns a copy of the first-sale price.
func (r *Registry) ListingPrice() *big.Int { return new(big.Int).Set(r.cfg.ListingPrice) }

// Apply runs fn under the write lock. Staged writes and change records are
// committed only if fn returns nil.
func (r *Registry) Apply(fn func(tx *Tx) error) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	tx := &Tx{
		reg:    r,
		staged: make(map[interfaces.ParcelID]*Parcel),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// Mint creates the next parcel, places it in escrow and lists it at the
// configured listing price on behalf of caller.
func (r *Registry) Mint(caller common.Address, metadata string) (interfaces.ParcelID, error) {
	var id interfaces.ParcelID

	err := r.Apply(func(tx *Tx) error {
		if err := r.gate.Authorize(caller, interfaces.Mint()); err != nil {
			return err
		}

		total := tx.Total()
		if total >= r.cfg.MaxSupply {
			return fmt.Errorf("%w (max supply %d)", interfaces.ErrSupplyExhausted, r.cfg.MaxSupply)
		}

		id = interfaces.ParcelID(total + 1)
		p := &Parcel{
			id:       id,
			metadata: metadata,
			price:    new(big.Int),
		}
		p.TransferCustody(r.cfg.Escrow)
		p.List(caller, r.cfg.ListingPrice)
		tx.create(p)

		tx.Emit(interfaces.Event{
			Kind:     interfaces.ParcelListed,
			ParcelID: id,
			Price:    p.Price(),
			Seller:   caller,
			Escrow:   r.cfg.Escrow,
		})
		return nil
	})
	if err != nil {
		r.log.Debug("Mint rejected", "err", err, slog.String("caller", caller.Hex()))
		return 0, err
	}

	r.log.Info("Minted parcel",
		slog.String("id", id.String()),
		slog.String("metadata", metadata),
		slog.String("lister", caller.Hex()))
	return id, nil
}

// Get returns a snapshot of the parcel.
func (r *Registry) Get(id interfaces.ParcelID) (interfaces.ParcelView, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	p, err := r.parcelLocked(id)
	if err != nil {
		return interfaces.ParcelView{}, err
	}
	return p.View(), nil
}

// OwnerOf returns the current custodian of the parcel.
func (r *Registry) OwnerOf(id interfaces.ParcelID) (common.Address, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	p, err := r.parcelLocked(id)
	if err != nil {
		return common.Address{}, err
	}
	return p.custodian, nil
}

// LandOwners returns the ownership history of the parcel, oldest first.
func (r *Registry) LandOwners(id interfaces.ParcelID) ([]common.Address, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	p, err := r.parcelLocked(id)
	if err != nil {
		return nil, err
	}
	return p.historyCopy(), nil
}

// TokenURI returns the metadata string stored at mint.
func (r *Registry) TokenURI(id interfaces.ParcelID) (string, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	p, err := r.parcelLocked(id)
	if err != nil {
		return "", err
	}
	return p.metadata, nil
}

// TotalMinted returns the number of parcels created so far.
func (r *Registry) TotalMinted() uint64 {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return uint64(len(r.parcels))
}

// BalanceOf returns how many parcels owner currently holds. The escrow
// identity holds every listed parcel.
func (r *Registry) BalanceOf(owner common.Address) uint64 {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var n uint64
	for _, p := range r.parcels {
		if p.custodian == owner {
			n++
		}
	}
	return n
}

// Parcels returns snapshots of all parcels, optionally only those listed for sale.
func (r *Registry) Parcels(listedOnly bool) []interfaces.ParcelView {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]interfaces.ParcelView, 0, len(r.parcels))
	for _, p := range r.parcels {
		if listedOnly && !p.Listed() {
			continue
		}
		out = append(out, p.View())
	}
	return out
}

func (r *Registry) parcelLocked(id interfaces.ParcelID) (*Parcel, error) {
	if id == 0 || uint64(id) > uint64(len(r.parcels)) {
		return nil, fmt.Errorf("%w: id %s", interfaces.ErrNotFound, id)
	}
	return r.parcels[id-1], nil
}
