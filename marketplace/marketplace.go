// Package marketplace implements escrow sales of registry parcels: purchase of
// a listed parcel at exactly its asking price, and relisting by the end user
// holding it.
package marketplace

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/land-registry/interfaces"
	"github.com/ruteri/land-registry/registry"
)

// Marketplace implements interfaces.Marketplace on top of a Registry.
type Marketplace struct {
	reg        *registry.Registry
	gate       interfaces.AccessGate
	settlement interfaces.Settlement
	log        *slog.Logger
}

// New creates a marketplace settling payments through settlement.
func New(reg *registry.Registry, gate interfaces.AccessGate, settlement interfaces.Settlement, log *slog.Logger) *Marketplace {
	if log == nil {
		log = slog.Default()
	}
	return &Marketplace{
		reg:        reg,
		gate:       gate,
		settlement: settlement,
		log:        log,
	}
}

// Purchase pays the lister of parcel id exactly amountPaid on behalf of buyer
// and hands the parcel over to buyer. Payment is settled before any registry
// write is staged, so a failed settlement leaves the parcel untouched.
func (m *Marketplace) Purchase(id interfaces.ParcelID, buyer common.Address, amountPaid *big.Int) error {
	var seller common.Address

	err := m.reg.Apply(func(tx *registry.Tx) error {
		p, err := loadItem(tx, id)
		if err != nil {
			return err
		}

		if amountPaid == nil || amountPaid.Cmp(p.Price()) != 0 {
			return fmt.Errorf("%w: parcel %s asks %s, got %v", interfaces.ErrWrongPrice, id, p.Price(), amountPaid)
		}

		if !p.Listed() {
			return fmt.Errorf("%w: parcel %s is not listed for sale", interfaces.ErrInvalidItem, id)
		}
		seller = p.ListedBy()

		if err := m.settlement.Transfer(buyer, seller, amountPaid); err != nil {
			if errors.Is(err, interfaces.ErrSettlementFailed) {
				return err
			}
			return fmt.Errorf("%w: %w", interfaces.ErrSettlementFailed, err)
		}

		p.TransferCustody(buyer)
		p.ClearListing()
		tx.Put(p)

		tx.Emit(interfaces.Event{
			Kind:     interfaces.ParcelBought,
			ParcelID: id,
			Price:    new(big.Int).Set(amountPaid),
			Seller:   seller,
			Buyer:    buyer,
		})
		return nil
	})
	if err != nil {
		m.log.Debug("Purchase rejected",
			"err", err,
			slog.String("id", id.String()),
			slog.String("buyer", buyer.Hex()))
		return err
	}

	m.log.Info("Parcel bought",
		slog.String("id", id.String()),
		slog.String("price", amountPaid.String()),
		slog.String("seller", seller.Hex()),
		slog.String("buyer", buyer.Hex()))
	return nil
}

// Resell moves parcel id from its end-user holder back into escrow and lists
// it at newPrice with caller as the beneficiary of the next sale.
func (m *Marketplace) Resell(id interfaces.ParcelID, caller common.Address, newPrice *big.Int) error {
	err := m.reg.Apply(func(tx *registry.Tx) error {
		p, err := loadItem(tx, id)
		if err != nil {
			return err
		}

		if err := m.gate.Authorize(caller, interfaces.Resell(id, p.Custodian())); err != nil {
			return err
		}

		if newPrice == nil || newPrice.Sign() < 0 {
			return fmt.Errorf("%w: %v", interfaces.ErrInvalidPrice, newPrice)
		}

		escrow := tx.Config().Escrow
		p.TransferCustody(escrow)
		p.List(caller, newPrice)
		tx.Put(p)

		tx.Emit(interfaces.Event{
			Kind:     interfaces.ParcelListed,
			ParcelID: id,
			Price:    new(big.Int).Set(newPrice),
			Seller:   caller,
			Escrow:   escrow,
		})
		return nil
	})
	if err != nil {
		m.log.Debug("Resell rejected",
			"err", err,
			slog.String("id", id.String()),
			slog.String("caller", caller.Hex()))
		return err
	}

	m.log.Info("Parcel relisted",
		slog.String("id", id.String()),
		slog.String("price", newPrice.String()),
		slog.String("seller", caller.Hex()))
	return nil
}

// loadItem maps unknown ids to ErrInvalidItem, the marketplace flavour of not found.
func loadItem(tx *registry.Tx, id interfaces.ParcelID) (*registry.Parcel, error) {
	p, err := tx.Load(id)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrInvalidItem, id)
	}
	return p, err
}
