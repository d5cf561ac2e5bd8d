package interfaces

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind names a change record.
type EventKind string

const (
	// ParcelListed is emitted by mint and resell.
	ParcelListed EventKind = "ParcelListed"
	// ParcelBought is emitted by purchase.
	ParcelBought EventKind = "ParcelBought"
)

// Event is a change record. Seq is assigned by the journal and grows by one
// per record in commit order.
type Event struct {
	Seq       uint64         `json:"seq"`
	Kind      EventKind      `json:"kind"`
	ParcelID  ParcelID       `json:"parcel_id"`
	Price     *big.Int       `json:"price"`
	Seller    common.Address `json:"seller"`
	Buyer     common.Address `json:"buyer"`
	Escrow    common.Address `json:"escrow"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventPublisher receives committed change records. Publish is called while the
// registry write lock is held, so implementations must not block.
type EventPublisher interface {
	Publish(events ...Event)
}
