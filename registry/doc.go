// Package registry is the authoritative parcel table of the land registry.
//
// A Registry owns every minted parcel: its metadata, current custodian,
// active listing and append-only ownership history. The supply of parcels is
// capped by Config.MaxSupply and only Config.Admin may mint. Newly minted
// parcels are placed in escrow (Config.Escrow) and listed at
// Config.ListingPrice on behalf of the minter.
//
// # Transactions
//
// All mutations run through Apply, which executes a closure under the registry
// write lock with a Tx:
//
//	err := reg.Apply(func(tx *registry.Tx) error {
//	    p, err := tx.Load(id)
//	    if err != nil {
//	        return err
//	    }
//	    p.TransferCustody(buyer)
//	    tx.Put(p)
//	    tx.Emit(interfaces.Event{Kind: interfaces.ParcelBought, ParcelID: id})
//	    return nil
//	})
//
// Loaded parcels are private copies. Writes and change records staged on the
// Tx are applied only when the closure returns nil, and the records are handed
// to the EventPublisher before the lock is released, so subscribers observe
// them in mutation order. A closure that returns an error leaves no trace.
//
// Readers (Get, OwnerOf, TotalMinted, ...) take the read lock and never observe
// a partially applied transaction.
//
// # Snapshots
//
// Snapshot and Restore convert the parcel table to and from a serialisable
// State, used by the checkpoint package.
package registry
