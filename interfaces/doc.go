// Package interfaces defines the core types and contracts of the land registry,
// separating interface definitions from their implementations.
//
// # Domain Types
//
//   - ParcelID: dense, 1-based identifier of a minted land parcel
//   - ParcelView: immutable snapshot of a parcel (lister, ownership history, price)
//   - Coordinates: the (x, y, area) triple conventionally encoded as parcel metadata
//   - Event: change record emitted after every committed mutation
//
// # Component Interfaces
//
// AccessGate: answers whether a caller may mint, or may relist a given parcel.
//
// Settlement: moves value between accounts, all-or-nothing.
//
// EventPublisher: receives committed change records in mutation order.
//
// LandRegistry and Marketplace: the operations exposed to external callers.
//
// # Storage Interfaces
//
// StorageBackend: content-addressed blob storage used for registry checkpoints
// (file, S3, IPFS, Vault, Redis).
//
// StorageBackendFactory: creates storage backends from URI strings and manages
// multi-backend configurations for redundant storage.
//
// # Errors
//
// Every failure of a registry or marketplace operation wraps one of the sentinel
// errors in this package, so callers match them with errors.Is.
package interfaces
