// Package checkpoint persists registry, ledger and journal state to a storage
// backend and restores it on startup.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/land-registry/events"
	"github.com/ruteri/land-registry/interfaces"
	"github.com/ruteri/land-registry/registry"
	"github.com/ruteri/land-registry/settlement"
)

const formatVersion = 1

// Checkpoint is the stored document. The journal is stored as a separate
// object referenced by JournalID.
type Checkpoint struct {
	Version   int                  `json:"version"`
	CreatedAt time.Time            `json:"created_at"`
	Admin     common.Address       `json:"admin"`
	Escrow    common.Address       `json:"escrow"`
	LastSeq   uint64               `json:"last_seq"`
	Registry  registry.State       `json:"registry"`
	Balances  []settlement.Balance `json:"balances"`
	JournalID string               `json:"journal_id"`
}

// Checkpointer saves and restores the state of one registry instance.
type Checkpointer struct {
	backend interfaces.StorageBackend
	reg     *registry.Registry
	ledger  *settlement.Ledger
	journal *events.Journal
	log     *slog.Logger

	mutex         sync.Mutex
	lastID        interfaces.ContentID
	lastSeq       uint64
	ledgerVersion uint64
	saved         bool
}

func New(backend interfaces.StorageBackend, reg *registry.Registry, ledger *settlement.Ledger, journal *events.Journal, log *slog.Logger) *Checkpointer {
	if log == nil {
		log = slog.Default()
	}
	return &Checkpointer{
		backend: backend,
		reg:     reg,
		ledger:  ledger,
		journal: journal,
		log:     log,
	}
}

// Latest returns the id of the last checkpoint saved or loaded.
func (c *Checkpointer) Latest() (interfaces.ContentID, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.lastID, c.saved
}

// Save captures a consistent view of the registry, ledger and journal and
// stores it. The returned id is the checkpoint's content id.
func (c *Checkpointer) Save(ctx context.Context) (interfaces.ContentID, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var (
		balances      []settlement.Balance
		ledgerVersion uint64
		records       []interfaces.Event
	)
	state := c.reg.SnapshotWith(func() {
		ledgerVersion = c.ledger.Version()
		balances = c.ledger.Snapshot()
		records = c.journal.Since(0)
	})

	journalData, err := json.Marshal(records)
	if err != nil {
		return interfaces.ContentID{}, fmt.Errorf("failed to encode journal: %w", err)
	}
	journalID, err := c.backend.Store(ctx, journalData, interfaces.JournalType)
	if err != nil {
		return interfaces.ContentID{}, fmt.Errorf("failed to store journal: %w", err)
	}

	cp := Checkpoint{
		Version:   formatVersion,
		CreatedAt: time.Now().UTC(),
		Admin:     c.reg.Admin(),
		Escrow:    c.reg.Escrow(),
		LastSeq:   uint64(len(records)),
		Registry:  state,
		Balances:  balances,
		JournalID: journalID.String(),
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return interfaces.ContentID{}, fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	id, err := c.backend.Store(ctx, data, interfaces.CheckpointType)
	if err != nil {
		return interfaces.ContentID{}, fmt.Errorf("failed to store checkpoint: %w", err)
	}

	c.lastID, c.lastSeq, c.ledgerVersion, c.saved = id, cp.LastSeq, ledgerVersion, true
	c.log.Info("Checkpoint saved",
		slog.String("id", id.String()),
		slog.String("backend", c.backend.Name()),
		slog.Int("parcels", len(state.Parcels)),
		slog.Uint64("seq", cp.LastSeq))
	return id, nil
}

// Load fetches checkpoint id and replaces the registry, ledger and journal
// state with it. Nothing is restored if any part fails validation.
func (c *Checkpointer) Load(ctx context.Context, id interfaces.ContentID) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	data, err := c.backend.Fetch(ctx, id, interfaces.CheckpointType)
	if err != nil {
		return fmt.Errorf("failed to fetch checkpoint %s: %w", id, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("failed to decode checkpoint %s: %w", id, err)
	}
	if cp.Version != formatVersion {
		return fmt.Errorf("unsupported checkpoint version %d", cp.Version)
	}
	if cp.Admin != c.reg.Admin() || cp.Escrow != c.reg.Escrow() {
		return fmt.Errorf("checkpoint %s belongs to admin %s escrow %s", id, cp.Admin.Hex(), cp.Escrow.Hex())
	}

	journalID, err := interfaces.NewContentIDFromHex(cp.JournalID)
	if err != nil {
		return fmt.Errorf("invalid journal id in checkpoint: %w", err)
	}
	journalData, err := c.backend.Fetch(ctx, journalID, interfaces.JournalType)
	if err != nil {
		return fmt.Errorf("failed to fetch journal %s: %w", journalID, err)
	}
	var records []interfaces.Event
	if err := json.Unmarshal(journalData, &records); err != nil {
		return fmt.Errorf("failed to decode journal: %w", err)
	}
	if uint64(len(records)) != cp.LastSeq {
		return fmt.Errorf("journal holds %d records, checkpoint expects %d", len(records), cp.LastSeq)
	}

	previousBalances := c.ledger.Snapshot()
	if err := c.ledger.Restore(cp.Balances); err != nil {
		return fmt.Errorf("invalid balances in checkpoint: %w", err)
	}
	if err := c.reg.Restore(cp.Registry); err != nil {
		if restoreErr := c.ledger.Restore(previousBalances); restoreErr != nil {
			c.log.Error("Failed to roll back ledger", "err", restoreErr)
		}
		return fmt.Errorf("invalid registry state in checkpoint: %w", err)
	}
	c.journal.Restore(records)

	c.lastID, c.lastSeq, c.ledgerVersion, c.saved = id, cp.LastSeq, c.ledger.Version(), true
	c.log.Info("Checkpoint loaded",
		slog.String("id", id.String()),
		slog.Int("parcels", len(cp.Registry.Parcels)),
		slog.Uint64("seq", cp.LastSeq))
	return nil
}

// Run saves a checkpoint every interval while the journal or the ledger has
// moved since the last save, and once more when ctx is done.
func (c *Checkpointer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if c.dirty() {
				saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if _, err := c.Save(saveCtx); err != nil {
					c.log.Error("Final checkpoint failed", "err", err)
				}
				cancel()
			}
			return
		case <-ticker.C:
			if !c.dirty() {
				continue
			}
			if _, err := c.Save(ctx); err != nil {
				c.log.Error("Periodic checkpoint failed", "err", err)
			}
		}
	}
}

func (c *Checkpointer) dirty() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return !c.saved || c.journal.LastSeq() != c.lastSeq || c.ledger.Version() != c.ledgerVersion
}
