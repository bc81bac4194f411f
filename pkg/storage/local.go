// LocalStorage assembles the store offline runs against from flags: a quota-limited memtable, optionally fronted
// by a lookup filter, loaded from and saved to a snapshot file.

package storage

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nobletooth/offline/pkg/utils"
)

var (
	storeQuotaBytes = flag.Int("store_quota_bytes", 5<<20, /*5 MiB*/
		"Maximum key+value bytes the local store holds; 0 disables the quota.")
	snapshotPath = flag.String("snapshot_path", "",
		"File the local store is loaded from at startup and saved to on shutdown; empty disables persistence.")
	snapshotInterval = flag.Duration("snapshot_interval", 0,
		"Interval between periodic snapshots of the local store; 0 only snapshots on shutdown.")
	enableLookupFilter = flag.Bool("enable_lookup_filter", true,
		"Front the local store with a bloom filter that answers lookups of never-written keys.")
	lookupFilterCapacity = flag.Uint("lookup_filter_capacity", 100_000,
		"Expected number of distinct keys the lookup filter is sized for.")
	lookupFilterFpRate = flag.Float64("lookup_filter_fp_rate", 0.01,
		"Target false positive rate of the lookup filter.")
)

// LocalStorage is the process-wide store served by offline.
type LocalStorage struct { // Implements KeyValueHolder.
	KeyValueHolder
	memTable  *MemTable
	path      string
	// snapshotMux orders snapshots so the file on disk always holds the latest one taken.
	snapshotMux sync.Mutex
	closeOnce   sync.Once
	closeErr  error
}

var _ KeyValueHolder = (*LocalStorage)(nil)

// OpenLocalStorage builds the store described by the storage flags.
func OpenLocalStorage() (*LocalStorage, error) {
	if *storeQuotaBytes < 0 {
		return nil, fmt.Errorf("expected a non-negative --store_quota_bytes, got %d", *storeQuotaBytes)
	}
	memTable := NewMemTable(*storeQuotaBytes)
	if *snapshotPath != "" {
		loaded, err := LoadSnapshot(*snapshotPath, memTable)
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot: %w", err)
		}
		slog.Info("Loaded local storage snapshot.", "path", *snapshotPath, "records", loaded,
			"heldBytes", memTable.HeldBytes())
	}

	local := &LocalStorage{KeyValueHolder: memTable, memTable: memTable, path: *snapshotPath}
	if *enableLookupFilter {
		filtered, err := NewFilteredStore(memTable, *lookupFilterCapacity, *lookupFilterFpRate)
		if err != nil {
			return nil, fmt.Errorf("failed to create lookup filter: %w", err)
		}
		local.KeyValueHolder = filtered
	}
	return local, nil
}

// Snapshot saves the store to the configured path; it's a no-op when persistence is disabled.
func (l *LocalStorage) Snapshot() error {
	if l.path == "" {
		return nil
	}
	l.snapshotMux.Lock()
	defer l.snapshotMux.Unlock()
	return SaveSnapshot(l.path, l.memTable.Pairs())
}

// RunSnapshotter saves a snapshot every --snapshot_interval until `ctx` is done.
func (l *LocalStorage) RunSnapshotter(ctx context.Context) {
	if l.path == "" || *snapshotInterval <= 0 {
		return
	}
	ticker := time.NewTicker(*snapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Snapshot(); err != nil {
				slog.Error("Failed to save periodic snapshot.", "path", l.path, "error", err)
			}
		}
	}
}

// Close saves a final snapshot. Calling it more than once returns the first result.
func (l *LocalStorage) Close() error {
	l.closeOnce.Do(func() {
		if err := l.Snapshot(); err != nil {
			l.closeErr = errors.Join(l.closeErr, fmt.Errorf("failed to save final snapshot: %w", err))
		}
		slog.Info("Closed local storage.", "path", l.path, "records", l.memTable.Len(), "uptime", utils.Uptime())
	})
	return l.closeErr
}
