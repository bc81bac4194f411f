// Local storage outlives the process that wrote it. Offline persists a store as a protobuf snapshot: a
// google.protobuf.Struct whose fields are the physical keys and whose string values are the stored records.
// Snapshots are written to a temporary file first and renamed into place, so a crash mid-write never leaves a
// truncated snapshot behind.

package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/nobletooth/offline/pkg/utils"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Records copies every record of `store` by walking its ordinal keys. The copy is only consistent if nothing else
// mutates the store meanwhile; MemTable.Pairs offers a consistent copy under the table's lock.
func Records(store KeyValueHolder) ([]utils.StringPair, error) {
	records := make([]utils.StringPair, 0, store.Len())
	for i := range store.Len() {
		key, found := store.Key(i)
		if !found {
			continue
		}
		value, err := store.Get(key)
		if errors.Is(err, ErrKeyNotFound) {
			continue
		} else if err != nil {
			return nil, fmt.Errorf("failed to read key %q: %w", key, err)
		}
		records = append(records, utils.StringPair{Key: key, Value: value})
	}
	return records, nil
}

// SaveSnapshot writes `records` to `path`.
func SaveSnapshot(path string, records []utils.StringPair) error {
	snapshot := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(records))}
	for _, record := range records {
		snapshot.Fields[record.Key] = structpb.NewStringValue(record.Value)
	}
	encoded, err := proto.MarshalOptions{Deterministic: true}.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	// Each save gets its own temporary file, so concurrent saves never rename each other's partial writes.
	tmpFile, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary snapshot: %w", err)
	}
	tmpPath := tmpFile.Name()
	_, writeErr := tmpFile.Write(encoded)
	if writeErr == nil {
		writeErr = tmpFile.Chmod(0o644)
	}
	if writeErr == nil {
		writeErr = tmpFile.Sync()
	}
	if err := errors.Join(writeErr, tmpFile.Close()); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	slog.Debug("Saved store snapshot.", "path", path, "records", len(snapshot.Fields), "bytes", len(encoded))
	return nil
}

// LoadSnapshot writes the records found at `path` into `store` and returns how many were loaded.
// A missing snapshot is not an error; it loads nothing.
func LoadSnapshot(path string, store KeyValueHolder) (int, error) {
	encoded, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("failed to read snapshot: %w", err)
	}
	snapshot := new(structpb.Struct)
	if err := proto.Unmarshal(encoded, snapshot); err != nil {
		return 0, fmt.Errorf("failed to decode snapshot %s: %w", path, err)
	}

	loaded := 0
	for _, key := range slices.Sorted(maps.Keys(snapshot.GetFields())) {
		value, isString := snapshot.GetFields()[key].GetKind().(*structpb.Value_StringValue)
		if !isString {
			slog.Warn("Skipping non-string snapshot record.", "path", path, "key", key)
			continue
		}
		if err := store.Set(key, value.StringValue); err != nil {
			return loaded, fmt.Errorf("failed to load snapshot record %q: %w", key, err)
		}
		loaded++
	}
	return loaded, nil
}
