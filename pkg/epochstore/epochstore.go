// Package epochstore persists the cluster map's current epoch and its
// full-map bytes in BadgerDB, so a restarting client can skip straight to
// GET_OSDMAP(last_known_epoch) instead of bootstrapping from epoch zero.
package epochstore

import (
	"encoding/binary"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/osdc/internal/logger"
)

const (
	keyEpoch   = "epoch"
	keyFullMap = "full_map"
)

// Store wraps a BadgerDB handle dedicated to epoch persistence.
type Store struct {
	db *badger.DB
}

// Open opens (creating if absent) a BadgerDB instance rooted at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("epochstore: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying BadgerDB handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveEpoch persists epoch and the full map bytes that produced it,
// overwriting whatever was previously saved.
func (s *Store) SaveEpoch(epoch uint32, fullMapBytes []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(keyEpoch), encodeUint32(epoch)); err != nil {
			return fmt.Errorf("epochstore: set epoch: %w", err)
		}
		if err := txn.Set([]byte(keyFullMap), fullMapBytes); err != nil {
			return fmt.Errorf("epochstore: set full map: %w", err)
		}
		return nil
	})
}

// LoadEpoch returns the last persisted epoch and full map bytes. ok is
// false if nothing has ever been saved (a fresh client, or a fresh store
// directory).
func (s *Store) LoadEpoch() (epoch uint32, fullMapBytes []byte, ok bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		epochItem, txErr := txn.Get([]byte(keyEpoch))
		if txErr == badger.ErrKeyNotFound {
			return nil
		}
		if txErr != nil {
			return fmt.Errorf("epochstore: get epoch: %w", txErr)
		}

		epochBytes, txErr := epochItem.ValueCopy(nil)
		if txErr != nil {
			return fmt.Errorf("epochstore: copy epoch: %w", txErr)
		}
		epoch, txErr = decodeUint32(epochBytes)
		if txErr != nil {
			return txErr
		}

		mapItem, txErr := txn.Get([]byte(keyFullMap))
		if txErr != nil {
			return fmt.Errorf("epochstore: get full map: %w", txErr)
		}
		fullMapBytes, txErr = mapItem.ValueCopy(nil)
		if txErr != nil {
			return fmt.Errorf("epochstore: copy full map: %w", txErr)
		}

		ok = true
		return nil
	})
	if err != nil {
		logger.Warnf("epochstore: load failed: %v", err)
		return 0, nil, false, err
	}
	return epoch, fullMapBytes, ok, nil
}

func encodeUint32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

func decodeUint32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("epochstore: invalid epoch encoding, want 4 bytes got %d", len(b))
	}
	return binary.LittleEndian.Uint32(b), nil
}
