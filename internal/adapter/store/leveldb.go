package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"eth_stats_api/internal/domain"
	"eth_stats_api/internal/port"
)

const snapshotPrefix = "snapshot:"

// SnapshotStore persists collection windows keyed by their last epoch, so
// iteration order is epoch order.
type SnapshotStore struct {
	db *leveldb.DB
}

func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open snapshot store at %s", path)
	}
	return &SnapshotStore{db: db}, nil
}

var _ port.SnapshotStore = (*SnapshotStore)(nil)

func snapshotKey(toEpoch uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", snapshotPrefix, toEpoch))
}

func (s *SnapshotStore) Put(snap domain.Snapshot) error {
	value, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	if err := s.db.Put(snapshotKey(snap.ToEpoch), value, nil); err != nil {
		return errors.Wrapf(err, "store snapshot for epoch %d", snap.ToEpoch)
	}
	return nil
}

func (s *SnapshotStore) Latest() (domain.Snapshot, bool, error) {
	it := s.db.NewIterator(util.BytesPrefix([]byte(snapshotPrefix)), nil)
	defer it.Release()

	if !it.Last() {
		return domain.Snapshot{}, false, it.Error()
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(it.Value(), &snap); err != nil {
		return domain.Snapshot{}, false, errors.Wrap(err, "decode snapshot")
	}
	return snap, true, nil
}

// List returns up to limit snapshots, newest first. A non-positive limit returns all.
func (s *SnapshotStore) List(limit int) ([]domain.Snapshot, error) {
	it := s.db.NewIterator(util.BytesPrefix([]byte(snapshotPrefix)), nil)
	defer it.Release()

	out := []domain.Snapshot{}
	for ok := it.Last(); ok; ok = it.Prev() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var snap domain.Snapshot
		if err := json.Unmarshal(it.Value(), &snap); err != nil {
			return nil, errors.Wrap(err, "decode snapshot")
		}
		out = append(out, snap)
	}
	return out, it.Error()
}

// Since returns the snapshots whose epochs ended at or after t, oldest first.
func (s *SnapshotStore) Since(t time.Time) ([]domain.Snapshot, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	out := []domain.Snapshot{}
	for _, snap := range all {
		if !snap.EpochEndTime.Before(t) {
			out = append(out, snap)
		}
	}
	return out, nil
}

// All returns every stored snapshot, oldest first.
func (s *SnapshotStore) All() ([]domain.Snapshot, error) {
	it := s.db.NewIterator(util.BytesPrefix([]byte(snapshotPrefix)), nil)
	defer it.Release()

	out := []domain.Snapshot{}
	for it.Next() {
		var snap domain.Snapshot
		if err := json.Unmarshal(it.Value(), &snap); err != nil {
			return nil, errors.Wrap(err, "decode snapshot")
		}
		out = append(out, snap)
	}
	return out, it.Error()
}

func (s *SnapshotStore) Close() error {
	return s.db.Close()
}
