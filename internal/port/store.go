package port

import (
	"time"

	"eth_stats_api/internal/domain"
)

type SnapshotStore interface {
	Put(s domain.Snapshot) error
	Latest() (domain.Snapshot, bool, error)
	List(limit int) ([]domain.Snapshot, error)
	// Since filters on chain time (EpochEndTime), not collection time.
	Since(t time.Time) ([]domain.Snapshot, error)
	All() ([]domain.Snapshot, error)
}
