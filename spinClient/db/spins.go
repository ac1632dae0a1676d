package db

import (
	"github.com/pkg/errors"

	"github.com/pushchain/spin-relay/spinClient/store"
)

const (
	// MaxSpinHistory caps a single history query.
	MaxSpinHistory = 500

	// spinRetention is how many records survive a prune.
	spinRetention = 10 * MaxSpinHistory
)

// RecordSpin persists a finished spin request.
func (d *DB) RecordSpin(record *store.SpinRecord) error {
	if err := d.client.Create(record).Error; err != nil {
		return errors.Wrap(err, "failed to record spin")
	}
	if record.ID%MaxSpinHistory == 0 {
		if _, err := d.PruneSpins(spinRetention); err != nil {
			return err
		}
	}
	return nil
}

// PruneSpins deletes all but the newest keep records and reports how many were removed.
func (d *DB) PruneSpins(keep int) (int64, error) {
	q := d.client.Unscoped()
	if keep > 0 {
		newest := d.client.Unscoped().Model(&store.SpinRecord{}).Select("id").Order("id DESC").Limit(keep)
		q = q.Where("id NOT IN (?)", newest)
	} else {
		q = q.Where("1 = 1")
	}
	res := q.Delete(&store.SpinRecord{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "failed to prune spin history")
	}
	return res.RowsAffected, nil
}

// RecentSpins returns up to limit records, newest first. A network filter of "" matches all.
func (d *DB) RecentSpins(network string, limit int) ([]store.SpinRecord, error) {
	if limit <= 0 || limit > MaxSpinHistory {
		limit = MaxSpinHistory
	}

	q := d.client.Order("id DESC").Limit(limit)
	if network != "" {
		q = q.Where("network = ?", network)
	}

	var records []store.SpinRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query spin history")
	}
	return records, nil
}
