package db

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pushchain/spin-relay/spinClient/store"
)

// GetPreference returns the stored value for key. ok is false when nothing is stored.
func (d *DB) GetPreference(key string) (value string, ok bool, err error) {
	var pref store.Preference
	err = d.client.Where("name = ?", key).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to read preference %s", key)
	}
	return pref.Value, true, nil
}

// SetPreference stores value under key, replacing any previous value.
func (d *DB) SetPreference(key, value string) error {
	pref := store.Preference{Name: key, Value: value}
	err := d.client.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&pref).Error
	if err != nil {
		return errors.Wrapf(err, "failed to write preference %s", key)
	}
	return nil
}
