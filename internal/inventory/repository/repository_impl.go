package repository

import (
	"context"
	"errors"
	"time"

	inventorydomain "github.com/smallbiznis/qbr/internal/inventory/domain"
	"gorm.io/gorm"
)

type snapshotRepo struct {
	db *gorm.DB
}

// New builds the gorm-backed snapshot reader.
func New(db *gorm.DB) inventorydomain.SnapshotRepository {
	return &snapshotRepo{db: db}
}

func (r *snapshotRepo) LatestDateInWindow(ctx context.Context, vendor string, start, end time.Time) (time.Time, bool, error) {
	var row inventorydomain.DeviceSnapshot
	err := r.db.WithContext(ctx).
		Where("vendor = ? AND snapshot_date >= ? AND snapshot_date <= ?", vendor, start, end).
		Order("snapshot_date DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return row.SnapshotDate, true, nil
}

func (r *snapshotRepo) RowsOn(ctx context.Context, vendor string, date time.Time) ([]inventorydomain.DeviceSnapshot, error) {
	var rows []inventorydomain.DeviceSnapshot
	err := r.db.WithContext(ctx).
		Where("vendor = ? AND snapshot_date = ?", vendor, date).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
